package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound — архив или корневой каталог экспорта не найден.
	ErrNotFound = errors.New("not found")
	// ErrSizeLimitExceeded — распакованный архив превышает допустимый размер.
	ErrSizeLimitExceeded = errors.New("decompressed size limit exceeded")
	// ErrCorruptArchive — архив поврежден или содержит недопустимые пути.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrIO — ошибка записи во временный каталог.
	ErrIO = errors.New("i/o failure")
	// ErrExtraction — одна или несколько пачек извлечения событий завершились неудачей.
	ErrExtraction = errors.New("event extraction failed")
	// ErrEventNotFound — событие с указанным ID отсутствует.
	ErrEventNotFound = errors.New("event not found")
	// ErrInvalidEvent — событие не проходит проверку обязательных полей.
	ErrInvalidEvent = errors.New("invalid event")
)

// ArchiveError описывает фатальную для запуска ошибку работы с архивом.
// Kind — одна из ErrNotFound, ErrSizeLimitExceeded, ErrCorruptArchive, ErrIO.
type ArchiveError struct {
	Kind error
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Path, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Err)
}

func (e *ArchiveError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewArchiveError создает ArchiveError заданного вида.
func NewArchiveError(kind error, path string, err error) *ArchiveError {
	return &ArchiveError{Kind: kind, Path: path, Err: err}
}

// BatchFailure — неудачная пачка извлечения.
type BatchFailure struct {
	Index int
	Size  int
	Err   error
}

// ExtractionError агрегирует неудачные пачки одного вызова извлечения.
// События успешных пачек возвращаются вызывающему вместе с этой ошибкой.
type ExtractionError struct {
	Batches int
	Failed  []BatchFailure
}

func (e *ExtractionError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("batch %d (%d messages): %v", f.Index+1, f.Size, f.Err))
	}
	return fmt.Sprintf("%d of %d extraction batches failed: %s", len(e.Failed), e.Batches, strings.Join(parts, "; "))
}

func (e *ExtractionError) Unwrap() error {
	return ErrExtraction
}

// Total сообщает, что не удалась ни одна пачка.
func (e *ExtractionError) Total() bool {
	return e.Batches > 0 && len(e.Failed) == e.Batches
}
