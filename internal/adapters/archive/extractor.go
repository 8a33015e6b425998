package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"slack-calendar/internal/domain"
)

// DefaultMaxBytes — потолок распакованного размера архива по умолчанию.
const DefaultMaxBytes int64 = 500 << 20

const memoryPath = "<memory>"

// Option — функциональная опция для настройки Extractor.
type Option func(*Extractor)

// WithMaxBytes устанавливает потолок распакованного размера.
func WithMaxBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.log = l
		}
	}
}

// Extractor распаковывает архив экспорта на диск или открывает его в памяти,
// не позволяя выйти за пределы потолка распакованного размера.
type Extractor struct {
	maxBytes int64
	log      *slog.Logger
}

// NewExtractor создает Extractor с потолком DefaultMaxBytes, если не задано иное.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		maxBytes: DefaultMaxBytes,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "archive_extractor")
	return e
}

// MaxBytes возвращает действующий потолок.
func (e *Extractor) MaxBytes() int64 {
	return e.maxBytes
}

// ExtractToDir распаковывает archivePath в dest, перезаписывая существующие файлы,
// и возвращает итоговый размер каталога. Частично распакованный каталог
// удаляет вызывающая сторона.
func (e *Extractor) ExtractToDir(ctx context.Context, archivePath, dest string) (int64, error) {
	l := e.log.With("archive", archivePath, "dest", dest)

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, domain.NewArchiveError(domain.ErrNotFound, archivePath, err)
		}
		return 0, domain.NewArchiveError(domain.ErrCorruptArchive, archivePath, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, domain.NewArchiveError(domain.ErrIO, dest, err)
	}

	l.Debug("Extracting archive", "entries", len(zr.File), "max_bytes", e.maxBytes)

	var written int64
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := e.extractEntry(f, dest, e.maxBytes-written)
		if err != nil {
			var ae *domain.ArchiveError
			if errors.As(err, &ae) && ae.Path == "" {
				ae.Path = archivePath
			}
			return 0, err
		}
		written += n
	}

	size, err := dirSize(dest)
	if err != nil {
		return 0, domain.NewArchiveError(domain.ErrIO, dest, fmt.Errorf("measure extracted size: %w", err))
	}
	if size > e.maxBytes {
		return size, domain.NewArchiveError(domain.ErrSizeLimitExceeded, archivePath,
			fmt.Errorf("%d bytes exceeds limit of %d bytes", size, e.maxBytes))
	}

	l.Info("Archive extracted", "entries", len(zr.File), "bytes", size)
	return size, nil
}

// extractEntry записывает один элемент архива. budget — сколько байт еще можно записать.
func (e *Extractor) extractEntry(f *zip.File, dest string, budget int64) (int64, error) {
	target, err := entryTarget(dest, f.Name)
	if err != nil {
		return 0, domain.NewArchiveError(domain.ErrCorruptArchive, "", err)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return 0, domain.NewArchiveError(domain.ErrIO, target, err)
		}
		return 0, nil
	}
	if f.Mode()&fs.ModeSymlink != 0 {
		e.log.Debug("Skipping symlink entry", "entry", f.Name)
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, domain.NewArchiveError(domain.ErrIO, target, err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, domain.NewArchiveError(domain.ErrCorruptArchive, "", fmt.Errorf("open entry %s: %w", f.Name, err))
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, domain.NewArchiveError(domain.ErrIO, target, err)
	}

	w := &trackedWriter{w: out}
	n, copyErr := io.Copy(w, io.LimitReader(rc, budget+1))
	closeErr := out.Close()

	switch {
	case w.err != nil:
		return n, domain.NewArchiveError(domain.ErrIO, target, w.err)
	case copyErr != nil:
		return n, domain.NewArchiveError(domain.ErrCorruptArchive, "", fmt.Errorf("read entry %s: %w", f.Name, copyErr))
	case closeErr != nil:
		return n, domain.NewArchiveError(domain.ErrIO, target, closeErr)
	case n > budget:
		return n, domain.NewArchiveError(domain.ErrSizeLimitExceeded, "",
			fmt.Errorf("entry %s pushes extracted size over %d bytes", f.Name, e.maxBytes))
	}
	return n, nil
}

// OpenInMemory открывает архив из data как fs.FS без записи на диск.
// Все элементы предварительно прочитываются, чтобы проверить целостность и потолок размера.
func (e *Extractor) OpenInMemory(ctx context.Context, data []byte) (fs.FS, int64, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, domain.NewArchiveError(domain.ErrCorruptArchive, memoryPath, err)
	}

	var total int64
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if _, err := entryTarget(".", f.Name); err != nil {
			return nil, 0, domain.NewArchiveError(domain.ErrCorruptArchive, memoryPath, err)
		}
		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, 0, domain.NewArchiveError(domain.ErrCorruptArchive, memoryPath, fmt.Errorf("open entry %s: %w", f.Name, err))
		}
		n, err := io.Copy(io.Discard, io.LimitReader(rc, e.maxBytes-total+1))
		rc.Close()
		if err != nil {
			return nil, 0, domain.NewArchiveError(domain.ErrCorruptArchive, memoryPath, fmt.Errorf("read entry %s: %w", f.Name, err))
		}
		total += n
		if total > e.maxBytes {
			return nil, 0, domain.NewArchiveError(domain.ErrSizeLimitExceeded, memoryPath,
				fmt.Errorf("decompressed size exceeds limit of %d bytes", e.maxBytes))
		}
	}

	e.log.Debug("Archive opened in memory", "entries", len(zr.File), "bytes", total)
	return zr, total, nil
}

// entryTarget возвращает путь назначения элемента и отклоняет пути,
// выходящие за пределы dest.
func entryTarget(dest, name string) (string, error) {
	clean := strings.TrimSuffix(name, "/")
	if clean == "" || strings.Contains(clean, `\`) || !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("unsafe entry path %q", name)
	}
	return filepath.Join(dest, filepath.FromSlash(clean)), nil
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// trackedWriter запоминает ошибку записи, чтобы отличить ее от ошибки чтения архива.
type trackedWriter struct {
	w   io.Writer
	err error
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
