package source

import (
	"fmt"
	"io"
	"os"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/ports"
)

// FileSource реализует интерфейс DataSource для чтения архива с диска.
type FileSource struct {
	filePath string
	maxBytes int64
}

// NewFileSource создает источник для файла filePath.
// maxBytes ограничивает объем читаемых данных, 0 — без ограничения.
func NewFileSource(filePath string, maxBytes int64) ports.DataSource {
	return &FileSource{filePath: filePath, maxBytes: maxBytes}
}

// Fetch читает файл по указанному пути и возвращает его содержимое.
func (s *FileSource) Fetch() ([]byte, error) {
	if s.filePath == "" {
		return nil, fmt.Errorf("не указан путь к файлу")
	}

	f, err := os.Open(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewArchiveError(domain.ErrNotFound, s.filePath, err)
		}
		return nil, fmt.Errorf("failed to open file %s: %w", s.filePath, err)
	}
	defer f.Close()

	var r io.Reader = f
	if s.maxBytes > 0 {
		r = io.LimitReader(f, s.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", s.filePath, err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, domain.NewArchiveError(domain.ErrSizeLimitExceeded, s.filePath,
			fmt.Errorf("file is larger than %d bytes", s.maxBytes))
	}
	return data, nil
}
