package ports

import (
	"context"
	"io"
	"time"

	"slack-calendar/internal/domain"
)

// DataSource определяет интерфейс для получения байтов архива экспорта.
type DataSource interface {
	// Fetch загружает данные из источника и возвращает их в виде байтового среза.
	Fetch() ([]byte, error)
}

// Parser определяет интерфейс для разбора дневного файла канала.
type Parser interface {
	// Parse преобразует содержимое файла в список сырых записей.
	// Ошибка возвращается, если файл целиком не является JSON-массивом.
	Parse(data []byte) (*domain.DayFile, error)
}

// EventExtractor извлекает кандидатов в события из сообщений.
// При частичном сбое возвращает события успешных пачек вместе с *domain.ExtractionError.
type EventExtractor interface {
	Extract(ctx context.Context, messages []domain.Message) ([]domain.ExtractedEvent, error)
}

// MessageRepository сохраняет сообщения пачкой в одной транзакции.
type MessageRepository interface {
	InsertMessages(ctx context.Context, batchID string, messages []domain.Message, now time.Time) (int, error)
}

// EventRepository сохраняет события с дедупликацией.
type EventRepository interface {
	ClearEvents(ctx context.Context) (int64, error)
	PersistEvents(ctx context.Context, events []domain.ExtractedEvent, replace bool, now time.Time) (domain.PersistResult, error)
}

// Exporter определяет интерфейс для вывода списка событий.
type Exporter interface {
	Export(w io.Writer, events []domain.Event) error
}
