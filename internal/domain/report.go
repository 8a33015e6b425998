package domain

import "time"

// Flow — сценарий запуска конвейера.
type Flow string

const (
	// FlowUpload — архив загружен пользователем и удаляется после обработки.
	FlowUpload Flow = "upload"
	// FlowScan — архив найден в каталоге сканирования и остается на месте.
	// События перед вставкой полностью заменяются.
	FlowScan Flow = "scan"
	// FlowFile — локальный архив, указанный явно (CLI). Архив не удаляется,
	// события добавляются без очистки.
	FlowFile Flow = "file"
)

// PipelineState — стадия конвейера загрузки.
type PipelineState string

const (
	StateLocating           PipelineState = "LOCATING"
	StateExtracting         PipelineState = "EXTRACTING"
	StateWalking            PipelineState = "WALKING"
	StateFiltering          PipelineState = "FILTERING"
	StateClearing           PipelineState = "CLEARING"
	StatePersistingMessages PipelineState = "PERSISTING_MESSAGES"
	StateExtractingEvents   PipelineState = "EXTRACTING_EVENTS"
	StatePersistingEvents   PipelineState = "PERSISTING_EVENTS"
	StateCleanup            PipelineState = "CLEANUP"
	StateDone               PipelineState = "DONE"
	StateFailed             PipelineState = "FAILED"
)

// FileFailure — файл канала, пропущенный при обходе.
type FileFailure struct {
	Channel string `json:"channel"`
	Path    string `json:"path"`
	Reason  string `json:"reason"`
}

// IngestionReport — итог одного запуска конвейера.
// Degraded выставляется, когда запуск успешен, но извлечение событий частично
// или полностью не удалось.
type IngestionReport struct {
	BatchID     string        `json:"batch_id"`
	Flow        Flow          `json:"flow"`
	ArchivePath string        `json:"archive_path"`
	Success     bool          `json:"success"`
	State       PipelineState `json:"state"`
	FailedAt    PipelineState `json:"failed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
	Cached      bool          `json:"cached,omitempty"`

	Channels         []string      `json:"channels"`
	MessagesParsed   int           `json:"messages_parsed"`
	MessagesRetained int           `json:"messages_retained"`
	MessagesStored   int           `json:"messages_stored"`
	RecordsDropped   int           `json:"records_dropped"`
	FileFailures     []FileFailure `json:"file_failures,omitempty"`

	EventsCleared   int64 `json:"events_cleared,omitempty"`
	EventsExtracted int   `json:"events_extracted"`
	EventsInserted  int   `json:"events_inserted"`
	EventsSkipped   int   `json:"events_skipped"`
	FailedBatches   int   `json:"failed_batches"`
	Degraded        bool  `json:"degraded"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ArchiveSummary — результат анализа архива в памяти без сохранения.
type ArchiveSummary struct {
	Channels         []ChannelSummary `json:"channels"`
	MessagesParsed   int              `json:"messages_parsed"`
	MessagesRetained int              `json:"messages_retained"`
	RecordsDropped   int              `json:"records_dropped"`
	FileFailures     []FileFailure    `json:"file_failures,omitempty"`
	DecompressedSize int64            `json:"decompressed_size"`
}
