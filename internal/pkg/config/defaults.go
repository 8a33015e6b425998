package config

import "time"

// Default values for configuration.
const (
	// Server defaults
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxUploadSizeMB = 200
	DefaultCleanupInterval = 1 * time.Hour

	// Database defaults
	DefaultDatabaseDriver = "duckdb"
	DefaultDatabaseDSN    = "slack_calendar.duckdb"

	// Ingest defaults
	DefaultScanDir           = "./data"
	DefaultArchiveSuffix     = ".zip"
	DefaultMaxExtractedMB    = 500
	DefaultWindowDays        = 30
	DefaultExtractionBatch   = 200
	DefaultDropUntimestamped = false

	// LLM defaults
	DefaultLLMModel            = "gpt-4o-mini"
	DefaultLLMOperationTimeout = 60 * time.Second
	DefaultHealthCheckInterval = 30 * time.Second

	// Processing defaults
	DefaultTaskTimeout = 600 * time.Second
	DefaultCacheTTL    = 60 * time.Minute

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)
