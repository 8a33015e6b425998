// Package config предоставляет управление конфигурацией приложения
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Server содержит конфигурацию HTTP-сервера
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadSizeMB int64         `yaml:"max_upload_size_mb"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Database содержит параметры подключения к хранилищу
type Database struct {
	Driver string `yaml:"driver"` // duckdb, pgx
	DSN    string `yaml:"dsn"`
}

// Ingest содержит параметры конвейера загрузки архивов
type Ingest struct {
	ScanDir           string `yaml:"scan_dir"`
	ArchivePrefix     string `yaml:"archive_prefix"`
	ScratchRoot       string `yaml:"scratch_root"` // пусто - системный временный каталог
	MaxExtractedMB    int64  `yaml:"max_extracted_mb"`
	WindowDays        int    `yaml:"window_days"`
	BatchSize         int    `yaml:"batch_size"`
	DropUntimestamped bool   `yaml:"drop_untimestamped"`
}

// LLMServer содержит конфигурацию одного OpenAI-совместимого сервера
type LLMServer struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// LLM содержит конфигурацию извлечения событий языковой моделью.
// Пустой список серверов включает извлечение по правилам.
type LLM struct {
	Servers             []LLMServer   `yaml:"servers"`
	OperationTimeout    time.Duration `yaml:"operation_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// Scheduler содержит расписание периодического сканирования
type Scheduler struct {
	ScanSpec string `yaml:"scan_spec"` // cron-выражение, пусто - выключено
}

// Processing содержит конфигурацию фоновых задач
type Processing struct {
	TaskTimeout time.Duration `yaml:"task_timeout"` // 0 - без ограничений
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Config содержит конфигурацию приложения
type Config struct {
	Server     Server     `yaml:"server"`
	Database   Database   `yaml:"database"`
	Ingest     Ingest     `yaml:"ingest"`
	LLM        LLM        `yaml:"llm"`
	Scheduler  Scheduler  `yaml:"scheduler"`
	Processing Processing `yaml:"processing"`
	Logging    Logging    `yaml:"logging"`
}

func defaultConfig() *Config {
	return &Config{
		Server: Server{
			Host:            DefaultServerHost,
			Port:            DefaultServerPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxUploadSizeMB: DefaultMaxUploadSizeMB,
			CleanupInterval: DefaultCleanupInterval,
		},
		Database: Database{
			Driver: DefaultDatabaseDriver,
			DSN:    DefaultDatabaseDSN,
		},
		Ingest: Ingest{
			ScanDir:           DefaultScanDir,
			MaxExtractedMB:    DefaultMaxExtractedMB,
			WindowDays:        DefaultWindowDays,
			BatchSize:         DefaultExtractionBatch,
			DropUntimestamped: DefaultDropUntimestamped,
		},
		LLM: LLM{
			OperationTimeout:    DefaultLLMOperationTimeout,
			HealthCheckInterval: DefaultHealthCheckInterval,
		},
		Processing: Processing{
			TaskTimeout: DefaultTaskTimeout,
			CacheTTL:    DefaultCacheTTL,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// LoadConfig загружает конфигурацию: значения по умолчанию, затем config.yml
// (путь переопределяется CONFIG_PATH), затем переменные окружения и .env.
func LoadConfig() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := defaultConfig()
	if err := loadFromYAML(getEnv("CONFIG_PATH", "config.yml"), cfg); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию из env: %w", err)
	}
	return cfg, nil
}

// loadFromYAML накладывает YAML-файл поверх cfg. Отсутствие файла не ошибка.
func loadFromYAML(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("не удалось разобрать YAML конфигурацию: %w", err)
	}
	return nil
}

// applyEnv переопределяет отдельные поля переменными окружения.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("недопустимый SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	// DB_URL - строка подключения PostgreSQL
	if v := os.Getenv("DB_URL"); v != "" && os.Getenv("DATABASE_DSN") == "" {
		cfg.Database.Driver = "pgx"
		cfg.Database.DSN = v
	}

	if v := os.Getenv("SCAN_DIR"); v != "" {
		cfg.Ingest.ScanDir = v
	}
	if v := os.Getenv("WINDOW_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("недопустимый WINDOW_DAYS: %w", err)
		}
		cfg.Ingest.WindowDays = days
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" && len(cfg.LLM.Servers) == 0 {
		cfg.LLM.Servers = []LLMServer{{
			Name:    "openai",
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			APIKey:  key,
			Model:   getEnv("OPENAI_MODEL", DefaultLLMModel),
		}}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Address возвращает адрес сервера в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LLMServers возвращает серверы с заполненной моделью по умолчанию.
func (c *Config) LLMServers() []LLMServer {
	out := make([]LLMServer, 0, len(c.LLM.Servers))
	for i, s := range c.LLM.Servers {
		if s.Model == "" {
			s.Model = DefaultLLMModel
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("llm-%d", i+1)
		}
		out = append(out, s)
	}
	return out
}

// MaxExtractedBytes возвращает предел распакованного размера в байтах.
func (c *Config) MaxExtractedBytes() int64 {
	return c.Ingest.MaxExtractedMB << 20
}

// MaxUploadBytes возвращает предел размера загружаемого файла в байтах.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadSizeMB << 20
}

// Validate проверяет, являются ли значения конфигурации допустимыми
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port должен быть действительным номером порта (1-65535)")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout должно быть положительным")
	}
	if c.Server.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("server.max_upload_size_mb должно быть положительным")
	}

	switch c.Database.Driver {
	case "duckdb", "pgx":
	default:
		return fmt.Errorf("database.driver должен быть одним из: duckdb, pgx")
	}
	if c.Database.Driver == "pgx" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn обязателен для драйвера pgx")
	}

	if c.Ingest.MaxExtractedMB <= 0 {
		return fmt.Errorf("ingest.max_extracted_mb должно быть положительным")
	}
	if c.Ingest.WindowDays <= 0 {
		return fmt.Errorf("ingest.window_days должно быть положительным")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size должно быть положительным")
	}
	// Загрузки пишутся во временный каталог, сканирование не должно их видеть.
	if c.Ingest.ScanDir != "" && samePath(c.Ingest.ScanDir, c.ScratchDir()) {
		return fmt.Errorf("ingest.scan_dir не должен совпадать с каталогом временных файлов (%s)", c.ScratchDir())
	}

	for i, s := range c.LLM.Servers {
		if s.APIKey == "" && s.BaseURL == "" {
			return fmt.Errorf("llm.servers[%d]: нужен api_key или base_url", i)
		}
	}
	if c.LLM.OperationTimeout <= 0 {
		return fmt.Errorf("llm.operation_timeout должно быть положительным")
	}
	if c.LLM.HealthCheckInterval <= 0 {
		return fmt.Errorf("llm.health_check_interval должно быть положительным")
	}

	if c.Processing.TaskTimeout < 0 {
		return fmt.Errorf("processing.task_timeout должно быть неотрицательным (0 для отсутствия ограничений)")
	}
	if c.Processing.CacheTTL <= 0 {
		return fmt.Errorf("processing.cache_ttl должно быть положительным")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// all good
	default:
		return fmt.Errorf("logging.level должен быть одним из: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format должен быть одним из: json, text")
	}

	return nil
}

// ScratchDir возвращает каталог для временных файлов и загрузок.
func (c *Config) ScratchDir() string {
	if c.Ingest.ScratchRoot != "" {
		return c.Ingest.ScratchRoot
	}
	return os.TempDir()
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// getEnv извлекает значение переменной окружения или возвращает значение по умолчанию, если она не установлена
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
