package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb"
)

const (
	// DriverDuckDB — встроенная база, используется по умолчанию.
	DriverDuckDB = "duckdb"
	// DriverPgx — PostgreSQL через pgx.
	DriverPgx = "pgx"
)

// Store реализует хранилище сообщений и событий поверх database/sql.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// New оборачивает уже открытое подключение.
func New(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log.With("component", "store")}
}

// Open открывает базу, проверяет соединение и применяет схему.
func Open(ctx context.Context, driver, dsn string, log *slog.Logger) (*Store, error) {
	switch driver {
	case DriverDuckDB, DriverPgx:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	s := New(db, log)
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Info("Database ready", "driver", driver)
	return s, nil
}

// Migrate создает таблицы, если их еще нет.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Ping проверяет доступность базы.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close закрывает подключение.
func (s *Store) Close() error {
	return s.db.Close()
}

// nullable превращает пустую строку в NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
