// Package scheduler периодически запускает сканирование каталога с архивами.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"slack-calendar/internal/domain"
	applog "slack-calendar/internal/log"
	"slack-calendar/internal/server/usecase"
)

// Runner выполняет один запуск конвейера.
type Runner interface {
	Run(ctx context.Context, req usecase.Request) (domain.IngestionReport, error)
}

// Option настраивает Scheduler.
type Option func(*Scheduler)

// WithScanDir задает каталог сканирования. Пусто - каталог из конфигурации конвейера.
func WithScanDir(dir string) Option {
	return func(s *Scheduler) { s.scanDir = dir }
}

// WithTimeout ограничивает длительность одного запуска.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithLocation задает часовой пояс расписания.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger задает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// Scheduler запускает scan-and-replace по cron-расписанию.
// Пересекающиеся запуски пропускаются.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	scanDir string
	timeout time.Duration
	loc     *time.Location
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New создает планировщик. Некорректное выражение spec дает ошибку.
func New(spec string, runner Runner, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		runner: runner,
		loc:    time.Local,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "scheduler")
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cronLog := &applog.CronLogger{Logger: s.log}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		s.cancel()
		return nil, fmt.Errorf("invalid scan schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start запускает планировщик в фоне.
func (s *Scheduler) Start() {
	s.log.Info("Scheduler started", "next_run", s.Next())
	s.cron.Start()
}

// Next возвращает время следующего запуска.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(time.Now().In(s.loc))
}

// Stop останавливает расписание, отменяет текущий запуск и ждет его завершения
// не дольше, чем позволяет ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("Scheduler stop timed out")
	}
}

func (s *Scheduler) tick() {
	if _, err := s.RunNow(s.ctx); err != nil {
		s.log.Warn("Scheduled scan failed", "error", err)
	}
}

// RunNow выполняет сканирование немедленно.
func (s *Scheduler) RunNow(ctx context.Context) (domain.IngestionReport, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.runner.Run(ctx, usecase.Request{Flow: domain.FlowScan, ScanDir: s.scanDir})
	if err != nil {
		return report, err
	}
	s.log.Info("Scheduled scan finished",
		"batch_id", report.BatchID,
		"archive", report.ArchivePath,
		"events_inserted", report.EventsInserted,
		"degraded", report.Degraded,
	)
	return report, nil
}
