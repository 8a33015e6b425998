package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"slack-calendar/internal/adapters/exporter"
	"slack-calendar/internal/cache"
	"slack-calendar/internal/calendar"
	"slack-calendar/internal/domain"
	"slack-calendar/internal/metrics"
	"slack-calendar/internal/pkg/clock"
	"slack-calendar/internal/pkg/config"
	"slack-calendar/internal/ports"
	"slack-calendar/internal/server/usecase"
)

// Ingestor определяет интерфейс конвейера загрузки архивов.
type Ingestor interface {
	Run(ctx context.Context, req usecase.Request) (domain.IngestionReport, error)
	Analyze(ctx context.Context, src ports.DataSource) (domain.ArchiveSummary, error)
}

// Repository — запросы к хранилищу, которые обслуживает API.
type Repository interface {
	Ping(ctx context.Context) error
	ListChannels(ctx context.Context, since time.Time) ([]domain.ChannelSummary, error)
	ListMessages(ctx context.Context, channel, keyword string, since time.Time) ([]domain.Message, error)
	SearchMessages(ctx context.Context, keyword string, since time.Time, limit int) ([]domain.Message, error)
	UpcomingEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error)
	CreateEvent(ctx context.Context, in domain.ExtractedEvent, status string, now time.Time) (domain.Event, error)
	UpdateEvent(ctx context.Context, id int64, patch domain.EventPatch) (domain.Event, error)
	DeleteEvent(ctx context.Context, id int64) error
}

// Option настраивает Server.
type Option func(*Server)

// WithMetrics подключает метрики и маршрут /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock задает источник времени.
func WithClock(clk clock.Clock) Option {
	return func(s *Server) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithLogger задает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTimezone задает часовой пояс календарной ленты.
func WithTimezone(loc *time.Location) Option {
	return func(s *Server) { s.loc = loc }
}

// Server представляет HTTP-сервер
type Server struct {
	HTTPServer *http.Server
	cfg        *config.Config
	taskStore  *TaskStore
	cacheStore *cache.CacheStore
	ingestor   Ingestor
	repo       Repository
	extractor  ports.EventExtractor
	metrics    *metrics.Metrics
	clock      clock.Clock
	loc        *time.Location
	log        *slog.Logger

	stopTickers context.CancelFunc

	// runs учитывает запуски конвейера, которые переживают свой HTTP-запрос.
	runs       sync.WaitGroup
	runCtx     context.Context
	cancelRuns context.CancelFunc
}

// New создает новый экземпляр Server
func New(
	cfg *config.Config,
	ingestor Ingestor,
	repo Repository,
	extractor ports.EventExtractor,
	taskStore *TaskStore,
	cacheStore *cache.CacheStore,
	opts ...Option,
) *Server {
	s := &Server{
		cfg:        cfg,
		taskStore:  taskStore,
		cacheStore: cacheStore,
		ingestor:   ingestor,
		repo:       repo,
		extractor:  extractor,
		clock:      clock.System(),
		loc:        time.UTC,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "http_server")
	s.runCtx, s.cancelRuns = context.WithCancel(context.Background())

	s.HTTPServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Запуск тикеров для очистки просроченных задач и элементов кеша
	ctx, cancel := context.WithCancel(context.Background())
	s.stopTickers = cancel
	interval := cfg.Server.CleanupInterval
	if interval <= 0 {
		interval = config.DefaultCleanupInterval
	}
	s.taskStore.StartCleanupTicker(ctx, interval)
	if s.cacheStore != nil {
		s.cacheStore.StartCleanupTicker(ctx, interval)
	}
	return s
}

// Router собирает маршруты API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Промежуточное ПО
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/slack", func(r chi.Router) {
			r.Post("/upload", s.handleUpload)
			r.Post("/scan", s.handleScan)
			r.Post("/analyze", s.handleAnalyze)
			r.Post("/extract", s.handleExtract)
			r.Get("/channels", s.handleChannels)
			r.Get("/messages/{channel}", s.handleMessages)
			r.Get("/search", s.handleSearch)
		})
		r.Get("/tasks/{taskID}", s.handleTask)

		r.Route("/events", func(r chi.Router) {
			r.Get("/upcoming", s.handleUpcoming)
			r.Get("/export.xlsx", s.handleExportXLSX)
			r.Post("/", s.handleCreateEvent)
			r.Put("/{id}", s.handleUpdateEvent)
			r.Delete("/{id}", s.handleDeleteEvent)
		})
		r.Get("/calendar/export", s.handleCalendar)
	})
	return r
}

func (s *Server) icsExporter() ports.Exporter {
	return calendar.NewICSExporter(
		calendar.WithLocation(s.loc),
		calendar.WithClock(s.clock),
		calendar.WithLogger(s.log),
	)
}

func (s *Server) xlsxExporter() ports.Exporter {
	return exporter.NewXLSXExporter()
}

// ListenAndServe запускает HTTP-сервер
func (s *Server) ListenAndServe() error {
	return s.HTTPServer.ListenAndServe()
}

// Shutdown корректно завершает работу HTTP-сервера и дожидается фоновых
// запусков, чтобы каждый из них успел удалить свои временные файлы.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Завершение работы HTTP-сервера")
	s.stopTickers()
	err := s.HTTPServer.Shutdown(ctx)
	if werr := s.waitRuns(ctx); werr != nil {
		err = errors.Join(err, werr)
	}
	return err
}

// waitRuns ждет фоновые запуски до истечения ctx. После этого загрузки
// отменяются, и ожидание продолжается до завершения их очистки.
func (s *Server) waitRuns(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelRuns()
		return nil
	case <-ctx.Done():
	}

	s.log.Warn("Shutdown timeout, cancelling background runs")
	s.cancelRuns()
	<-done
	return fmt.Errorf("background runs cancelled: %w", ctx.Err())
}
