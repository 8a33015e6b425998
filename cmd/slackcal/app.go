package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"slack-calendar/internal/adapters/parser"
	"slack-calendar/internal/cache"
	"slack-calendar/internal/core/services"
	"slack-calendar/internal/llm/router"
	"slack-calendar/internal/metrics"
	"slack-calendar/internal/pkg/clock"
	"slack-calendar/internal/pkg/config"
	"slack-calendar/internal/ports"
	"slack-calendar/internal/server/usecase"
	"slack-calendar/internal/store"
)

// app хранит зависимости, общие для всех команд.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	clock     clock.Clock
	store     *store.Store
	router    *router.Router
	extractor ports.EventExtractor
	metrics   *metrics.Metrics
	cache     *cache.CacheStore
	ingest    *usecase.IngestArchiveUseCase
}

// newApp открывает хранилище и собирает конвейер.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     logger,
		clock:   clock.System(),
		metrics: metrics.New(),
	}
	a.cache = cache.NewCacheStore(a.clock)

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	st, err := store.Open(openCtx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st

	if servers := cfg.LLMServers(); len(servers) > 0 {
		a.router, err = router.NewRouter(
			router.WithServerConfigs(servers),
			router.WithHealthCheckInterval(cfg.LLM.HealthCheckInterval),
			router.WithLogger(logger),
		)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create llm router: %w", err)
		}
		a.extractor = services.NewExtractionService(a.router,
			services.WithBatchSize(cfg.Ingest.BatchSize),
			services.WithOperationTimeout(cfg.LLM.OperationTimeout),
			services.WithLogger(logger),
		)
		logger.Info("LLM extraction enabled", "servers", len(servers))
	} else {
		a.extractor = services.NewRuleExtractor(logger)
		logger.Info("LLM серверы не настроены, используется извлечение по правилам")
	}

	a.ingest = usecase.NewIngestArchiveUseCase(cfg, parser.NewJsonParser(), a.extractor, st, st,
		usecase.WithCache(a.cache),
		usecase.WithMetrics(a.metrics),
		usecase.WithClock(a.clock),
		usecase.WithLogger(logger),
	)
	return a, nil
}

// close освобождает ресурсы в обратном порядке.
func (a *app) close() {
	if a.router != nil {
		a.router.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("Failed to close store", "error", err)
		}
	}
}
