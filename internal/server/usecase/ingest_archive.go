package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"slack-calendar/internal/adapters/archive"
	"slack-calendar/internal/cache"
	"slack-calendar/internal/core/services"
	"slack-calendar/internal/domain"
	"slack-calendar/internal/metrics"
	"slack-calendar/internal/pkg/clock"
	"slack-calendar/internal/pkg/config"
	"slack-calendar/internal/ports"
)

// Request описывает один запуск конвейера.
type Request struct {
	Flow domain.Flow
	// ArchivePath — явный путь к архиву (upload, file).
	ArchivePath string
	// ScanDir — каталог, в котором ищется самый свежий архив (scan).
	ScanDir string
}

// Option настраивает IngestArchiveUseCase.
type Option func(*IngestArchiveUseCase)

// WithCache включает подавление повторной загрузки одинаковых архивов.
func WithCache(c *cache.CacheStore) Option {
	return func(uc *IngestArchiveUseCase) { uc.cache = c }
}

// WithMetrics задает сборщик метрик.
func WithMetrics(m *metrics.Metrics) Option {
	return func(uc *IngestArchiveUseCase) { uc.metrics = m }
}

// WithClock задает источник времени.
func WithClock(clk clock.Clock) Option {
	return func(uc *IngestArchiveUseCase) {
		if clk != nil {
			uc.clock = clk
		}
	}
}

// WithLogger задает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(uc *IngestArchiveUseCase) {
		if l != nil {
			uc.log = l
		}
	}
}

// IngestArchiveUseCase проводит архив экспорта через все стадии конвейера:
// поиск, распаковку, обход каналов, фильтрацию, сохранение и извлечение событий.
type IngestArchiveUseCase struct {
	cfg       *config.Config
	locator   *archive.Locator
	unpacker  *archive.Extractor
	walker    *services.Walker
	extractor ports.EventExtractor
	messages  ports.MessageRepository
	events    ports.EventRepository
	cache     *cache.CacheStore
	metrics   *metrics.Metrics
	clock     clock.Clock
	log       *slog.Logger
}

// NewIngestArchiveUseCase создает новый экземпляр IngestArchiveUseCase.
func NewIngestArchiveUseCase(
	cfg *config.Config,
	parser ports.Parser,
	extractor ports.EventExtractor,
	messages ports.MessageRepository,
	events ports.EventRepository,
	opts ...Option,
) *IngestArchiveUseCase {
	uc := &IngestArchiveUseCase{
		cfg:       cfg,
		extractor: extractor,
		messages:  messages,
		events:    events,
		clock:     clock.System(),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	uc.log = uc.log.With("component", "ingest_pipeline")
	uc.locator = archive.NewLocator(uc.log)
	uc.unpacker = archive.NewExtractor(archive.WithMaxBytes(cfg.MaxExtractedBytes()), archive.WithLogger(uc.log))
	uc.walker = services.NewWalker(parser, services.NewNormalizer(uc.clock, uc.log, cfg.Ingest.DropUntimestamped), uc.log)
	return uc
}

// run хранит состояние одного запуска.
type run struct {
	req     Request
	report  domain.IngestionReport
	archive string
	scratch string
	log     *slog.Logger
}

func (r *run) enter(state domain.PipelineState) {
	r.report.State = state
	r.log.Debug("Pipeline state", "state", state)
}

func (r *run) fail(err error) error {
	r.report.Success = false
	r.report.FailedAt = r.report.State
	r.report.Error = err.Error()
	r.log.Error("Ingestion failed", "state", r.report.State, "error", err)
	return fmt.Errorf("%s: %w", r.report.State, err)
}

// Run выполняет один запуск. Отчет возвращается всегда; ошибка означает
// фатальный сбой, стадия которого записана в отчете в FailedAt.
func (uc *IngestArchiveUseCase) Run(ctx context.Context, req Request) (report domain.IngestionReport, err error) {
	started := uc.clock.Now().UTC()
	batchID := strconv.FormatInt(started.UnixMilli(), 10)
	r := &run{
		req: req,
		report: domain.IngestionReport{
			BatchID:   batchID,
			Flow:      req.Flow,
			StartedAt: started,
		},
		log: uc.log.With("batch_id", batchID, "flow", req.Flow),
	}

	defer func() {
		uc.cleanup(r)
		if err == nil {
			r.report.Success = true
			r.enter(domain.StateDone)
		} else {
			r.report.State = domain.StateFailed
		}
		r.report.FinishedAt = uc.clock.Now().UTC()
		uc.metrics.ObserveReport(r.report)
		report = r.report
	}()

	r.enter(domain.StateLocating)
	if r.archive, err = uc.locate(req); err != nil {
		return r.report, r.fail(err)
	}
	r.report.ArchivePath = r.archive
	r.log = r.log.With("archive", r.archive)

	var hash string
	if req.Flow == domain.FlowUpload && uc.cache != nil {
		if hash, err = cache.CalculateFileHash(r.archive); err != nil {
			return r.report, r.fail(domain.NewArchiveError(domain.ErrIO, r.archive, err))
		}
		if item, found := uc.cache.Get(hash); found {
			r.log.Info("Попадание в кеш для архива", "hash", hash, "cached_batch_id", item.Report.BatchID)
			cached := item.Report
			cached.Cached = true
			cached.ArchivePath = r.archive
			cached.StartedAt = started
			r.report = cached
			return r.report, nil
		}
	}

	if err = uc.process(ctx, r); err != nil {
		return r.report, err
	}

	if hash != "" {
		uc.cache.Put(hash, r.report, uc.cfg.Processing.CacheTTL)
	}
	r.log.Info("Ingestion finished",
		"messages_stored", r.report.MessagesStored,
		"events_inserted", r.report.EventsInserted,
		"events_skipped", r.report.EventsSkipped,
		"degraded", r.report.Degraded,
	)
	return r.report, nil
}

func (uc *IngestArchiveUseCase) locate(req Request) (string, error) {
	switch req.Flow {
	case domain.FlowScan:
		dir := req.ScanDir
		if dir == "" {
			dir = uc.cfg.Ingest.ScanDir
		}
		match := archive.HasSuffix(config.DefaultArchiveSuffix)
		if prefix := uc.cfg.Ingest.ArchivePrefix; prefix != "" {
			match = archive.All(archive.HasPrefix(prefix), match)
		}
		return uc.locator.Latest(dir, match)
	case domain.FlowUpload, domain.FlowFile:
		return uc.locator.Resolve(req.ArchivePath)
	default:
		return "", fmt.Errorf("unknown flow %q", req.Flow)
	}
}

func (uc *IngestArchiveUseCase) process(ctx context.Context, r *run) error {
	r.enter(domain.StateExtracting)
	r.scratch = filepath.Join(uc.cfg.ScratchDir(), r.report.BatchID+"-"+uuid.NewString())
	if _, err := uc.unpacker.ExtractToDir(ctx, r.archive, r.scratch); err != nil {
		return r.fail(err)
	}

	r.enter(domain.StateWalking)
	walked, err := uc.walker.Walk(ctx, os.DirFS(r.scratch))
	if err != nil {
		return r.fail(err)
	}
	r.report.Channels = walked.Channels
	r.report.MessagesParsed = len(walked.Messages)
	r.report.RecordsDropped = walked.RecordsDropped
	r.report.FileFailures = walked.Failures

	r.enter(domain.StateFiltering)
	retained := services.FilterRecent(walked.Messages, uc.cfg.Ingest.WindowDays, uc.clock.Now())
	r.report.MessagesRetained = len(retained)

	replace := r.req.Flow == domain.FlowScan
	if replace {
		r.enter(domain.StateClearing)
		cleared, err := uc.events.ClearEvents(ctx)
		if err != nil {
			return r.fail(err)
		}
		r.report.EventsCleared = cleared
	}

	r.enter(domain.StatePersistingMessages)
	stored, err := uc.messages.InsertMessages(ctx, r.report.BatchID, retained, uc.clock.Now().UTC())
	if err != nil {
		return r.fail(err)
	}
	r.report.MessagesStored = stored

	r.enter(domain.StateExtractingEvents)
	extracted, err := uc.extractor.Extract(ctx, retained)
	if err != nil {
		r.report.Degraded = true
		var ee *domain.ExtractionError
		if errors.As(err, &ee) {
			r.report.FailedBatches = len(ee.Failed)
		}
		r.log.Warn("Event extraction degraded", "events", len(extracted), "error", err)
	}
	r.report.EventsExtracted = len(extracted)

	r.enter(domain.StatePersistingEvents)
	res, err := uc.events.PersistEvents(ctx, extracted, replace, uc.clock.Now().UTC())
	if err != nil {
		return r.fail(err)
	}
	r.report.EventsInserted = res.Inserted
	r.report.EventsSkipped = res.Skipped
	return nil
}

// cleanup удаляет временный каталог на любом исходе, а загруженный архив -
// только в сценарии upload.
func (uc *IngestArchiveUseCase) cleanup(r *run) {
	r.enter(domain.StateCleanup)

	if r.scratch != "" {
		if err := os.RemoveAll(r.scratch); err != nil {
			r.log.Warn("Не удалось удалить временный каталог", "path", r.scratch, "error", err)
		}
	}
	if r.req.Flow == domain.FlowUpload && r.req.ArchivePath != "" {
		if err := os.Remove(r.req.ArchivePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.log.Warn("Не удалось удалить загруженный архив", "path", r.req.ArchivePath, "error", err)
		}
	}
}

// Analyze разбирает архив в памяти и возвращает статистику по каналам без
// сохранения в хранилище.
func (uc *IngestArchiveUseCase) Analyze(ctx context.Context, src ports.DataSource) (domain.ArchiveSummary, error) {
	data, err := src.Fetch()
	if err != nil {
		return domain.ArchiveSummary{}, err
	}
	fsys, size, err := uc.unpacker.OpenInMemory(ctx, data)
	if err != nil {
		return domain.ArchiveSummary{}, err
	}
	walked, err := uc.walker.Walk(ctx, fsys)
	if err != nil {
		return domain.ArchiveSummary{}, err
	}
	retained := services.FilterRecent(walked.Messages, uc.cfg.Ingest.WindowDays, uc.clock.Now())

	byChannel := make(map[string]*domain.ChannelSummary, len(walked.Channels))
	summary := domain.ArchiveSummary{
		MessagesParsed:   len(walked.Messages),
		MessagesRetained: len(retained),
		RecordsDropped:   walked.RecordsDropped,
		FileFailures:     walked.Failures,
		DecompressedSize: size,
	}
	for _, ch := range walked.Channels {
		byChannel[ch] = &domain.ChannelSummary{Name: ch}
	}
	for _, m := range retained {
		cs, ok := byChannel[m.Channel]
		if !ok {
			cs = &domain.ChannelSummary{Name: m.Channel}
			byChannel[m.Channel] = cs
		}
		cs.MessageCount++
		if m.Timestamp.After(cs.LastMessageAt) {
			cs.LastMessageAt = m.Timestamp
		}
	}
	for _, cs := range byChannel {
		summary.Channels = append(summary.Channels, *cs)
	}
	sort.Slice(summary.Channels, func(i, j int) bool {
		return summary.Channels[i].Name < summary.Channels[j].Name
	})
	return summary, nil
}
