package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/ports"
)

// DefaultBatchSize — количество сообщений в одном запросе к модели.
const DefaultBatchSize = 200

// ErrMissingEvents — ответ модели не содержит массива events.
var ErrMissingEvents = errors.New("response has no events array")

const extractionSystemPrompt = `You extract calendar events from Slack messages.
Identify actionable events such as meetings, deadlines, exams and announcements.
Ignore social chatter, spam and irrelevant messages.

Input: a JSON array of messages, each with id, ts, user, channel and text.
Output: a JSON object with a single key "events" holding an array of objects:
{
  "events": [
    {
      "title": "brief title",
      "date": "YYYY-MM-DD, inferred from the text or the message ts",
      "start_time": "HH:MM in 24-hour format, optional",
      "end_time": "HH:MM in 24-hour format, optional",
      "description": "brief context",
      "source_channel": "channel of the message",
      "raw_message_id": "id of the message the event came from"
    }
  ]
}

Rules:
- Resolve relative dates ("tomorrow", "next Friday") against the message ts.
- Omit start_time and end_time when no time is mentioned.
- Return {"events": []} when nothing qualifies.
- Output only valid JSON.`

// Config хранит конфигурацию для ExtractionService.
type Config struct {
	// BatchSize — размер пачки сообщений.
	BatchSize int
	// OperationTimeout — таймаут одного запроса к модели.
	OperationTimeout time.Duration
}

// Option — функциональная опция для настройки ExtractionService.
type Option func(*ExtractionService)

// WithBatchSize устанавливает размер пачки.
func WithBatchSize(n int) Option {
	return func(s *ExtractionService) {
		if n > 0 {
			s.config.BatchSize = n
		}
	}
}

// WithOperationTimeout устанавливает таймаут для одного запроса.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *ExtractionService) {
		if d > 0 {
			s.config.OperationTimeout = d
		}
	}
}

// WithLogger устанавливает логгер для сервиса.
func WithLogger(l *slog.Logger) Option {
	return func(s *ExtractionService) {
		if l != nil {
			s.log = l
		}
	}
}

// ExtractionService извлекает события из сообщений с помощью языковой модели.
// Пачки обрабатываются последовательно; сбой пачки не прерывает остальные.
type ExtractionService struct {
	router ports.LLMRouter
	config Config
	log    *slog.Logger
}

// NewExtractionService создает новый ExtractionService с использованием функциональных опций.
func NewExtractionService(r ports.LLMRouter, opts ...Option) *ExtractionService {
	s := &ExtractionService{
		router: r,
		config: Config{
			BatchSize:        DefaultBatchSize,
			OperationTimeout: 60 * time.Second,
		},
		log: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// extractionItem — элемент запроса к модели.
type extractionItem struct {
	ID      string `json:"id"`
	TS      string `json:"ts"`
	User    string `json:"user"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// Extract обрабатывает сообщения пачками. При сбое части пачек возвращает события
// успешных пачек и *domain.ExtractionError.
func (s *ExtractionService) Extract(ctx context.Context, messages []domain.Message) ([]domain.ExtractedEvent, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	size := s.config.BatchSize
	total := (len(messages) + size - 1) / size
	s.log.InfoContext(ctx, "Starting event extraction", "messages", len(messages), "batches", total, "batch_size", size)

	var (
		events   []domain.ExtractedEvent
		failures []domain.BatchFailure
	)
	for i := 0; i < total; i++ {
		batch := messages[i*size : min((i+1)*size, len(messages))]

		batchEvents, err := s.processBatch(ctx, batch)
		if err != nil {
			s.log.WarnContext(ctx, "Extraction batch failed", "batch", i+1, "total", total, "size", len(batch), "error", err)
			failures = append(failures, domain.BatchFailure{Index: i, Size: len(batch), Err: err})
			continue
		}
		s.log.DebugContext(ctx, "Extraction batch done", "batch", i+1, "total", total, "events", len(batchEvents))
		events = append(events, batchEvents...)
	}

	s.log.InfoContext(ctx, "Event extraction finished", "events", len(events), "failed_batches", len(failures))
	if len(failures) > 0 {
		return events, &domain.ExtractionError{Batches: total, Failed: failures}
	}
	return events, nil
}

func (s *ExtractionService) processBatch(ctx context.Context, batch []domain.Message) ([]domain.ExtractedEvent, error) {
	items := make([]extractionItem, len(batch))
	byID := make(map[string]domain.Message, len(batch))
	for i, m := range batch {
		id := m.CompositeID()
		byID[id] = m
		items[i] = extractionItem{
			ID:      id,
			TS:      m.Timestamp.UTC().Format(time.RFC3339),
			User:    m.User,
			Channel: m.Channel,
			Text:    m.Text,
		}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	client, err := s.router.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("get llm client: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	content, err := client.CompleteJSON(opCtx, extractionSystemPrompt, string(payload))
	if err != nil {
		return nil, fmt.Errorf("llm call via %s: %w", client.ID(), err)
	}

	raw, err := decodeEventsResponse(content)
	if err != nil {
		return nil, err
	}

	events := make([]domain.ExtractedEvent, 0, len(raw))
	for _, ev := range raw {
		if src, ok := byID[ev.RawMessageID]; ok && ev.SourceChannel == "" {
			ev.SourceChannel = src.Channel
		}
		// Некорректное время не повод терять событие целиком.
		if _, err := domain.NormalizeClock(ev.StartTime); err != nil {
			ev.StartTime = ""
		}
		if _, err := domain.NormalizeClock(ev.EndTime); err != nil {
			ev.EndTime = ""
		}
		norm, err := ev.Normalized()
		if err != nil {
			s.log.DebugContext(ctx, "Dropping invalid extracted event", "title", ev.Title, "error", err)
			continue
		}
		events = append(events, norm)
	}
	return events, nil
}

// decodeEventsResponse разбирает ответ вида {"events": [...]}.
// Элементы, которые не удалось декодировать, пропускаются.
func decodeEventsResponse(content string) ([]domain.ExtractedEvent, error) {
	var envelope struct {
		Events *[]json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return nil, fmt.Errorf("parse llm response: %w", err)
	}
	if envelope.Events == nil {
		return nil, ErrMissingEvents
	}

	out := make([]domain.ExtractedEvent, 0, len(*envelope.Events))
	for _, item := range *envelope.Events {
		var ev domain.ExtractedEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
