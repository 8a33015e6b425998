package services

import (
	"context"
	"log/slog"
	"regexp"
	"unicode/utf8"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"slack-calendar/internal/domain"
)

const maxRuleTitleRunes = 100

// timeMentioned распознает, указано ли в найденном фрагменте время суток.
var timeMentioned = regexp.MustCompile(`(?i)\d{1,2}:\d{2}|\d\s*[ap]\.?m\b|\bnoon\b|\bmidnight\b`)

// RuleExtractor извлекает события без обращения к модели: ищет в тексте
// упоминания дат на естественном языке.
type RuleExtractor struct {
	parser *when.Parser
	log    *slog.Logger
}

// NewRuleExtractor создает RuleExtractor с английскими и общими правилами.
func NewRuleExtractor(log *slog.Logger) *RuleExtractor {
	if log == nil {
		log = slog.Default()
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &RuleExtractor{parser: w, log: log}
}

// Extract возвращает по одному событию на сообщение, в котором найдена дата.
// Относительные даты разрешаются от момента отправки сообщения.
func (r *RuleExtractor) Extract(ctx context.Context, messages []domain.Message) ([]domain.ExtractedEvent, error) {
	var events []domain.ExtractedEvent
	for _, m := range messages {
		if err := ctx.Err(); err != nil {
			return events, err
		}

		res, err := r.parser.Parse(m.Text, m.Timestamp.UTC())
		if err != nil {
			r.log.DebugContext(ctx, "Date parser failed on message", "channel", m.Channel, "error", err)
			continue
		}
		if res == nil {
			continue
		}

		ev := domain.ExtractedEvent{
			Title:         truncateRunes(m.Text, maxRuleTitleRunes),
			Date:          res.Time.Format(domain.DateLayout),
			Description:   m.Text,
			SourceChannel: m.Channel,
			RawMessageID:  m.CompositeID(),
		}
		if timeMentioned.MatchString(res.Text) {
			ev.StartTime = res.Time.Format(domain.ClockLayout)
		}

		norm, err := ev.Normalized()
		if err != nil {
			continue
		}
		events = append(events, norm)
	}

	r.log.InfoContext(ctx, "Rule-based extraction finished", "messages", len(messages), "events", len(events))
	return events, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
