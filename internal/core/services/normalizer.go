package services

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/pkg/clock"
)

const (
	messageType       = "message"
	unknownAuthor     = "unknown"
	defaultAttachment = "attachment"
)

// fieldResolver извлекает кандидата из записи; пустая строка — "нет значения".
type fieldResolver func(r domain.RawRecord) string

// authorResolvers перечислены в порядке приоритета.
var authorResolvers = []fieldResolver{
	func(r domain.RawRecord) string { return r.User },
	func(r domain.RawRecord) string { return r.BotID },
	func(r domain.RawRecord) string { return r.Username },
}

// textResolvers перечислены в порядке приоритета.
var textResolvers = []fieldResolver{
	func(r domain.RawRecord) string { return r.Text },
	func(r domain.RawRecord) string { return firstAttachment(r).Text },
	func(r domain.RawRecord) string { return firstAttachment(r).Fallback },
	func(r domain.RawRecord) string { return firstAttachment(r).Pretext },
	func(r domain.RawRecord) string {
		if len(r.Files) == 0 {
			return ""
		}
		name := strings.TrimSpace(r.Files[0].Name)
		if name == "" {
			name = defaultAttachment
		}
		return fmt.Sprintf("[File: %s]", name)
	},
}

func firstAttachment(r domain.RawRecord) domain.Attachment {
	if len(r.Attachments) == 0 {
		return domain.Attachment{}
	}
	return r.Attachments[0]
}

func resolve(r domain.RawRecord, resolvers []fieldResolver) string {
	for _, fn := range resolvers {
		if v := strings.TrimSpace(fn(r)); v != "" {
			return v
		}
	}
	return ""
}

// Normalizer приводит запись экспорта к domain.Message.
type Normalizer struct {
	clock             clock.Clock
	log               *slog.Logger
	dropUntimestamped bool
}

// NewNormalizer создает Normalizer. Записи без корректного ts получают текущее
// время clk, если dropUntimestamped не выставлен.
func NewNormalizer(clk clock.Clock, log *slog.Logger, dropUntimestamped bool) *Normalizer {
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{clock: clk, log: log, dropUntimestamped: dropUntimestamped}
}

// Normalize возвращает сообщение и true, либо false, если запись нужно отбросить.
func (n *Normalizer) Normalize(raw domain.RawRecord, channel string) (msg domain.Message, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			n.log.Warn("Dropping record after normalization panic", "channel", channel, "panic", p)
			msg, ok = domain.Message{}, false
		}
	}()

	if raw.Type != "" && raw.Type != messageType {
		return domain.Message{}, false
	}

	text := resolve(raw, textResolvers)
	if text == "" {
		return domain.Message{}, false
	}

	author := resolve(raw, authorResolvers)
	if author == "" {
		author = unknownAuthor
	}

	ts, err := ParseSlackTS(string(raw.TS))
	if err != nil {
		if n.dropUntimestamped {
			n.log.Debug("Dropping record without usable timestamp", "channel", channel, "ts", raw.TS, "error", err)
			return domain.Message{}, false
		}
		ts = n.clock.Now().UTC()
	}

	return domain.Message{
		Channel:   channel,
		User:      author,
		Timestamp: ts,
		Text:      text,
	}, true
}

// ParseSlackTS разбирает строку вида "1700000000.000100" в момент времени UTC.
// Целая и дробная части разбираются отдельно, чтобы не терять точность float64.
func ParseSlackTS(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		whole := int64(f)
		return time.Unix(whole, int64((f-float64(whole))*1e9)).UTC(), nil
	}

	secPart, fracPart, hasFrac := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}

	var nanos int64
	if hasFrac && fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		frac, err := strconv.ParseUint(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp fraction %q: %w", s, err)
		}
		for i := len(fracPart); i < 9; i++ {
			frac *= 10
		}
		nanos = int64(frac)
		if sec < 0 {
			nanos = -nanos
		}
	}
	return time.Unix(sec, nanos).UTC(), nil
}
