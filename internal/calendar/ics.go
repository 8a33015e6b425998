// Package calendar формирует iCalendar-ленту из сохраненных событий.
package calendar

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	ics "github.com/arran4/golang-ical"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/pkg/clock"
	"slack-calendar/internal/ports"
)

const (
	productID       = "-//slack-calendar//events//EN"
	defaultDuration = time.Hour
	dateTimeLayout  = "2006-01-02 15:04"
)

// ICSExporter сериализует события в формат iCalendar.
type ICSExporter struct {
	loc   *time.Location
	clock clock.Clock
	log   *slog.Logger
}

// Option настраивает ICSExporter.
type Option func(*ICSExporter)

// WithLocation задает часовой пояс, в котором записаны дата и время событий.
func WithLocation(loc *time.Location) Option {
	return func(e *ICSExporter) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClock задает источник времени для DTSTAMP.
func WithClock(clk clock.Clock) Option {
	return func(e *ICSExporter) {
		if clk != nil {
			e.clock = clk
		}
	}
}

// WithLogger задает логгер.
func WithLogger(log *slog.Logger) Option {
	return func(e *ICSExporter) {
		if log != nil {
			e.log = log
		}
	}
}

// NewICSExporter создает новый экземпляр ICSExporter.
func NewICSExporter(opts ...Option) ports.Exporter {
	e := &ICSExporter{loc: time.UTC, clock: clock.System(), log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UID возвращает стабильный идентификатор события в ленте.
func UID(ev domain.Event) string {
	return fmt.Sprintf("event-%d@slack-calendar", ev.ID)
}

// Export пишет календарь в w. События без времени начала выгружаются как
// события на весь день, без времени окончания длятся час.
func (e *ICSExporter) Export(w io.Writer, events []domain.Event) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)

	stamp := e.clock.Now().UTC()
	for _, ev := range events {
		if err := e.addEvent(cal, ev, stamp); err != nil {
			e.log.Warn("Skipping event in calendar export", "id", ev.ID, "error", err)
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

func (e *ICSExporter) addEvent(cal *ics.Calendar, ev domain.Event, stamp time.Time) error {
	day, err := time.ParseInLocation(time.DateOnly, ev.Date, e.loc)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", ev.Date, err)
	}

	var start, end time.Time
	allDay := ev.StartTime == ""
	if !allDay {
		start, err = time.ParseInLocation(dateTimeLayout, ev.Date+" "+ev.StartTime, e.loc)
		if err != nil {
			return fmt.Errorf("parse start time %q: %w", ev.StartTime, err)
		}
		end = start.Add(defaultDuration)
		if ev.EndTime != "" {
			if t, err := time.ParseInLocation(dateTimeLayout, ev.Date+" "+ev.EndTime, e.loc); err == nil && t.After(start) {
				end = t
			}
		}
	}

	vevent := cal.AddEvent(UID(ev))
	vevent.SetDtStampTime(stamp)
	vevent.SetSummary(ev.Title)
	if ev.Description != "" {
		vevent.SetDescription(ev.Description)
	}
	if ev.SourceChannel != "" {
		vevent.AddProperty(ics.ComponentPropertyCategories, ev.SourceChannel)
	}

	if allDay {
		vevent.SetAllDayStartAt(day)
		vevent.SetAllDayEndAt(day.AddDate(0, 0, 1))
		return nil
	}
	vevent.SetStartAt(start)
	vevent.SetEndAt(end)
	return nil
}
