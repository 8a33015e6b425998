package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout — формат поля date.
	DateLayout = "2006-01-02"
	// ClockLayout — формат полей start_time и end_time.
	ClockLayout = "15:04"
)

// NormalizeClock приводит время к виду HH:MM. Пустая строка допустима.
func NormalizeClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, layout := range []string{ClockLayout, "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(ClockLayout), nil
		}
	}
	return "", fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidEvent, s)
}

// Normalized проверяет обязательные поля и приводит дату и время к каноническому виду.
func (e ExtractedEvent) Normalized() (ExtractedEvent, error) {
	e.Title = strings.TrimSpace(e.Title)
	e.SourceChannel = strings.TrimSpace(e.SourceChannel)
	e.Description = strings.TrimSpace(e.Description)
	e.RawMessageID = strings.TrimSpace(e.RawMessageID)

	if e.Title == "" {
		return e, fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if e.SourceChannel == "" {
		return e, fmt.Errorf("%w: source_channel is required", ErrInvalidEvent)
	}

	d, err := time.Parse(DateLayout, strings.TrimSpace(e.Date))
	if err != nil {
		return e, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidEvent, e.Date)
	}
	e.Date = d.Format(DateLayout)

	if e.StartTime, err = NormalizeClock(e.StartTime); err != nil {
		return e, err
	}
	if e.EndTime, err = NormalizeClock(e.EndTime); err != nil {
		return e, err
	}
	return e, nil
}

// Apply применяет изменения к событию и возвращает результат.
func (p EventPatch) Apply(ev Event) Event {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&ev.Title, p.Title)
	set(&ev.Date, p.Date)
	set(&ev.StartTime, p.StartTime)
	set(&ev.EndTime, p.EndTime)
	set(&ev.Description, p.Description)
	set(&ev.SourceChannel, p.SourceChannel)
	set(&ev.Status, p.Status)
	if strings.TrimSpace(ev.Status) == "" {
		ev.Status = EventStatusPending
	}
	return ev
}
