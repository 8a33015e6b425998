package services

import (
	"time"

	"slack-calendar/internal/domain"
)

// DefaultWindowDays — окно актуальности сообщений по умолчанию.
const DefaultWindowDays = 30

// FilterRecent оставляет сообщения с отметкой времени не раньше now − windowDays.
// Граница включительная. Входной срез не изменяется.
func FilterRecent(messages []domain.Message, windowDays int, now time.Time) []domain.Message {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	cutoff := now.Add(-time.Duration(windowDays) * 24 * time.Hour)

	kept := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if !m.Timestamp.Before(cutoff) {
			kept = append(kept, m)
		}
	}
	return kept
}
