package log

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CronLogger адаптирует slog.Logger под интерфейс cron.Logger библиотеки robfig/cron.
type CronLogger struct {
	Logger *slog.Logger
}

var _ cron.Logger = (*CronLogger)(nil)

// Info реализует метод интерфейса cron.Logger.
// Планировщик сообщает о каждом запуске, поэтому это уровень debug.
func (a *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	a.Logger.Debug(msg, keysAndValues...)
}

// Error реализует метод интерфейса cron.Logger.
func (a *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	a.Logger.Error(msg, append(keysAndValues, "error", err)...)
}
