// Package archive находит архивы экспорта и безопасно распаковывает их.
package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"slack-calendar/internal/domain"
)

// Match — предикат имени файла архива.
type Match func(name string) bool

// HasSuffix совпадает с именами, оканчивающимися на suffix (без учета регистра).
func HasSuffix(suffix string) Match {
	suffix = strings.ToLower(suffix)
	return func(name string) bool {
		return strings.HasSuffix(strings.ToLower(name), suffix)
	}
}

// HasPrefix совпадает с именами, начинающимися с prefix.
func HasPrefix(prefix string) Match {
	return func(name string) bool {
		return strings.HasPrefix(name, prefix)
	}
}

// All совпадает, если совпали все предикаты.
func All(matches ...Match) Match {
	return func(name string) bool {
		for _, m := range matches {
			if m != nil && !m(name) {
				return false
			}
		}
		return true
	}
}

// Locator выбирает архив для обработки. Файловую систему не изменяет.
type Locator struct {
	log *slog.Logger
}

// NewLocator создает Locator.
func NewLocator(log *slog.Logger) *Locator {
	if log == nil {
		log = slog.Default()
	}
	return &Locator{log: log.With("component", "archive_locator")}
}

// Resolve проверяет явно указанный путь к архиву.
func (l *Locator) Resolve(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", domain.NewArchiveError(domain.ErrNotFound, path, err)
	}
	if !info.Mode().IsRegular() {
		return "", domain.NewArchiveError(domain.ErrNotFound, path, fmt.Errorf("not a regular file"))
	}
	return path, nil
}

// Latest возвращает самый свежий по времени изменения файл в dir,
// имя которого удовлетворяет match.
func (l *Locator) Latest(dir string, match Match) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", domain.NewArchiveError(domain.ErrNotFound, dir, err)
	}

	var (
		latest    string
		latestMod time.Time
		matched   int
	)
	for _, e := range entries {
		if !e.Type().IsRegular() || (match != nil && !match(e.Name())) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			l.log.Debug("Skipping archive candidate", "name", e.Name(), "error", err)
			continue
		}
		matched++
		// При равном времени изменения выигрывает имя, которое больше лексикографически.
		if latest == "" || info.ModTime().After(latestMod) ||
			(info.ModTime().Equal(latestMod) && e.Name() > filepath.Base(latest)) {
			latest = filepath.Join(dir, e.Name())
			latestMod = info.ModTime()
		}
	}

	if latest == "" {
		return "", domain.NewArchiveError(domain.ErrNotFound, dir, fmt.Errorf("no matching archive"))
	}

	l.log.Info("Located latest archive", "path", latest, "candidates", matched, "modified", latestMod)
	return latest, nil
}
