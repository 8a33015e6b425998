package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/ports"
)

const dataFileExt = ".json"

// ChannelFile — дневной файл канала внутри экспорта.
type ChannelFile struct {
	Channel string
	Path    string
}

// Listing — результат перечисления каналов и их файлов.
type Listing struct {
	Channels []string
	Files    []ChannelFile
	Failures []domain.FileFailure
}

// WalkResult — сообщения, собранные из всех каналов, в порядке каналов.
type WalkResult struct {
	Channels       []string
	Messages       []domain.Message
	Failures       []domain.FileFailure
	RecordsDropped int
}

// Enumerate перечисляет непосредственные подкаталоги корня как каналы и файлы
// *.json внутри них. Файлы в корне (channels.json, users.json) не рассматриваются.
func Enumerate(fsys fs.FS) (*Listing, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewArchiveError(domain.ErrNotFound, ".", err)
		}
		return nil, domain.NewArchiveError(domain.ErrIO, ".", err)
	}

	listing := &Listing{}
	for _, e := range entries {
		if !e.IsDir() || skipName(e.Name()) {
			continue
		}
		channel := e.Name()
		listing.Channels = append(listing.Channels, channel)

		files, err := fs.ReadDir(fsys, channel)
		if err != nil {
			listing.Failures = append(listing.Failures, domain.FileFailure{
				Channel: channel,
				Path:    channel,
				Reason:  fmt.Sprintf("read channel directory: %v", err),
			})
			continue
		}
		for _, f := range files {
			if f.IsDir() || skipName(f.Name()) || !strings.HasSuffix(f.Name(), dataFileExt) {
				continue
			}
			listing.Files = append(listing.Files, ChannelFile{
				Channel: channel,
				Path:    path.Join(channel, f.Name()),
			})
		}
	}
	return listing, nil
}

// skipName отсеивает служебные элементы архивов (.DS_Store, __MACOSX, ._file.json).
func skipName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "__")
}

// Walker обходит распакованный экспорт и нормализует записи.
type Walker struct {
	parser     ports.Parser
	normalizer *Normalizer
	log        *slog.Logger
}

// NewWalker создает Walker.
func NewWalker(p ports.Parser, n *Normalizer, log *slog.Logger) *Walker {
	if log == nil {
		log = slog.Default()
	}
	return &Walker{parser: p, normalizer: n, log: log.With("component", "channel_walker")}
}

// Walk обходит fsys. Ошибка чтения или разбора отдельного файла фиксируется
// в Failures и не прерывает обход.
func (w *Walker) Walk(ctx context.Context, fsys fs.FS) (*WalkResult, error) {
	listing, err := Enumerate(fsys)
	if err != nil {
		return nil, err
	}

	res := &WalkResult{
		Channels: listing.Channels,
		Failures: listing.Failures,
	}
	for _, f := range listing.Failures {
		w.log.WarnContext(ctx, "Skipping unreadable channel directory", "channel", f.Channel, "reason", f.Reason)
	}
	for _, f := range listing.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := fs.ReadFile(fsys, f.Path)
		if err != nil {
			res.Failures = append(res.Failures, w.fail(f, fmt.Errorf("read: %w", err)))
			continue
		}
		day, err := w.parser.Parse(data)
		if err != nil {
			res.Failures = append(res.Failures, w.fail(f, err))
			continue
		}

		res.RecordsDropped += day.Malformed
		for _, rec := range day.Records {
			msg, ok := w.normalizer.Normalize(rec, f.Channel)
			if !ok {
				res.RecordsDropped++
				continue
			}
			res.Messages = append(res.Messages, msg)
		}
	}

	w.log.InfoContext(ctx, "Export walked",
		"channels", len(res.Channels),
		"files", len(listing.Files),
		"messages", len(res.Messages),
		"records_dropped", res.RecordsDropped,
		"file_failures", len(res.Failures),
	)
	return res, nil
}

func (w *Walker) fail(f ChannelFile, err error) domain.FileFailure {
	w.log.Warn("Skipping unreadable channel file", "channel", f.Channel, "path", f.Path, "error", err)
	return domain.FileFailure{Channel: f.Channel, Path: f.Path, Reason: err.Error()}
}
