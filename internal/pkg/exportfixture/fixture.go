// Package exportfixture собирает ZIP-архивы в формате экспорта Slack для тестов.
package exportfixture

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

// Record — запись дневного файла в том виде, как ее пишет Slack.
type Record map[string]any

// Message собирает обычное сообщение пользователя с отметкой времени at.
func Message(user, text string, at time.Time) Record {
	return Record{
		"type": "message",
		"user": user,
		"text": text,
		"ts":   TS(at),
	}
}

// TS форматирует момент времени так же, как поле ts экспорта.
func TS(at time.Time) string {
	return fmt.Sprintf("%d.%06d", at.Unix(), at.Nanosecond()/1000)
}

// Archive описывает содержимое архива: путь внутри архива -> содержимое файла.
type Archive map[string][]byte

// AddDay кладет записи в файл <channel>/<day>.json.
func (a Archive) AddDay(channel, day string, records ...Record) Archive {
	data, err := json.Marshal(records)
	if err != nil {
		panic(err)
	}
	a[channel+"/"+day+".json"] = data
	return a
}

// AddRaw кладет произвольное содержимое по пути name.
func (a Archive) AddRaw(name string, data []byte) Archive {
	a[name] = data
	return a
}

// Bytes возвращает архив в виде байтов.
func (a Archive) Bytes(t testing.TB) []byte {
	t.Helper()

	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := w.Write(a[name]); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

// WriteTo записывает архив в dir/name и возвращает полный путь.
func (a Archive) WriteTo(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, a.Bytes(t), 0o644); err != nil {
		t.Fatalf("write archive %s: %v", path, err)
	}
	return path
}
