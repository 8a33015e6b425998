package exporter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"slack-calendar/internal/domain"
)

func sampleEvents() []domain.Event {
	return []domain.Event{
		{
			ID: 1,
			ExtractedEvent: domain.ExtractedEvent{
				Title: "Standup", Date: "2024-05-21", StartTime: "10:00", EndTime: "10:15",
				SourceChannel: "general", RawMessageID: "2024-05-20T10:00:00.000Z_U1",
			},
			Status: domain.EventStatusPending,
		},
		{
			ID: 2,
			ExtractedEvent: domain.ExtractedEvent{
				Title: "Квартальное планирование всей команды разработки с обсуждением дорожной карты", Date: "2024-05-22",
				SourceChannel: "random", Description: "bring laptops",
			},
			Status: "confirmed",
		},
	}
}

func TestConsoleExporter(t *testing.T) {
	t.Run("EventsTable", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewConsoleExporter(WithWidth(80)).Export(&buf, sampleEvents()))

		out := buf.String()
		lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
		assert.True(t, strings.HasPrefix(lines[0], "| Date "))
		assert.Contains(t, out, "10:00-10:15")
		assert.Contains(t, out, "весь день")
		assert.Contains(t, out, "2 событий")

		// все строки таблицы одинаковой ширины
		for _, l := range lines[:len(lines)-1] {
			assert.Equal(t, 80, runewidth.StringWidth(l), l)
		}
		// длинный заголовок перенесен
		assert.Greater(t, len(lines), 5)
	})

	t.Run("EmptyList", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewConsoleExporter().Export(&buf, nil))
		assert.Equal(t, "Нет предстоящих событий.\n", buf.String())
	})
}

func TestWrapString(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  []string
	}{
		{"fits", "short", 10, []string{"short"}},
		{"by words", "one two three", 7, []string{"one two", "three"}},
		{"long word", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"wide runes", "日本語テキスト", 6, []string{"日本語", "テキス", "ト"}},
		{"only spaces", "          ", 4, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrapString(tt.in, tt.width))
		})
	}
}

func TestGeneratePadding(t *testing.T) {
	assert.Equal(t, "  ", generatePadding("abc", 5))
	assert.Equal(t, "", generatePadding("abcdef", 5))
	// CJK получает дополнительный пробел
	assert.Equal(t, "  ", generatePadding("日本", 5))
}

func TestXLSXExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewXLSXExporter().Export(&buf, sampleEvents()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{EventsSheet}, f.GetSheetList())
	rows, err := f.GetRows(EventsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, xlsxHeaders, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "Standup", rows[1][4])
	assert.Equal(t, "general", rows[1][6])
	assert.Equal(t, "confirmed", rows[2][7])
}
