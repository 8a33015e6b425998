package exporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/ports"
)

const (
	defaultTableWidth = 100
	minTitleWidth     = 20
	maxChannelWidth   = 20
	dateColWidth      = 10
	timeColWidth      = 11
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))

// ConsoleExporter выводит события таблицей с переносом длинных заголовков.
type ConsoleExporter struct {
	width  int
	styled bool
}

// ConsoleOption настраивает ConsoleExporter.
type ConsoleOption func(*ConsoleExporter)

// WithWidth задает ширину таблицы. По умолчанию берется ширина терминала.
func WithWidth(n int) ConsoleOption {
	return func(e *ConsoleExporter) {
		if n > 0 {
			e.width = n
		}
	}
}

// NewConsoleExporter создает новый экземпляр ConsoleExporter.
func NewConsoleExporter(opts ...ConsoleOption) ports.Exporter {
	e := &ConsoleExporter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export печатает таблицу событий в w. Заголовок выделяется, только если w - терминал.
func (e *ConsoleExporter) Export(w io.Writer, events []domain.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "Нет предстоящих событий.")
		return err
	}

	width, styled := e.width, e.styled
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		styled = true
		if width == 0 {
			if cols, _, err := term.GetSize(int(f.Fd())); err == nil {
				width = cols
			}
		}
	}
	if width <= 0 {
		width = defaultTableWidth
	}

	chanWidth := runewidth.StringWidth("Channel")
	for _, ev := range events {
		chanWidth = max(chanWidth, runewidth.StringWidth(ev.SourceChannel))
	}
	chanWidth = min(chanWidth, maxChannelWidth)

	// "| a | b | c | d |" - 13 символов разметки на 4 колонки
	titleWidth := max(width-13-dateColWidth-timeColWidth-chanWidth, minTitleWidth)
	widths := []int{dateColWidth, timeColWidth, chanWidth, titleWidth}

	var sb strings.Builder
	header := []string{"Date", "Time", "Channel", "Title"}
	sb.WriteString("|")
	for i, h := range header {
		pad := generatePadding(h, widths[i])
		if styled {
			h = headerStyle.Render(h)
		}
		sb.WriteString(" " + h + pad + " |")
	}
	sb.WriteString("\n")
	sb.WriteString(separator(widths))

	for _, ev := range events {
		cells := [][]string{
			{ev.Date},
			{timeRange(ev)},
			wrapString(ev.SourceChannel, chanWidth),
			wrapString(ev.Title, titleWidth),
		}
		lines := 0
		for _, c := range cells {
			lines = max(lines, len(c))
		}
		for i := 0; i < lines; i++ {
			sb.WriteString("|")
			for col, c := range cells {
				part := ""
				if i < len(c) {
					part = c[i]
				}
				sb.WriteString(" " + part + generatePadding(part, widths[col]) + " |")
			}
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "%d событий\n", len(events))

	_, err := io.WriteString(w, sb.String())
	return err
}

func separator(widths []int) string {
	var sb strings.Builder
	sb.WriteString("|")
	for _, w := range widths {
		sb.WriteString(strings.Repeat("-", w+2) + "|")
	}
	sb.WriteString("\n")
	return sb.String()
}

func timeRange(ev domain.Event) string {
	switch {
	case ev.StartTime == "":
		return "весь день"
	case ev.EndTime == "":
		return ev.StartTime
	default:
		return ev.StartTime + "-" + ev.EndTime
	}
}

// generatePadding вычисляет отступ для строки с учетом поправки на CJK-символы.
func generatePadding(s string, colWidth int) string {
	paddingNeeded := colWidth - runewidth.StringWidth(s)

	// Некоторые терминалы рисуют CJK на полсимвола шире.
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hangul, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			if paddingNeeded >= 0 {
				paddingNeeded++
			}
			break
		}
	}

	if paddingNeeded > 0 {
		return strings.Repeat(" ", paddingNeeded)
	}
	return ""
}

// wrapString переносит строку по словам с учетом ширины символов.
// Слово длиннее width разрывается посередине.
func wrapString(s string, width int) []string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return []string{s}
	}

	var (
		lines []string
		line  strings.Builder
	)
	flush := func() {
		if line.Len() > 0 {
			lines = append(lines, line.String())
			line.Reset()
		}
	}

	for _, word := range strings.Fields(s) {
		wordWidth := runewidth.StringWidth(word)
		if wordWidth > width {
			flush()
			lines = append(lines, splitByWidth(word, width)...)
			continue
		}

		lineWidth := runewidth.StringWidth(line.String())
		if lineWidth > 0 && lineWidth+1+wordWidth > width {
			flush()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	flush()

	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

func splitByWidth(s string, width int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > 0 {
		i, w := 0, 0
		for i < len(runes) {
			rw := runewidth.RuneWidth(runes[i])
			if w+rw > width && i > 0 {
				break
			}
			w += rw
			i++
		}
		out = append(out, string(runes[:i]))
		runes = runes[i:]
	}
	return out
}
