package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/ports"
)

// EventsSheet — имя листа с событиями.
const EventsSheet = "Events"

var xlsxHeaders = []string{"ID", "Date", "Start", "End", "Title", "Description", "Channel", "Status", "Source message"}

// XLSXExporter выгружает события в книгу Excel.
type XLSXExporter struct{}

// NewXLSXExporter создает новый экземпляр XLSXExporter.
func NewXLSXExporter() ports.Exporter {
	return &XLSXExporter{}
}

// Export пишет книгу с одним листом Events в w.
func (e *XLSXExporter) Export(w io.Writer, events []domain.Event) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	index, err := f.NewSheet(EventsSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	for i, h := range xlsxHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(EventsSheet, cell, h); err != nil {
			return err
		}
	}

	for i, ev := range events {
		row := []any{ev.ID, ev.Date, ev.StartTime, ev.EndTime, ev.Title, ev.Description, ev.SourceChannel, ev.Status, ev.RawMessageID}
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(EventsSheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
