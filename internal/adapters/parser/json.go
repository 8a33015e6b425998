package parser

import (
	"encoding/json"
	"errors"
	"fmt"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/ports"
)

// ErrNotArray возвращается, если корневой элемент файла не является массивом.
var ErrNotArray = errors.New("day file is not a json array")

// JsonParser разбирает дневной файл канала: JSON-массив записей.
type JsonParser struct{}

// NewJsonParser создает новый экземпляр JsonParser.
func NewJsonParser() ports.Parser {
	return &JsonParser{}
}

// Parse декодирует массив поэлементно, чтобы одна испорченная запись
// не приводила к потере всего файла.
func (p *JsonParser) Parse(data []byte) (*domain.DayFile, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: got %s", ErrNotArray, typeErr.Value)
		}
		return nil, fmt.Errorf("failed to unmarshal json: %w", err)
	}
	if items == nil {
		// Литерал null.
		return nil, ErrNotArray
	}

	day := &domain.DayFile{Records: make([]domain.RawRecord, 0, len(items))}
	for _, item := range items {
		var rec domain.RawRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			day.Malformed++
			continue
		}
		day.Records = append(day.Records, rec)
	}
	return day, nil
}
