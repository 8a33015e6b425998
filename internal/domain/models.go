package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// EventStatusPending — статус события, созданного автоматически или вручную без подтверждения.
const EventStatusPending = "pending"

// CompositeIDLayout — формат временной части составного идентификатора сообщения.
const CompositeIDLayout = "2006-01-02T15:04:05.000Z"

// SlackTS — значение поля ts из экспорта Slack.
// В экспортах встречается и строка ("1700000000.000100"), и число.
type SlackTS string

// UnmarshalJSON принимает как строковое, так и числовое представление.
func (t *SlackTS) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = SlackTS(s)
		return nil
	}
	*t = SlackTS(b)
	return nil
}

// Attachment представляет вложение сообщения Slack.
type Attachment struct {
	Text     string `json:"text"`
	Fallback string `json:"fallback"`
	Pretext  string `json:"pretext"`
}

// FileRef представляет прикрепленный к сообщению файл.
type FileRef struct {
	Name string `json:"name"`
}

// RawRecord представляет одну запись из дневного файла канала.
// Все поля необязательны, набор заполненных полей зависит от типа записи.
type RawRecord struct {
	Type        string       `json:"type,omitempty"`
	Subtype     string       `json:"subtype,omitempty"`
	User        string       `json:"user,omitempty"`
	BotID       string       `json:"bot_id,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Files       []FileRef    `json:"files,omitempty"`
	TS          SlackTS      `json:"ts,omitempty"`
}

// DayFile — результат разбора одного файла канала.
type DayFile struct {
	Records []RawRecord
	// Malformed — количество элементов массива, которые не удалось декодировать.
	Malformed int
}

// Message — нормализованное сообщение канала.
type Message struct {
	ID          int64     `json:"id,omitempty"`
	Channel     string    `json:"channel"`
	User        string    `json:"user"`
	Timestamp   time.Time `json:"msg_timestamp"`
	Text        string    `json:"text"`
	UploadBatch string    `json:"upload_batch,omitempty"`
}

// CompositeID возвращает идентификатор вида <ts>_<user>, по которому
// извлеченные события связываются с исходным сообщением.
func (m Message) CompositeID() string {
	return m.Timestamp.UTC().Format(CompositeIDLayout) + "_" + m.User
}

// ExtractedEvent — кандидат в события, полученный из сообщений.
type ExtractedEvent struct {
	Title         string `json:"title"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	Description   string `json:"description,omitempty"`
	SourceChannel string `json:"source_channel"`
	RawMessageID  string `json:"raw_message_id,omitempty"`
}

// Event — сохраненное событие календаря.
type Event struct {
	ID int64 `json:"id"`
	ExtractedEvent
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// EventPatch описывает изменения, применяемые к событию при ручном редактировании.
// Nil-поле означает "не изменять".
type EventPatch struct {
	Title         *string `json:"title"`
	Date          *string `json:"date"`
	StartTime     *string `json:"start_time"`
	EndTime       *string `json:"end_time"`
	Description   *string `json:"description"`
	SourceChannel *string `json:"source_channel"`
	Status        *string `json:"status"`
}

// EventFilter задает выборку предстоящих событий.
type EventFilter struct {
	Channel string
	From    time.Time
	Limit   int
}

// ChannelSummary — краткая статистика по каналу.
type ChannelSummary struct {
	Name          string    `json:"name"`
	MessageCount  int       `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// PersistResult — итог сохранения пачки событий.
type PersistResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}
