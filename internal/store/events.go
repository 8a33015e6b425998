package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slack-calendar/internal/domain"
)

const eventColumns = `id, title, date, start_time, end_time, description, source_channel, raw_message_id, status, created_at`

// ClearEvents удаляет все события в отдельной транзакции.
func (s *Store) ClearEvents(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM events`)
	if err != nil {
		return 0, fmt.Errorf("clear events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.log.InfoContext(ctx, "Events cleared", "count", n)
	return n, nil
}

// PersistEvents вставляет события со статусом pending. Событие пропускается,
// если пара (raw_message_id, title) уже есть, а в режиме replace также при
// совпадении пары (title, date). Уникальный индекс остается последней линией
// защиты при параллельных запусках.
func (s *Store) PersistEvents(ctx context.Context, events []domain.ExtractedEvent, replace bool, now time.Time) (domain.PersistResult, error) {
	var res domain.PersistResult
	now = now.UTC()

	for _, ev := range events {
		dup, err := s.eventExists(ctx, ev, replace)
		if err != nil {
			return res, err
		}
		if dup {
			res.Skipped++
			continue
		}

		r, err := s.db.ExecContext(ctx, `
INSERT INTO events (title, date, start_time, end_time, description, source_channel, raw_message_id, status, created_at)
VALUES ($1, CAST($2 AS DATE), $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (raw_message_id, title) DO NOTHING`,
			ev.Title, ev.Date, nullable(ev.StartTime), nullable(ev.EndTime), nullable(ev.Description),
			ev.SourceChannel, nullable(ev.RawMessageID), domain.EventStatusPending, now)
		if err != nil {
			return res, fmt.Errorf("insert event %q: %w", ev.Title, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return res, fmt.Errorf("insert event %q: %w", ev.Title, err)
		}
		if n == 0 {
			res.Skipped++
			continue
		}
		res.Inserted++
	}

	s.log.InfoContext(ctx, "Events persisted", "inserted", res.Inserted, "skipped", res.Skipped, "replace", replace)
	return res, nil
}

func (s *Store) eventExists(ctx context.Context, ev domain.ExtractedEvent, replace bool) (bool, error) {
	if ev.RawMessageID != "" {
		ok, err := s.exists(ctx, `SELECT 1 FROM events WHERE raw_message_id = $1 AND title = $2`, ev.RawMessageID, ev.Title)
		if err != nil || ok {
			return ok, err
		}
	}
	if replace {
		return s.exists(ctx, `SELECT 1 FROM events WHERE title = $1 AND date = CAST($2 AS DATE)`, ev.Title, ev.Date)
	}
	return false, nil
}

func (s *Store) exists(ctx context.Context, q string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return true, nil
}

// UpcomingEvents возвращает события начиная с filter.From по возрастанию даты.
func (s *Store) UpcomingEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	from := filter.From
	if from.IsZero() {
		from = time.Now()
	}

	q := `SELECT ` + eventColumns + ` FROM events WHERE date >= CAST($1 AS DATE)`
	args := []any{from.Format(domain.DateLayout)}
	if filter.Channel != "" {
		q += ` AND source_channel = $2`
		args = append(args, filter.Channel)
	}
	q += fmt.Sprintf(` ORDER BY date, start_time NULLS FIRST, id LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GetEvent возвращает событие по ID.
func (s *Store) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return ev, err
}

// CreateEvent сохраняет событие, созданное вручную.
func (s *Store) CreateEvent(ctx context.Context, in domain.ExtractedEvent, status string, now time.Time) (domain.Event, error) {
	ev, err := in.Normalized()
	if err != nil {
		return domain.Event{}, err
	}
	if status == "" {
		status = domain.EventStatusPending
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
INSERT INTO events (title, date, start_time, end_time, description, source_channel, raw_message_id, status, created_at)
VALUES ($1, CAST($2 AS DATE), $3, $4, $5, $6, $7, $8, $9)
RETURNING id`,
		ev.Title, ev.Date, nullable(ev.StartTime), nullable(ev.EndTime), nullable(ev.Description),
		ev.SourceChannel, nullable(ev.RawMessageID), status, now.UTC()).Scan(&id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("create event: %w", err)
	}
	return s.GetEvent(ctx, id)
}

// UpdateEvent применяет patch к событию и возвращает обновленную запись.
func (s *Store) UpdateEvent(ctx context.Context, id int64, patch domain.EventPatch) (domain.Event, error) {
	current, err := s.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	updated := patch.Apply(current)
	norm, err := updated.ExtractedEvent.Normalized()
	if err != nil {
		return domain.Event{}, err
	}

	set := `date = CAST($1 AS DATE), start_time = $2, end_time = $3, description = $4, source_channel = $5, status = $6`
	args := []any{norm.Date, nullable(norm.StartTime), nullable(norm.EndTime),
		nullable(norm.Description), norm.SourceChannel, updated.Status}
	// title входит в уникальный индекс, трогаем его только при изменении.
	if norm.Title != current.Title {
		set += `, title = $7`
		args = append(args, norm.Title)
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE events SET %s WHERE id = $%d`, set, len(args))

	_, err = s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return domain.Event{}, fmt.Errorf("update event %d: %w", id, err)
	}
	return s.GetEvent(ctx, id)
}

// DeleteEvent удаляет событие. Отсутствующее событие дает ErrEventNotFound.
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	if n == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (domain.Event, error) {
	var (
		ev                              domain.Event
		date                            time.Time
		start, end, desc, rawID, status sql.NullString
	)
	err := r.Scan(&ev.ID, &ev.Title, &date, &start, &end, &desc, &ev.SourceChannel, &rawID, &status, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Event{}, err
		}
		return domain.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Date = date.Format(domain.DateLayout)
	ev.StartTime = start.String
	ev.EndTime = end.String
	ev.Description = desc.String
	ev.RawMessageID = rawID.String
	ev.Status = status.String
	ev.CreatedAt = ev.CreatedAt.UTC()
	return ev, nil
}
