package store

import (
	"context"
	"fmt"
	"time"

	"slack-calendar/internal/domain"
)

// InsertMessages вставляет сообщения одной транзакцией: либо все, либо ни одного.
func (s *Store) InsertMessages(ctx context.Context, batchID string, msgs []domain.Message, now time.Time) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO slack_messages (channel, "user", msg_timestamp, text, upload_batch, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now = now.UTC()
	for i, m := range msgs {
		if _, err := stmt.ExecContext(ctx, m.Channel, m.User, m.Timestamp.UTC(), m.Text, batchID, now, now); err != nil {
			return 0, fmt.Errorf("insert message %d of %d: %w", i+1, len(msgs), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.log.InfoContext(ctx, "Messages stored", "batch", batchID, "count", len(msgs))
	return len(msgs), nil
}

// ListChannels возвращает каналы, в которых есть сообщения начиная с since.
func (s *Store) ListChannels(ctx context.Context, since time.Time) ([]domain.ChannelSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT channel, COUNT(*), MAX(msg_timestamp)
FROM slack_messages
WHERE msg_timestamp >= $1
GROUP BY channel
ORDER BY channel`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []domain.ChannelSummary
	for rows.Next() {
		var (
			cs    domain.ChannelSummary
			count int64
		)
		if err := rows.Scan(&cs.Name, &count, &cs.LastMessageAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		cs.MessageCount = int(count)
		cs.LastMessageAt = cs.LastMessageAt.UTC()
		out = append(out, cs)
	}
	return out, rows.Err()
}

// ListMessages возвращает сообщения канала начиная с since, новые первыми.
// Непустой keyword фильтрует по вхождению без учета регистра.
func (s *Store) ListMessages(ctx context.Context, channel, keyword string, since time.Time) ([]domain.Message, error) {
	q := `
SELECT id, channel, "user", msg_timestamp, text, upload_batch
FROM slack_messages
WHERE channel = $1 AND msg_timestamp >= $2`
	args := []any{channel, since.UTC()}
	if keyword != "" {
		q += ` AND text ILIKE $3`
		args = append(args, likePattern(keyword))
	}
	q += ` ORDER BY msg_timestamp DESC, id DESC`
	return s.queryMessages(ctx, q, args...)
}

// SearchMessages ищет keyword во всех каналах начиная с since.
func (s *Store) SearchMessages(ctx context.Context, keyword string, since time.Time, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(`
SELECT id, channel, "user", msg_timestamp, text, upload_batch
FROM slack_messages
WHERE text ILIKE $1 AND msg_timestamp >= $2
ORDER BY msg_timestamp DESC, id DESC
LIMIT %d`, limit)
	return s.queryMessages(ctx, q, likePattern(keyword), since.UTC())
}

// CountMessages возвращает число сообщений, загруженных в указанной пачке.
func (s *Store) CountMessages(ctx context.Context, batchID string) (int, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM slack_messages WHERE upload_batch = $1`, batchID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return int(n), nil
}

func (s *Store) queryMessages(ctx context.Context, q string, args ...any) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Channel, &m.User, &m.Timestamp, &m.Text, &m.UploadBatch); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = m.Timestamp.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func likePattern(keyword string) string {
	return "%" + keyword + "%"
}
