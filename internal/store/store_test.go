package store

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-calendar/internal/domain"
)

var testNow = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open(DriverDuckDB, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func msg(channel, user, text string, at time.Time) domain.Message {
	return domain.Message{Channel: channel, User: user, Text: text, Timestamp: at}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "sqlite", "", nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestInsertMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("MessagesTaggedWithBatch", func(t *testing.T) {
		s := newTestStore(t)
		msgs := []domain.Message{
			msg("general", "U1", "first", testNow.Add(-time.Hour)),
			msg("general", "U2", "second", testNow),
		}

		n, err := s.InsertMessages(ctx, "1716206400000", msgs, testNow)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		count, err := s.CountMessages(ctx, "1716206400000")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		got, err := s.ListMessages(ctx, "general", "", testNow.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "second", got[0].Text)
		assert.Equal(t, "1716206400000", got[0].UploadBatch)
		assert.True(t, got[0].Timestamp.Equal(testNow))
	})

	t.Run("EmptyList", func(t *testing.T) {
		s := newTestStore(t)
		n, err := s.InsertMessages(ctx, "b", nil, testNow)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("AllOrNothing", func(t *testing.T) {
		s := newTestStore(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.InsertMessages(cancelled, "b", []domain.Message{msg("general", "U1", "x", testNow)}, testNow)
		require.Error(t, err)

		count, err := s.CountMessages(ctx, "b")
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	since := testNow.AddDate(0, 0, -30)

	_, err := s.InsertMessages(ctx, "b1", []domain.Message{
		msg("general", "U1", "Standup at 10", testNow.Add(-2*time.Hour)),
		msg("general", "U2", "Lunch?", testNow.Add(-time.Hour)),
		msg("general", "U1", "ancient standup", testNow.AddDate(0, 0, -40)),
		msg("random", "U3", "STANDUP moved", testNow),
	}, testNow)
	require.NoError(t, err)

	t.Run("ChannelsInWindow", func(t *testing.T) {
		channels, err := s.ListChannels(ctx, since)
		require.NoError(t, err)
		require.Len(t, channels, 2)
		assert.Equal(t, "general", channels[0].Name)
		assert.Equal(t, 2, channels[0].MessageCount)
		assert.True(t, channels[0].LastMessageAt.Equal(testNow.Add(-time.Hour)))
		assert.Equal(t, "random", channels[1].Name)
	})

	t.Run("ChannelMessagesByKeyword", func(t *testing.T) {
		got, err := s.ListMessages(ctx, "general", "standup", since)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Standup at 10", got[0].Text)
	})

	t.Run("SearchAllChannels", func(t *testing.T) {
		got, err := s.SearchMessages(ctx, "standup", since, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "random", got[0].Channel)
		assert.Equal(t, "general", got[1].Channel)
	})
}

func TestPersistEvents(t *testing.T) {
	ctx := context.Background()

	events := []domain.ExtractedEvent{
		{Title: "Standup", Date: "2024-05-21", StartTime: "10:00", SourceChannel: "general", RawMessageID: "2024-05-20T10:00:00.000Z_U1"},
		{Title: "Demo", Date: "2024-05-22", SourceChannel: "general", RawMessageID: "2024-05-20T11:00:00.000Z_U2"},
	}

	t.Run("ReingestNoDuplicates", func(t *testing.T) {
		s := newTestStore(t)

		res, err := s.PersistEvents(ctx, events, false, testNow)
		require.NoError(t, err)
		assert.Equal(t, domain.PersistResult{Inserted: 2}, res)

		res, err = s.PersistEvents(ctx, events, false, testNow)
		require.NoError(t, err)
		assert.Equal(t, domain.PersistResult{Skipped: 2}, res)

		got, err := s.UpcomingEvents(ctx, domain.EventFilter{From: testNow})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("DuplicatesWithinBatch", func(t *testing.T) {
		s := newTestStore(t)
		res, err := s.PersistEvents(ctx, []domain.ExtractedEvent{events[0], events[0]}, false, testNow)
		require.NoError(t, err)
		assert.Equal(t, domain.PersistResult{Inserted: 1, Skipped: 1}, res)
	})

	t.Run("ReplaceMatchesTitleAndDate", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.PersistEvents(ctx, events[:1], true, testNow)
		require.NoError(t, err)

		same := events[0]
		same.RawMessageID = "2024-05-20T12:00:00.000Z_U9"
		res, err := s.PersistEvents(ctx, []domain.ExtractedEvent{same}, true, testNow)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Skipped)

		res, err = s.PersistEvents(ctx, []domain.ExtractedEvent{same}, false, testNow)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Inserted)
	})

	t.Run("EventsWithoutRawID", func(t *testing.T) {
		s := newTestStore(t)
		ev := domain.ExtractedEvent{Title: "Manual", Date: "2024-05-25", SourceChannel: "ops"}
		res, err := s.PersistEvents(ctx, []domain.ExtractedEvent{ev, ev}, false, testNow)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Inserted)
	})

	t.Run("Clear", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.PersistEvents(ctx, events, false, testNow)
		require.NoError(t, err)

		n, err := s.ClearEvents(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		res, err := s.PersistEvents(ctx, events, true, testNow)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Inserted)
	})

	t.Run("PendingStatusAndFields", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.PersistEvents(ctx, events[:1], false, testNow)
		require.NoError(t, err)

		got, err := s.UpcomingEvents(ctx, domain.EventFilter{From: testNow})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, domain.EventStatusPending, got[0].Status)
		assert.Equal(t, "2024-05-21", got[0].Date)
		assert.Equal(t, "10:00", got[0].StartTime)
		assert.Empty(t, got[0].EndTime)
		assert.Equal(t, events[0].RawMessageID, got[0].RawMessageID)
		assert.True(t, got[0].CreatedAt.Equal(testNow))
	})
}

func TestUpcomingEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.PersistEvents(ctx, []domain.ExtractedEvent{
		{Title: "Past", Date: "2024-05-01", SourceChannel: "general"},
		{Title: "Late", Date: "2024-05-21", StartTime: "18:00", SourceChannel: "general"},
		{Title: "AllDay", Date: "2024-05-21", SourceChannel: "random"},
		{Title: "Early", Date: "2024-05-21", StartTime: "09:00", SourceChannel: "general"},
		{Title: "Next", Date: "2024-06-01", SourceChannel: "general"},
	}, false, testNow)
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter domain.EventFilter
		want   []string
	}{
		{"все будущие", domain.EventFilter{From: testNow}, []string{"AllDay", "Early", "Late", "Next"}},
		{"по каналу", domain.EventFilter{From: testNow, Channel: "random"}, []string{"AllDay"}},
		{"лимит", domain.EventFilter{From: testNow, Limit: 2}, []string{"AllDay", "Early"}},
		{"с начала мая", domain.EventFilter{From: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Limit: 1}, []string{"Past"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.UpcomingEvents(ctx, tt.filter)
			require.NoError(t, err)
			var titles []string
			for _, ev := range got {
				titles = append(titles, ev.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestEventCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.CreateEvent(ctx, domain.ExtractedEvent{
		Title: " Retro ", Date: "2024-05-24", StartTime: "16:00:00", SourceChannel: "design",
	}, "", testNow)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Retro", created.Title)
	assert.Equal(t, "16:00", created.StartTime)
	assert.Equal(t, domain.EventStatusPending, created.Status)

	t.Run("InvalidEvent", func(t *testing.T) {
		_, err := s.CreateEvent(ctx, domain.ExtractedEvent{Title: "x", Date: "tomorrow", SourceChannel: "c"}, "", testNow)
		assert.ErrorIs(t, err, domain.ErrInvalidEvent)
	})

	t.Run("Update", func(t *testing.T) {
		title, status, end := "Retro v2", "confirmed", "17:00"
		updated, err := s.UpdateEvent(ctx, created.ID, domain.EventPatch{Title: &title, Status: &status, EndTime: &end})
		require.NoError(t, err)
		assert.Equal(t, "Retro v2", updated.Title)
		assert.Equal(t, "confirmed", updated.Status)
		assert.Equal(t, "17:00", updated.EndTime)
		assert.Equal(t, "2024-05-24", updated.Date)

		desc := "moved"
		updated, err = s.UpdateEvent(ctx, created.ID, domain.EventPatch{Description: &desc})
		require.NoError(t, err)
		assert.Equal(t, "moved", updated.Description)
		assert.Equal(t, "Retro v2", updated.Title)
	})

	t.Run("UpdateWithInvalidDate", func(t *testing.T) {
		bad := "24.05.2024"
		_, err := s.UpdateEvent(ctx, created.ID, domain.EventPatch{Date: &bad})
		assert.ErrorIs(t, err, domain.ErrInvalidEvent)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.DeleteEvent(ctx, created.ID))
		assert.ErrorIs(t, s.DeleteEvent(ctx, created.ID), domain.ErrEventNotFound)
		_, err := s.GetEvent(ctx, created.ID)
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
		_, err = s.UpdateEvent(ctx, created.ID, domain.EventPatch{})
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})
}
