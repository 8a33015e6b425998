package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/server/usecase"
)

type fakeRunner struct {
	mu    sync.Mutex
	reqs  []usecase.Request
	err   error
	block chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, req usecase.Request) (domain.IngestionReport, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.IngestionReport{}, ctx.Err()
		}
	}
	return domain.IngestionReport{Flow: req.Flow, Success: f.err == nil}, f.err
}

func (f *fakeRunner) calls() []usecase.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]usecase.Request(nil), f.reqs...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New("every minute please", &fakeRunner{}, WithLogger(discard()))
	assert.ErrorContains(t, err, "invalid scan schedule")
}

func TestRunNow(t *testing.T) {
	t.Run("ScanFlowWithConfiguredDir", func(t *testing.T) {
		r := &fakeRunner{}
		s, err := New("@hourly", r, WithScanDir("/data/exports"), WithLogger(discard()))
		require.NoError(t, err)

		report, err := s.RunNow(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.FlowScan, report.Flow)
		require.Len(t, r.calls(), 1)
		assert.Equal(t, usecase.Request{Flow: domain.FlowScan, ScanDir: "/data/exports"}, r.calls()[0])
	})

	t.Run("RunErrorReturned", func(t *testing.T) {
		r := &fakeRunner{err: errors.New("not found")}
		s, err := New("@hourly", r, WithLogger(discard()))
		require.NoError(t, err)

		_, err = s.RunNow(context.Background())
		assert.EqualError(t, err, "not found")
	})

	t.Run("Timeout", func(t *testing.T) {
		r := &fakeRunner{block: make(chan struct{})}
		s, err := New("@hourly", r, WithTimeout(20*time.Millisecond), WithLogger(discard()))
		require.NoError(t, err)

		_, err = s.RunNow(context.Background())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	r := &fakeRunner{}
	s, err := New("@every 1s", r, WithLogger(discard()))
	require.NoError(t, err)
	assert.False(t, s.Next().IsZero())

	s.Start()
	require.Eventually(t, func() bool { return len(r.calls()) >= 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestScheduler_StopCancelsRunningScan(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	s, err := New("@every 1s", r, WithLogger(discard()))
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return len(r.calls()) == 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	s.Stop(ctx)
	assert.Less(t, time.Since(start), time.Second, "запуск должен быть отменен")
}
