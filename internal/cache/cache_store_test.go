package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/pkg/clock"
)

func TestCacheStore(t *testing.T) {
	start := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	t.Run("PutAndGet", func(t *testing.T) {
		cs := NewCacheStore(clock.NewManual(start))
		report := domain.IngestionReport{BatchID: "1716206400000", Success: true, MessagesStored: 3}

		cs.Put("hash", report, time.Minute)

		item, found := cs.Get("hash")
		require.True(t, found)
		assert.Equal(t, report, item.Report)
		assert.Equal(t, start.Add(time.Minute), item.ExpiresAt)
	})

	t.Run("GetMissingKey", func(t *testing.T) {
		cs := NewCacheStore(nil)
		_, found := cs.Get("non_existent_key")
		assert.False(t, found)
	})

	t.Run("Expiration", func(t *testing.T) {
		clk := clock.NewManual(start)
		cs := NewCacheStore(clk)
		cs.Put("hash", domain.IngestionReport{}, time.Minute)

		clk.Advance(59 * time.Second)
		_, found := cs.Get("hash")
		assert.True(t, found)

		clk.Advance(2 * time.Second)
		_, found = cs.Get("hash")
		assert.False(t, found)
	})

	t.Run("CleanupExpired", func(t *testing.T) {
		clk := clock.NewManual(start)
		cs := NewCacheStore(clk)
		cs.Put("short", domain.IngestionReport{}, time.Second)
		cs.Put("long", domain.IngestionReport{}, time.Hour)

		clk.Advance(time.Minute)
		cs.CleanupExpired()

		assert.Equal(t, 1, cs.Len())
		_, found := cs.Get("long")
		assert.True(t, found)
	})

	t.Run("CleanupTicker", func(t *testing.T) {
		cs := NewCacheStore(nil)
		cs.Put("expired", domain.IngestionReport{}, -time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		cs.StartCleanupTicker(ctx, 10*time.Millisecond)

		assert.Eventually(t, func() bool { return cs.Len() == 0 }, time.Second, 10*time.Millisecond)
	})
}

func TestCalculateFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.zip")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	hash, err := CalculateFileHash(path)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hash)

	_, err = CalculateFileHash(filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)
}
