package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/pkg/clock"
)

// CacheItem представляет кэшированный отчет о загрузке архива
type CacheItem struct {
	Report    domain.IngestionReport
	ExpiresAt time.Time
}

// CacheStore хранит отчеты по отпечатку архива, чтобы повторная загрузка
// того же файла не запускала конвейер заново
type CacheStore struct {
	cache map[string]*CacheItem
	mutex sync.RWMutex
	clock clock.Clock
}

// NewCacheStore создает новый экземпляр CacheStore
func NewCacheStore(clk clock.Clock) *CacheStore {
	if clk == nil {
		clk = clock.System()
	}
	return &CacheStore{
		cache: make(map[string]*CacheItem),
		clock: clk,
	}
}

// Get извлекает кэшированный элемент по его ключу (хешу)
func (cs *CacheStore) Get(key string) (*CacheItem, bool) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	item, exists := cs.cache[key]
	if !exists || cs.clock.Now().After(item.ExpiresAt) {
		return nil, false
	}
	return item, true
}

// Put сохраняет отчет в кэш с указанным сроком действия
func (cs *CacheStore) Put(key string, report domain.IngestionReport, ttl time.Duration) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.cache[key] = &CacheItem{
		Report:    report,
		ExpiresAt: cs.clock.Now().Add(ttl),
	}
}

// Len возвращает количество элементов, включая еще не очищенные просроченные
func (cs *CacheStore) Len() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()
	return len(cs.cache)
}

// CleanupExpired удаляет просроченные элементы из кэша
func (cs *CacheStore) CleanupExpired() {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	now := cs.clock.Now()
	for key, item := range cs.cache {
		if now.After(item.ExpiresAt) {
			delete(cs.cache, key)
		}
	}
}

// StartCleanupTicker запускает таймер для периодической очистки просроченных элементов
func (cs *CacheStore) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs.CleanupExpired()
			}
		}
	}()
}

// CalculateFileHash вычисляет хеш SHA256 содержимого файла
func CalculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("не удалось открыть файл: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("не удалось прочитать файл: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
