// Package cache holds short-lived search results keyed by hashed query text.
// Entries are content-equivalent for a given key, so concurrent writers may
// race and the last one wins.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is a byte-oriented TTL cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// GetJSON decodes a cached value into T. Decode failures count as a miss.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool) {
	var v T
	raw, ok := s.Get(ctx, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

// SetJSON encodes v and stores it for ttl.
func SetJSON[T any](ctx context.Context, s Store, key string, v T, ttl time.Duration, logger *zap.Logger) {
	raw, err := json.Marshal(v)
	if err != nil {
		if logger != nil {
			logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		}
		return
	}
	s.Set(ctx, key, raw, ttl)
}

type entry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time
}

// MemoryStore is an in-process Store with a size bound; the oldest entry is
// evicted when full.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	maxSize int
	now     func() time.Time
}

func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryStore{
		entries: make(map[string]entry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || m.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxSize {
		m.evictOldest()
	}
	now := m.now()
	m.entries[key] = entry{value: value, createdAt: now, expiresAt: now.Add(ttl)}
}

// Len reports the number of stored entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range m.entries {
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey, oldest = k, e.createdAt
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}
