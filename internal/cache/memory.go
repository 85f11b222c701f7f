package cache

import (
	"context"
	"sync"
	"time"

	"ppbverify/internal/components/assert"
	"ppbverify/internal/components/telemetry"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	DefaultMaxSize = 1000
	DefaultTTL     = time.Hour
)

const report_memory_cleanup = "memory.cleanup"

type memoryEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Memory is a bounded LRU where every entry carries its own expiry. Expired
// entries are dropped when read and by CleanupExpired. All operations hold
// one lock so the counters stay consistent with the contents.
type Memory[V any] struct {
	mu         sync.Mutex
	lru        *simplelru.LRU[string, memoryEntry[V]]
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
	tel        telemetry.API

	hits      int64
	misses    int64
	sets      int64
	evictions int64
}

func NewMemory[V any](maxSize int, defaultTTL time.Duration, tel telemetry.API) *Memory[V] {
	assert.NotNil(tel)
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	lru, err := simplelru.NewLRU[string, memoryEntry[V]](maxSize, nil)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}

	return &Memory[V]{
		lru:        lru,
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
		tel:        telemetry.NewScopedAPI("cache", tel),
	}
}

// SetClock replaces the clock used for expiry, used by tests.
func (m *Memory[V]) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	entry, ok := m.lru.Get(key)
	if !ok {
		m.misses++
		return zero, false
	}
	if m.now().After(entry.expiresAt) {
		m.lru.Remove(key)
		m.misses++
		return zero, false
	}

	m.hits++
	return entry.value, true
}

func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := m.lru.Add(key, memoryEntry[V]{
		value:     value,
		expiresAt: m.now().Add(ttl),
	})
	if evicted {
		m.evictions++
	}
	m.sets++
}

func (m *Memory[V]) Delete(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Remove(key)
}

// Clear drops every entry, the counters are kept.
func (m *Memory[V]) Clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Purge()
}

// CleanupExpired removes every expired entry and returns how many were removed.
func (m *Memory[V]) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for _, key := range m.lru.Keys() {
		entry, ok := m.lru.Peek(key)
		if ok && now.After(entry.expiresAt) {
			m.lru.Remove(key)
			removed++
		}
	}
	if removed > 0 {
		m.tel.ReportDebug(report_memory_cleanup, removed)
	}
	return removed
}

func (m *Memory[V]) Stats(_ context.Context) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Backend:       BackendMemory,
		Size:          m.lru.Len(),
		MaxSize:       m.maxSize,
		Hits:          m.hits,
		Misses:        m.misses,
		Sets:          m.sets,
		Evictions:     m.evictions,
		HitRate:       hitRate(m.hits, m.misses),
		TotalRequests: m.hits + m.misses,
	}
}
