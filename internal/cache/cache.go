// Package cache stores verification results, either in process (LRU with
// per-entry expiry) or in redis so that several replicas share results.
package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ppbverify/internal/components/telemetry"
)

const (
	BackendMemory = "simple"
	BackendRedis  = "redis"
)

var ErrUnknownBackend = errors.New("unknown cache backend")

// Cache is the contract shared by both backends. Backends never surface
// storage errors to callers, a failing lookup is a miss and a failing write
// is dropped.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	// Set stores value for ttl, a ttl <= 0 uses the backend default.
	Set(ctx context.Context, key string, value V, ttl time.Duration)
	Delete(ctx context.Context, key string) bool
	Clear(ctx context.Context)
	Stats(ctx context.Context) Stats
}

// Sweeper is implemented by backends that need expired entries removed
// periodically.
type Sweeper interface {
	CleanupExpired() int
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}

type Stats struct {
	Backend       string  `json:"backend"`
	Size          int     `json:"size"`
	MaxSize       int     `json:"max_size,omitempty"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Sets          int64   `json:"sets"`
	Evictions     int64   `json:"evictions"`
	HitRate       float64 `json:"hit_rate"`
	TotalRequests int64   `json:"total_requests"`

	KeyspaceHits   int64  `json:"keyspace_hits,omitempty"`
	KeyspaceMisses int64  `json:"keyspace_misses,omitempty"`
	Error          string `json:"error,omitempty"`
}

// hitRate is hits / (hits + misses) as a percentage rounded to 2 decimals,
// 0 when nothing has been looked up yet.
func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return math.Round(float64(hits)/float64(total)*100*100) / 100
}

type Config struct {
	Backend    string
	DefaultTTL time.Duration
	MaxSize    int
	RedisURL   string
	// KeyPrefix namespaces keys in redis, the memory backend ignores it.
	KeyPrefix string
}

// New builds the backend named by cfg.Backend. The redis backend pings the
// server and fails if it is unreachable.
func New[V any](ctx context.Context, cfg Config, tel telemetry.API) (Cache[V], error) {
	switch cfg.Backend {
	case BackendMemory, "memory", "":
		return NewMemory[V](cfg.MaxSize, cfg.DefaultTTL, tel), nil
	case BackendRedis:
		r, err := NewRedis[V](ctx, RedisOptions{
			URL:        cfg.RedisURL,
			KeyPrefix:  cfg.KeyPrefix,
			DefaultTTL: cfg.DefaultTTL,
		}, tel)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
