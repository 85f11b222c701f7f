package cache

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"ppbverify/internal/components/assert"
	"ppbverify/internal/components/telemetry"

	"github.com/redis/go-redis/v9"
)

const (
	report_redis_get   = "redis.get"
	report_redis_set   = "redis.set"
	report_redis_del   = "redis.delete"
	report_redis_clear = "redis.clear"
	report_redis_stats = "redis.stats"
)

const scanBatch = 100

type RedisOptions struct {
	URL        string
	KeyPrefix  string
	DefaultTTL time.Duration
	PoolSize   int
}

// Redis stores JSON encoded values under a per service key prefix and lets
// redis expire them.
type Redis[V any] struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	tel        telemetry.API

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// NewRedis connects to the server at opts.URL and pings it.
func NewRedis[V any](ctx context.Context, opts RedisOptions, tel telemetry.API) (*Redis[V], error) {
	assert.NotNil(tel)

	parsed, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opts.PoolSize > 0 {
		parsed.PoolSize = opts.PoolSize
	}

	client := redis.NewClient(parsed)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisFromClient[V](client, opts.KeyPrefix, opts.DefaultTTL, tel), nil
}

// NewRedisFromClient wraps an already connected client.
func NewRedisFromClient[V any](client *redis.Client, prefix string, defaultTTL time.Duration, tel telemetry.API) *Redis[V] {
	assert.NotNil(client)
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Redis[V]{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		tel:        telemetry.NewScopedAPI("cache", tel),
	}
}

func (r *Redis[V]) key(key string) string {
	return r.prefix + key
}

func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var out V

	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return out, false
	}
	if err != nil {
		r.tel.ReportBroken(report_redis_get, err, key)
		r.misses.Add(1)
		return out, false
	}

	err = json.Unmarshal(raw, &out)
	if err != nil {
		r.tel.ReportBroken(report_redis_get, fmt.Errorf("decode: %w", err), key)
		r.misses.Add(1)
		return out, false
	}

	r.hits.Add(1)
	return out, true
}

func (r *Redis[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	raw, err := json.Marshal(value)
	if err != nil {
		r.tel.ReportBroken(report_redis_set, fmt.Errorf("encode: %w", err), key)
		return
	}
	err = r.client.SetEx(ctx, r.key(key), raw, ttl).Err()
	if err != nil {
		r.tel.ReportBroken(report_redis_set, err, key)
		return
	}
	r.sets.Add(1)
}

func (r *Redis[V]) Delete(ctx context.Context, key string) bool {
	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		r.tel.ReportBroken(report_redis_del, err, key)
		return false
	}
	return n > 0
}

func (r *Redis[V]) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// Clear removes every key under the prefix, keys of other services are untouched.
func (r *Redis[V]) Clear(ctx context.Context) {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		r.tel.ReportBroken(report_redis_clear, fmt.Errorf("scan: %w", err))
		return
	}
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		err = r.client.Del(ctx, keys[start:end]...).Err()
		if err != nil {
			r.tel.ReportBroken(report_redis_clear, err)
			return
		}
	}
	r.tel.ReportDebug(report_redis_clear, len(keys))
}

func (r *Redis[V]) Stats(ctx context.Context) Stats {
	hits, misses := r.hits.Load(), r.misses.Load()
	stats := Stats{
		Backend:       BackendRedis,
		Hits:          hits,
		Misses:        misses,
		Sets:          r.sets.Load(),
		HitRate:       hitRate(hits, misses),
		TotalRequests: hits + misses,
	}

	keys, err := r.scanKeys(ctx)
	if err != nil {
		r.tel.ReportBroken(report_redis_stats, err)
		stats.Error = err.Error()
		return stats
	}
	stats.Size = len(keys)

	info, err := r.client.Info(ctx, "stats").Result()
	if err != nil {
		r.tel.ReportBroken(report_redis_stats, err)
		stats.Error = err.Error()
		return stats
	}
	fields := parseInfo(info)
	stats.KeyspaceHits, _ = strconv.ParseInt(fields["keyspace_hits"], 10, 64)
	stats.KeyspaceMisses, _ = strconv.ParseInt(fields["keyspace_misses"], 10, 64)
	return stats
}

func (r *Redis[V]) Close() error {
	return r.client.Close()
}

// parseInfo reads the `field:value` lines of an INFO reply.
func parseInfo(info string) map[string]string {
	out := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[name] = value
	}
	return out
}
