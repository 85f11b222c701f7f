// Package verify runs the license verification pipeline shared by every
// record type: validate, check the cache, search the register, fetch the
// details page, parse it and cache the successful result.
package verify

import (
	"context"
	"fmt"
	"time"

	"ppbverify/internal/cache"
	"ppbverify/internal/components/assert"
	"ppbverify/internal/components/chrono"
	"ppbverify/internal/components/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_service_verify    = "service.verify"
	report_service_recovered = "service.recovered"
)

var tracer = otel.Tracer("ppbverify.internal.verify")

// Outcomes reported to the Observer besides the failure kinds.
const (
	OutcomeSuccess  = "success"
	OutcomeCacheHit = "cache_hit"
)

// Observer receives verification metrics.
type Observer interface {
	ObserveVerification(kind Kind, outcome string, elapsed time.Duration)
	ObserveCacheLookup(kind Kind, hit bool)
}

type nopObserver struct{}

func (nopObserver) ObserveVerification(Kind, string, time.Duration) {}
func (nopObserver) ObserveCacheLookup(Kind, bool)                    {}

// CacheStats is the cache section of the stats and health responses. Only
// cache_enabled is present when caching is off.
type CacheStats struct {
	Enabled bool `json:"cache_enabled"`
	*cache.Stats
}

// Verifier is a verification service of any record type.
type Verifier interface {
	Kind() Kind
	IdentifierKey() string
	VerifyResult(ctx context.Context, identifier string, useCache bool) Result
	CacheStats(ctx context.Context) CacheStats
	// ClearCache empties the cache, false when caching is off.
	ClearCache(ctx context.Context) bool
	// CleanupExpired drops expired entries of backends without native expiry.
	CleanupExpired() int
	Close() error
}

type Service[R any] struct {
	profile  Profile[R]
	cache    cache.Cache[Envelope[R]]
	ttl      time.Duration
	clock    chrono.API
	observer Observer
	tel      telemetry.API
}

type Option func(*options)

type options struct {
	observer Observer
}

func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// New creates a Service. A nil store disables caching.
func New[R any](
	profile Profile[R],
	store cache.Cache[Envelope[R]],
	ttl time.Duration,
	clock chrono.API,
	tel telemetry.API,
	opts ...Option,
) *Service[R] {
	assert.NotNil(profile.Normalize)
	assert.NotNil(profile.Search)
	assert.NotNil(profile.Detail)
	assert.NotNil(profile.Parse)
	assert.NotNil(profile.Complete)
	assert.NotNil(profile.Stamp)
	assert.NotNil(clock)
	assert.NotNil(tel)

	o := options{observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}

	return &Service[R]{
		profile:  profile,
		cache:    store,
		ttl:      ttl,
		clock:    clock,
		observer: o.observer,
		tel:      telemetry.NewScopedAPI("verify_"+string(profile.Kind), tel),
	}
}

func (s *Service[R]) Kind() Kind {
	return s.profile.Kind
}

func (s *Service[R]) IdentifierKey() string {
	return s.profile.IdentifierKey
}

func (s *Service[R]) CacheEnabled() bool {
	return s.cache != nil
}

// Verify runs the pipeline for one identifier. It never panics and never
// returns an error: every failure is reported in the envelope.
func (s *Service[R]) Verify(ctx context.Context, identifier string, useCache bool) (env Envelope[R]) {
	start := time.Now()
	normalized := s.profile.Normalize(identifier)

	ctx, span := tracer.Start(ctx, "verify."+string(s.profile.Kind))
	defer span.End()
	span.SetAttributes(
		attribute.String("identifier", normalized),
		attribute.Bool("use_cache", useCache),
	)

	outcome := OutcomeSuccess
	defer func() {
		if r := recover(); r != nil {
			err := newError(Unexpected, fmt.Sprintf("Unexpected error: %v", r), fmt.Errorf("%v", r))
			s.tel.ReportBroken(report_service_recovered, err, normalized)
			env = s.failure(normalized, start, err)
			outcome = string(Unexpected)
		}
		if !env.Success {
			span.SetStatus(codes.Error, env.Message)
		}
		span.SetAttributes(attribute.Bool("from_cache", env.FromCache))
		s.observer.ObserveVerification(s.profile.Kind, outcome, time.Since(start))
	}()

	env, err := s.run(ctx, normalized, useCache, start)
	if err != nil {
		kind := KindOf(err)
		outcome = string(kind)
		span.RecordError(err)
		switch kind {
		case NotFound, InvalidInput, InvalidFormat:
			s.tel.ReportDebug(report_service_verify, normalized, err.Error())
		default:
			s.tel.ReportWarning(report_service_verify, err, normalized)
		}
		return s.failure(normalized, start, err)
	}
	if env.FromCache {
		outcome = OutcomeCacheHit
	}
	return env
}

func (s *Service[R]) run(ctx context.Context, id string, useCache bool, start time.Time) (Envelope[R], error) {
	messages := s.profile.Messages
	if id == "" {
		return Envelope[R]{}, newError(InvalidInput, messages.InvalidInput, nil)
	}
	if s.profile.Format != nil && !s.profile.Format.MatchString(id) {
		return Envelope[R]{}, newError(InvalidFormat, messages.InvalidFormat, nil)
	}

	cacheOn := useCache && s.cache != nil
	key := CacheKey(id)
	if cacheOn {
		cached, ok := s.cache.Get(ctx, key)
		s.observer.ObserveCacheLookup(s.profile.Kind, ok)
		if ok {
			cached.FromCache = true
			return cached, nil
		}
	}

	token, seed, found, err := s.profile.Search(ctx, id)
	if err != nil {
		return Envelope[R]{}, newError(UpstreamUnreachable, fmt.Sprintf("Failed to connect to PPB portal: %s", err), err)
	}
	if !found || token == "" {
		return Envelope[R]{}, newError(NotFound, fmt.Sprintf(messages.NotFound, id), nil)
	}

	markup, err := s.profile.Detail(ctx, token)
	if err != nil || markup == "" {
		return Envelope[R]{}, newError(DetailFetchFailed, messages.DetailFailed, err)
	}

	record := s.profile.Parse(seed, markup)
	if !s.profile.Complete(record) {
		return Envelope[R]{}, newError(IncompleteData, messages.Incomplete, nil)
	}
	s.profile.Stamp(&record, s.clock.Now().UTC().Format(verifiedAtLayout))

	env := Envelope[R]{
		Success:          true,
		IdentifierKey:    s.profile.IdentifierKey,
		Identifier:       id,
		Message:          messages.Success,
		ProcessingTimeMS: elapsedMS(start),
		Data:             &record,
	}
	if cacheOn {
		s.cache.Set(ctx, key, env, s.ttl)
	}
	return env, nil
}

func (s *Service[R]) failure(id string, start time.Time, err error) Envelope[R] {
	return Envelope[R]{
		IdentifierKey:    s.profile.IdentifierKey,
		Identifier:       id,
		Message:          err.Error(),
		ProcessingTimeMS: elapsedMS(start),
	}
}

func (s *Service[R]) VerifyResult(ctx context.Context, identifier string, useCache bool) Result {
	return s.Verify(ctx, identifier, useCache)
}

func (s *Service[R]) CacheStats(ctx context.Context) CacheStats {
	if s.cache == nil {
		return CacheStats{}
	}
	stats := s.cache.Stats(ctx)
	return CacheStats{Enabled: true, Stats: &stats}
}

func (s *Service[R]) ClearCache(ctx context.Context) bool {
	if s.cache == nil {
		return false
	}
	s.cache.Clear(ctx)
	return true
}

// Cache exposes the backing store, nil when caching is off.
func (s *Service[R]) Cache() cache.Cache[Envelope[R]] {
	return s.cache
}

func (s *Service[R]) CleanupExpired() int {
	sweeper, ok := s.cache.(cache.Sweeper)
	if !ok {
		return 0
	}
	return sweeper.CleanupExpired()
}

func (s *Service[R]) Close() error {
	closer, ok := s.cache.(cache.Closer)
	if !ok {
		return nil
	}
	return closer.Close()
}
