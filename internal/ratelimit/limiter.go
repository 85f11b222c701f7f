// Package ratelimit spaces out requests to the portal, which blocks clients
// that send requests in quick succession.
package ratelimit

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"ppbverify/internal/components/assert"
	"ppbverify/internal/components/telemetry"

	"golang.org/x/time/rate"
)

const report_limiter_wait = "limiter.wait"

// DefaultJitter is the upper bound of the random delay added on top of the
// base delay whenever a caller has to wait.
const DefaultJitter = 50 * time.Millisecond

// Limiter enforces a minimum delay between dispatches. It is shared by every
// caller in a process and is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	delay   time.Duration
	jitter  time.Duration
	limiter *rate.Limiter

	now   func() time.Time
	sleep func(time.Duration)
	tel   telemetry.API
}

type Option func(*Limiter)

// WithJitter overrides DefaultJitter, zero disables jitter.
func WithJitter(max time.Duration) Option {
	return func(l *Limiter) {
		l.jitter = max
	}
}

// WithClock replaces the clock and sleep functions, used by tests.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// New creates a Limiter, a delay of zero never blocks.
func New(delay time.Duration, tel telemetry.API, opts ...Option) *Limiter {
	assert.NonNegative("delay", delay)
	assert.NotNil(tel)

	l := &Limiter{
		delay:  delay,
		jitter: DefaultJitter,
		now:    time.Now,
		sleep:  time.Sleep,
		tel:    telemetry.NewScopedAPI("ratelimit", tel),
	}
	for _, opt := range opts {
		opt(l)
	}

	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	l.limiter = rate.NewLimiter(limit, 1)
	return l
}

// Delay is the configured minimum spacing.
func (l *Limiter) Delay() time.Duration {
	return l.delay
}

// Wait blocks until at least the configured delay has passed since the
// previous dispatch, then records the new dispatch before returning.
//
// There is no context: a caller that gives up after Wait has still used its
// slot, and the spacing is what keeps the portal from banning the client.
func (l *Limiter) Wait() {
	if l.delay <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tokens := l.limiter.TokensAt(now)
	if tokens >= 1 {
		l.limiter.ReserveN(now, 1)
		return
	}

	wait := time.Duration(math.Ceil((1 - tokens) * float64(l.delay)))
	if l.jitter > 0 {
		wait += rand.N(l.jitter + 1)
	}
	l.tel.ReportDebug(report_limiter_wait, wait.String())
	l.sleep(wait)

	// The next dispatch is spaced from when this one actually happens.
	dispatched := l.now()
	if rest := l.limiter.ReserveN(dispatched, 1).DelayFrom(dispatched); rest > 0 {
		l.sleep(rest)
	}
}
