// Package limiter bounds traffic to the Conversation Service with a per-minute
// token bucket and a concurrency cap.
package limiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"agentrunner/pkg/conversation"
)

var (
	// ErrRateLimit is returned by Reserve when the bucket is empty.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrConcurrencyLimit is returned by ReserveSlot when every slot is taken.
	ErrConcurrencyLimit = errors.New("concurrency limit exceeded")
)

// Config sets the limits. Zero disables a limit.
type Config struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	MaxConcurrency    int `yaml:"max_concurrency"`
}

// Limiter enforces Config. The zero value is not usable; call New.
//
//nolint:govet // Struct layout optimization not critical for this use case
type Limiter struct {
	mu            sync.Mutex
	perMinute     int
	tokens        float64
	lastRefill    time.Time
	slots         chan struct{}
	now           func() time.Time
	pollFrequency time.Duration
}

// New creates a limiter starting with a full bucket.
func New(cfg Config) *Limiter {
	return newLimiter(cfg, time.Now)
}

func newLimiter(cfg Config, now func() time.Time) *Limiter {
	l := &Limiter{
		perMinute:     cfg.RequestsPerMinute,
		tokens:        float64(cfg.RequestsPerMinute),
		lastRefill:    now(),
		now:           now,
		pollFrequency: 50 * time.Millisecond,
	}
	if cfg.MaxConcurrency > 0 {
		l.slots = make(chan struct{}, cfg.MaxConcurrency)
	}
	return l
}

// Reserve takes one request token without blocking.
func (l *Limiter) Reserve() error {
	if l.perMinute <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillTokens()
	if l.tokens < 1 {
		return ErrRateLimit
	}
	l.tokens--
	return nil
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if err := l.Reserve(); err == nil {
			return nil
		}
		timer := time.NewTimer(l.untilNextToken())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ReserveSlot takes a concurrency slot without blocking.
func (l *Limiter) ReserveSlot() error {
	if l.slots == nil {
		return nil
	}
	select {
	case l.slots <- struct{}{}:
		return nil
	default:
		return ErrConcurrencyLimit
	}
}

// AcquireSlot blocks until a concurrency slot is free or ctx is done.
func (l *Limiter) AcquireSlot(ctx context.Context) error {
	if l.slots == nil {
		return nil
	}
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseSlot frees a slot taken by ReserveSlot or AcquireSlot.
func (l *Limiter) ReleaseSlot() {
	if l.slots == nil {
		return
	}
	select {
	case <-l.slots:
	default:
	}
}

// GetStatus returns the whole tokens left and the slots in use.
func (l *Limiter) GetStatus() (tokens, inFlight int) {
	l.mu.Lock()
	l.refillTokens()
	tokens = int(l.tokens)
	l.mu.Unlock()
	if l.slots != nil {
		inFlight = len(l.slots)
	}
	return tokens, inFlight
}

// refillTokens adds tokens in proportion to elapsed time, capped at one minute's worth.
func (l *Limiter) refillTokens() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed.Minutes() * float64(l.perMinute)
	if ceiling := float64(l.perMinute); l.tokens > ceiling {
		l.tokens = ceiling
	}
	l.lastRefill = now
}

func (l *Limiter) untilNextToken() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	missing := 1 - l.tokens
	if missing <= 0 || l.perMinute <= 0 {
		return l.pollFrequency
	}
	d := time.Duration(missing / float64(l.perMinute) * float64(time.Minute))
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// Interceptor waits for a token and a slot before every remote call.
func Interceptor(l *Limiter) conversation.Interceptor {
	return func(ctx context.Context, _ conversation.Call, next func(context.Context) error) error {
		if err := l.Wait(ctx); err != nil {
			return err //nolint:wrapcheck // context error as-is
		}
		if err := l.AcquireSlot(ctx); err != nil {
			return err //nolint:wrapcheck // context error as-is
		}
		defer l.ReleaseSlot()
		return next(ctx)
	}
}
