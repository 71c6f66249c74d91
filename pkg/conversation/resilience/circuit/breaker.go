// Package circuit fails Conversation Service calls fast while the service is down.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentrunner/pkg/conversation"
)

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen admits one trial call to learn whether the service is back.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Verdict is what one call result says about the health of the service.
type Verdict int

const (
	// Neutral results say nothing: the caller gave up, or the call never reached the service.
	Neutral Verdict = iota
	// Healthy results prove the service answered, even when it refused the request.
	Healthy
	// Unhealthy results count towards opening the circuit.
	Unhealthy
)

func (v Verdict) String() string {
	switch v {
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	default:
		return "neutral"
	}
}

// Classify maps the result of a remote call onto a Verdict. Client-side refusals
// (bad request, not found, auth) are answers from a live service; rate limits,
// transient faults, per-call deadlines and unclassified errors are not.
func Classify(err error) Verdict {
	if err == nil {
		return Healthy
	}
	if errors.Is(err, context.Canceled) {
		return Neutral
	}
	var rejected *Error
	if errors.As(err, &rejected) {
		return Neutral
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Unhealthy
	}
	switch conversation.TypeOf(err) {
	case conversation.ErrorTypeBadRequest, conversation.ErrorTypeNotFound, conversation.ErrorTypeAuth:
		return Healthy
	default:
		return Unhealthy
	}
}

// Config tunes the breaker.
type Config struct {
	// FailureThreshold is the number of consecutive unhealthy calls that opens the circuit.
	FailureThreshold int `yaml:"failure_threshold"`
	// SuccessThreshold is the number of healthy trial calls that closes it again.
	SuccessThreshold int `yaml:"success_threshold"`
	// Timeout is how long the circuit stays open before a trial call is let through.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig is used when the resilience section leaves the breaker unset.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	Timeout:          30 * time.Second,
}

// Error rejects a call without sending it.
type Error struct {
	State State
	// RetryAfter is the time left before a trial call is admitted; zero while a trial is in flight.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker is %s, retry in %s", e.State, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStateHook calls fn after every state change, outside the breaker lock.
func WithStateHook(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// Breaker guards the Conversation Service. Calls ask Admit for a ticket and report
// their Verdict on it.
//
//nolint:govet // Logical field grouping preferred over memory alignment
type Breaker struct {
	cfg      Config
	now      func() time.Time
	onChange func(from, to State)

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
}

// New creates a closed breaker. Thresholds below one are raised to one.
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	b := &Breaker{cfg: cfg, now: time.Now, state: Closed}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type change struct {
	from, to State
}

// Admit asks to send one call. It returns an *Error while the circuit is open, or
// while half-open with the single trial call still in flight. Otherwise the caller
// must report the call's Verdict through done; later reports are ignored.
func (b *Breaker) Admit() (done func(Verdict), err error) {
	b.mu.Lock()
	var changes []change
	trial := false
	switch b.state {
	case Open:
		left := b.cfg.Timeout - b.now().Sub(b.openedAt)
		if left > 0 {
			b.mu.Unlock()
			return nil, &Error{State: Open, RetryAfter: left}
		}
		changes = b.moveLocked(changes, HalfOpen)
		fallthrough
	case HalfOpen:
		if b.probing {
			b.mu.Unlock()
			b.notify(changes)
			return nil, &Error{State: HalfOpen}
		}
		b.probing = true
		trial = true
	}
	b.mu.Unlock()
	b.notify(changes)

	var once sync.Once
	return func(v Verdict) {
		once.Do(func() { b.report(trial, v) })
	}, nil
}

func (b *Breaker) report(trial bool, v Verdict) {
	b.mu.Lock()
	var changes []change
	if trial {
		b.probing = false
	}
	switch b.state {
	case Closed:
		switch v {
		case Healthy:
			b.failures = 0
		case Unhealthy:
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				changes = b.moveLocked(changes, Open)
			}
		}
	case HalfOpen:
		// Only the trial call speaks for a half-open circuit.
		if !trial {
			break
		}
		switch v {
		case Healthy:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				changes = b.moveLocked(changes, Closed)
			}
		case Unhealthy:
			changes = b.moveLocked(changes, Open)
		}
	}
	// Results arriving while open belong to calls admitted before the trip.
	b.mu.Unlock()
	b.notify(changes)
}

func (b *Breaker) moveLocked(changes []change, to State) []change {
	from := b.state
	b.state = to
	switch to {
	case Closed:
		b.failures = 0
		b.successes = 0
	case Open:
		b.openedAt = b.now()
		b.successes = 0
	case HalfOpen:
		b.successes = 0
	}
	return append(changes, change{from: from, to: to})
}

func (b *Breaker) notify(changes []change) {
	if b.onChange == nil {
		return
	}
	for _, c := range changes {
		b.onChange(c.from, c.to)
	}
}

// State returns the current position without advancing an expired open period.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed and drops any trial in flight.
func (b *Breaker) Reset() {
	b.mu.Lock()
	var changes []change
	if b.state != Closed {
		changes = b.moveLocked(changes, Closed)
	}
	b.failures = 0
	b.probing = false
	b.mu.Unlock()
	b.notify(changes)
}
