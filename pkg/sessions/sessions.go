// Package sessions maps caller session ids to remote conversation threads.
package sessions

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by GetOrCreate after Close.
var ErrClosed = errors.New("session map closed")

// Defaults applied by New for zero Config fields.
const (
	DefaultTTL             = 24 * time.Hour
	DefaultMaxSize         = 10000
	DefaultCleanupInterval = time.Minute
)

// Config bounds the map. A negative TTL disables expiry; a negative MaxSize disables eviction.
type Config struct {
	TTL             time.Duration
	MaxSize         int
	CleanupInterval time.Duration
	// OnSizeChange, when set, is called with the new entry count after every change.
	OnSizeChange func(n int)
}

// CreateFunc creates the thread for a session that has none.
type CreateFunc func(ctx context.Context) (threadID string, err error)

type entry struct {
	threadID string
	touched  time.Time
	element  *list.Element
}

// Map is a concurrency-safe, TTL- and size-bounded sessionID -> threadID map.
// Entries expire after TTL without access; the least recently used entry is
// evicted when MaxSize is reached.
//
//nolint:govet // Logical field grouping preferred over memory alignment
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // least recently used at front
	ttl     time.Duration
	maxSize int
	onSize  func(int)
	now     func() time.Time

	group  singleflight.Group
	done   chan struct{}
	closed bool
}

// New creates a map and starts its background cleanup goroutine. Call Close to stop it.
func New(cfg Config) *Map {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	m := &Map{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     cfg.TTL,
		maxSize: cfg.MaxSize,
		onSize:  cfg.OnSizeChange,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.cleanup(cfg.CleanupInterval)
	return m
}

// Get returns the thread for sessionID and refreshes its TTL.
func (m *Map) Get(sessionID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(sessionID)
}

func (m *Map) getLocked(sessionID string) (string, bool) {
	e, ok := m.entries[sessionID]
	if !ok {
		return "", false
	}
	now := m.now()
	if m.expired(e, now) {
		m.removeLocked(sessionID, e)
		return "", false
	}
	e.touched = now
	m.order.MoveToBack(e.element)
	return e.threadID, true
}

// Set binds sessionID to threadID, replacing any previous binding.
func (m *Map) Set(sessionID, threadID string) {
	m.mu.Lock()
	m.setLocked(sessionID, threadID)
	n := len(m.entries)
	m.mu.Unlock()
	m.notify(n)
}

func (m *Map) setLocked(sessionID, threadID string) {
	now := m.now()
	if e, ok := m.entries[sessionID]; ok {
		e.threadID = threadID
		e.touched = now
		m.order.MoveToBack(e.element)
		return
	}
	if m.maxSize > 0 && len(m.entries) >= m.maxSize {
		m.evictOldest()
	}
	m.entries[sessionID] = &entry{threadID: threadID, touched: now, element: m.order.PushBack(sessionID)}
}

// Delete removes the binding for sessionID.
func (m *Map) Delete(sessionID string) {
	m.mu.Lock()
	if e, ok := m.entries[sessionID]; ok {
		m.removeLocked(sessionID, e)
	}
	n := len(m.entries)
	m.mu.Unlock()
	m.notify(n)
}

// GetOrCreate returns the thread bound to sessionID, calling create when there is none.
// Concurrent first calls for one session share a single create call and all of them
// report created. The create runs detached from any one caller's cancellation; each
// caller stops waiting when its own ctx is done. A failed create leaves the session unbound.
func (m *Map) GetOrCreate(ctx context.Context, sessionID string, create CreateFunc) (threadID string, created bool, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", false, ErrClosed
	}
	if id, ok := m.getLocked(sessionID); ok {
		m.mu.Unlock()
		return id, false, nil
	}
	m.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(sessionID, func() (any, error) {
		if id, ok := m.Get(sessionID); ok {
			return flight{threadID: id}, nil
		}
		id, err := create(detached)
		if err != nil {
			return flight{}, fmt.Errorf("create thread for session %s: %w", sessionID, err)
		}
		m.Set(sessionID, id)
		return flight{threadID: id, created: true}, nil
	})

	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("wait for thread of session %s: %w", sessionID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", false, res.Err //nolint:wrapcheck // already wrapped inside the flight
		}
		f, _ := res.Val.(flight)
		return f.threadID, f.created, nil
	}
}

type flight struct {
	threadID string
	created  bool
}

// Len returns the number of live entries, expired ones included until the next cleanup.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Map) expired(e *entry, now time.Time) bool {
	return m.ttl > 0 && now.Sub(e.touched) >= m.ttl
}

func (m *Map) removeLocked(sessionID string, e *entry) {
	m.order.Remove(e.element)
	delete(m.entries, sessionID)
}

func (m *Map) evictOldest() {
	front := m.order.Front()
	if front == nil {
		return
	}
	sessionID, _ := front.Value.(string)
	m.order.Remove(front)
	delete(m.entries, sessionID)
}

func (m *Map) notify(n int) {
	if m.onSize != nil {
		m.onSize(n)
	}
}

func (m *Map) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

// sweep removes every expired entry.
func (m *Map) sweep() {
	m.mu.Lock()
	now := m.now()
	removed := 0
	for id, e := range m.entries {
		if m.expired(e, now) {
			m.removeLocked(id, e)
			removed++
		}
	}
	n := len(m.entries)
	m.mu.Unlock()
	if removed > 0 {
		m.notify(n)
	}
}

// Close stops the cleanup goroutine. It is safe to call multiple times.
func (m *Map) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		close(m.done)
		m.closed = true
	}
}
