package sessions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMap(t *testing.T, cfg Config) (*Map, *clock) {
	t.Helper()
	m := New(cfg)
	t.Cleanup(m.Close)
	c := &clock{now: time.Unix(1700000000, 0)}
	m.now = c.Now
	return m, c
}

func TestSetGetDelete(t *testing.T) {
	m, _ := newTestMap(t, Config{})

	_, ok := m.Get("s1")
	assert.False(t, ok)

	m.Set("s1", "thread_a")
	id, ok := m.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "thread_a", id)

	m.Set("s1", "thread_b")
	id, _ = m.Get("s1")
	assert.Equal(t, "thread_b", id)
	assert.Equal(t, 1, m.Len())

	m.Delete("s1")
	_, ok = m.Get("s1")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestTTLExpiryIsSliding(t *testing.T) {
	m, c := newTestMap(t, Config{TTL: time.Hour})

	m.Set("s1", "t1")
	c.Advance(50 * time.Minute)
	_, ok := m.Get("s1")
	require.True(t, ok, "access within TTL")

	c.Advance(50 * time.Minute)
	_, ok = m.Get("s1")
	require.True(t, ok, "TTL restarts on access")

	c.Advance(time.Hour)
	_, ok = m.Get("s1")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestNegativeTTLNeverExpires(t *testing.T) {
	m, c := newTestMap(t, Config{TTL: -1})

	m.Set("s1", "t1")
	c.Advance(1000 * time.Hour)
	_, ok := m.Get("s1")
	assert.True(t, ok)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	var sizes []int
	m, _ := newTestMap(t, Config{MaxSize: 2, OnSizeChange: func(n int) { sizes = append(sizes, n) }})

	m.Set("a", "ta")
	m.Set("b", "tb")
	_, _ = m.Get("a") // b is now least recently used
	m.Set("c", "tc")

	_, ok := m.Get("b")
	assert.False(t, ok)
	_, ok = m.Get("a")
	assert.True(t, ok)
	_, ok = m.Get("c")
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2, 2}, sizes)
}

func TestSweepRemovesExpired(t *testing.T) {
	m, c := newTestMap(t, Config{TTL: time.Minute})
	m.Set("old", "t1")
	c.Advance(2 * time.Minute)
	m.Set("fresh", "t2")

	m.sweep()

	assert.Equal(t, 1, m.Len())
	_, ok := m.Get("fresh")
	assert.True(t, ok)
}

func TestGetOrCreate_CreatesOnce(t *testing.T) {
	m, _ := newTestMap(t, Config{})
	var calls atomic.Int32
	create := func(context.Context) (string, error) {
		calls.Add(1)
		return "thread_1", nil
	}

	id, created, err := m.GetOrCreate(context.Background(), "s", create)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "thread_1", id)

	id, created, err = m.GetOrCreate(context.Background(), "s", create)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "thread_1", id)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrCreate_ConcurrentFirstCallsShareCreate(t *testing.T) {
	m, _ := newTestMap(t, Config{})
	var calls atomic.Int32
	gate := make(chan struct{})
	create := func(context.Context) (string, error) {
		calls.Add(1)
		<-gate
		return "thread_shared", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _, err := m.GetOrCreate(context.Background(), "s", create)
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, id := range ids {
		assert.Equal(t, "thread_shared", id)
	}
}

func TestGetOrCreate_FirstCallerCancelDoesNotFailOthers(t *testing.T) {
	m, _ := newTestMap(t, Config{})
	started := make(chan struct{})
	gate := make(chan struct{})
	create := func(ctx context.Context) (string, error) {
		close(started)
		<-gate
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "thread_1", nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := m.GetOrCreate(firstCtx, "s1", create)
		firstErr <- err
	}()
	<-started

	type result struct {
		id  string
		err error
	}
	second := make(chan result, 1)
	go func() {
		id, _, err := m.GetOrCreate(context.Background(), "s1", create)
		second <- result{id, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(gate)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "thread_1", res.id)

	id, ok := m.Get("s1")
	assert.True(t, ok, "the shared create still binds the session")
	assert.Equal(t, "thread_1", id)
}

func TestGetOrCreate_FailureLeavesSessionUnbound(t *testing.T) {
	m, _ := newTestMap(t, Config{})
	boom := errors.New("service down")

	_, _, err := m.GetOrCreate(context.Background(), "s", func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, m.Len())

	id, created, err := m.GetOrCreate(context.Background(), "s", func(context.Context) (string, error) {
		return "thread_2", nil
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "thread_2", id)
}

func TestGetOrCreate_AfterClose(t *testing.T) {
	m, _ := newTestMap(t, Config{})
	m.Close()
	m.Close()

	_, _, err := m.GetOrCreate(context.Background(), "s", func(context.Context) (string, error) {
		return "t", nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}
