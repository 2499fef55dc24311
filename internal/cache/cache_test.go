package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/registry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGetOrCompute_SingleFlight(t *testing.T) {
	s := New(Options{})
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func() (any, error) {
		calls.Add(1)
		<-release
		return "value", nil
	}

	const n = 50
	var wg sync.WaitGroup
	results := make([]any, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.GetOrCompute(context.Background(), "k", 0, fn)
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, "value", results[i])
	}
	assert.Equal(t, int64(1), s.Stats().Computations)
}

func TestGetOrCompute_DifferentKeysDoNotBlock(t *testing.T) {
	s := New(Options{})
	block := make(chan struct{})
	defer close(block)

	go func() {
		_, _ = s.GetOrCompute(context.Background(), "slow", 0, func() (any, error) {
			<-block
			return 1, nil
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.GetOrCompute(ctx, "fast", 0, func() (any, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestGetOrCompute_TTLRecomputesOnce(t *testing.T) {
	clock := newFakeClock()
	s := New(Options{Clock: clock.Now})
	var calls atomic.Int32
	fn := func() (any, error) { return calls.Add(1), nil }

	ctx := context.Background()
	v, err := s.GetOrCompute(ctx, "k", time.Minute, fn)
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)

	v, _ = s.GetOrCompute(ctx, "k", time.Minute, fn)
	assert.Equal(t, int32(1), v, "served from cache")

	clock.Advance(2 * time.Minute)
	v, _ = s.GetOrCompute(ctx, "k", time.Minute, fn)
	assert.Equal(t, int32(2), v)
	v, _ = s.GetOrCompute(ctx, "k", time.Minute, fn)
	assert.Equal(t, int32(2), v)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1), s.Stats().Expirations)
}

func TestGetOrCompute_ErrorsNotCached(t *testing.T) {
	s := New(Options{})
	boom := errors.New("boom")
	var calls int

	_, err := s.GetOrCompute(context.Background(), "k", 0, func() (any, error) {
		calls++
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())

	v, err := s.GetOrCompute(context.Background(), "k", 0, func() (any, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestGetOrCompute_WaiterAbandons(t *testing.T) {
	s := New(Options{})
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _ = s.GetOrCompute(context.Background(), "k", 0, func() (any, error) {
			close(started)
			<-release
			return "late", nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.GetOrCompute(ctx, "k", 0, func() (any, error) { return "other", nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		v, ok := s.Get("k")
		return ok && v == "late"
	}, time.Second, time.Millisecond)
}

func TestCompute_Typed(t *testing.T) {
	s := New(Options{})
	ctx := context.Background()

	n, err := Compute(ctx, s, "n", 0, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = Compute(ctx, s, "n", 0, func() (string, error) { return "x", nil })
	assert.ErrorContains(t, err, "holds int")
}

func TestStore_LRUEviction(t *testing.T) {
	s := New(Options{MaxEntries: 2})
	s.Set("a", 1, 0)
	s.Set("b", 2, 0)

	_, ok := s.Get("a")
	require.True(t, ok)

	s.Set("c", 3, 0)
	_, ok = s.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, int64(1), s.Stats().Evictions)
}

func TestStore_Invalidation(t *testing.T) {
	clock := newFakeClock()
	s := New(Options{Clock: clock.Now})
	s.Set("doc:1", 1, time.Minute)
	s.Set("doc:2", 2, time.Hour)
	s.Set("snapshot:1", 3, -1)

	assert.True(t, s.Invalidate("doc:1"))
	assert.False(t, s.Invalidate("doc:1"))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, s.PruneExpired())
	_, ok := s.Get("snapshot:1")
	assert.True(t, ok, "negative ttl never expires")

	s.Set("doc:3", 3, 0)
	assert.Equal(t, 1, s.InvalidatePrefix("doc:"))
	assert.Equal(t, 1, s.Len())

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestStore_Stats(t *testing.T) {
	s := New(Options{})
	s.Set("a", 1, 0)
	s.Get("a")
	s.Get("a")
	s.Get("missing")

	st := s.Stats()
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 2.0/3.0, st.HitRate, 1e-9)
	assert.Equal(t, DefaultMaxEntries, st.MaxEntries)
}

func TestStore_SwapSnapshot(t *testing.T) {
	s := New(Options{})
	assert.Nil(t, s.Snapshot())

	first, err := registry.Build(registry.Input{}, registry.Options{BuildID: "one"})
	require.NoError(t, err)
	second, err := registry.Build(registry.Input{}, registry.Options{BuildID: "two"})
	require.NoError(t, err)

	assert.Nil(t, s.SwapSnapshot(first))
	prev := s.SwapSnapshot(second)
	assert.Equal(t, "one", prev.BuildID())
	assert.Equal(t, "two", s.Snapshot().BuildID())
}

func TestContentHash(t *testing.T) {
	base := ContentHash([]byte("models:\n  - name: a\n"))

	tests := []struct {
		name string
		in   string
		same bool
	}{
		{"crlf", "models:\r\n  - name: a\r\n", true},
		{"bom", "\ufeffmodels:\n  - name: a\n", true},
		{"trailing whitespace", "models:\n  - name: a\n\n  \n", true},
		{"different content", "models:\n  - name: b\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContentHash([]byte(tt.in))
			if tt.same {
				assert.Equal(t, base, got)
			} else {
				assert.NotEqual(t, base, got)
			}
		})
	}
}

func TestKey(t *testing.T) {
	assert.NotEqual(t, Key("doc", "ab", "c"), Key("doc", "a", "bc"))
	assert.Equal(t, Key("doc", "a"), Key("doc", "a"))
	assert.Regexp(t, `^doc:[0-9a-f]{64}$`, Key("doc", "a"))
}
