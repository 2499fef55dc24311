// Package cache provides the content-addressed store behind document parses
// and snapshot builds.
//
// A Store is a size-bounded LRU with per-entry TTL. GetOrCompute coalesces
// concurrent callers for the same key into a single computation; different
// keys never wait on each other. Failed computations are never stored.
//
// The Store also holds the current registry snapshot behind an atomic
// pointer, so readers never observe a partially built registry.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/registry"
)

// Defaults.
const (
	DefaultMaxEntries = 100
	DefaultTTL        = 60 * time.Minute
)

// Options configures a Store.
type Options struct {
	// MaxEntries bounds the number of live entries; <= 0 uses DefaultMaxEntries
	MaxEntries int
	// TTL applies when GetOrCompute is called with ttl <= 0; < 0 disables expiry
	TTL time.Duration
	// Clock returns the current time; nil uses time.Now
	Clock  func() time.Time
	Logger *slog.Logger
}

// Stats reports store counters.
type Stats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Evictions    int64   `json:"evictions"`
	Expirations  int64   `json:"expirations"`
	Computations int64   `json:"computations"`
	Size         int     `json:"size"`
	MaxEntries   int     `json:"max_entries"`
	HitRate      float64 `json:"hit_rate"`
}

type entry struct {
	key        string
	value      any
	createdAt  time.Time
	accessedAt time.Time
	// expiresAt is zero for entries that never expire
	expiresAt time.Time
}

// Store is a concurrency-safe LRU cache with TTL and single-flight computation.
type Store struct {
	mu         sync.Mutex
	ll         *list.List // front = most recently used
	items      map[string]*list.Element
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger

	hits, misses, evictions, expirations, computations int64

	group    singleflight.Group
	snapshot atomic.Pointer[registry.Registry]
}

// New creates a Store.
func New(opts Options) *Store {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		now:        opts.Clock,
		logger:     opts.Logger,
	}
}

// GetOrCompute returns the live value for key, or runs fn to produce it.
// Concurrent callers for the same key share one execution of fn. A caller
// whose ctx ends stops waiting; the computation itself carries on for the
// others. Errors are returned to every waiter and never stored.
func (s *Store) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func() (any, error)) (any, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// A flight that finished between Get and DoChan already stored the value.
		if v, ok := s.peek(key); ok {
			return v, nil
		}
		s.mu.Lock()
		s.computations++
		s.mu.Unlock()

		v, err := fn()
		if err != nil {
			s.logger.Debug("cache computation failed", "key", key, "error", err)
			return nil, err
		}
		s.Set(key, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Compute is a typed wrapper around GetOrCompute.
func Compute[T any](ctx context.Context, s *Store, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	v, err := s.GetOrCompute(ctx, key, ttl, func() (any, error) { return fn() })
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: key %q holds %T, want %T", key, v, zero)
	}
	return t, nil
}

// Get returns the live value for key and marks it recently used.
// Expired entries are removed and reported as absent.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		s.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	now := s.now()
	if s.expired(e, now) {
		s.removeElement(el)
		s.expirations++
		s.misses++
		return nil, false
	}
	e.accessedAt = now
	s.ll.MoveToFront(el)
	s.hits++
	return e.value, true
}

// peek is Get without touching counters.
func (s *Store) peek(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if s.expired(e, s.now()) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. The least recently used entry is evicted
// first when the store is full.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if ttl == 0 {
		ttl = s.ttl
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	if el, ok := s.items[key]; ok {
		e := el.Value.(*entry)
		e.value, e.createdAt, e.accessedAt, e.expiresAt = value, now, now, expiresAt
		s.ll.MoveToFront(el)
		return
	}

	for s.ll.Len() >= s.maxEntries {
		oldest := s.ll.Back()
		if oldest == nil {
			break
		}
		s.logger.Debug("cache eviction", "key", oldest.Value.(*entry).key)
		s.removeElement(oldest)
		s.evictions++
	}
	e := &entry{key: key, value: value, createdAt: now, accessedAt: now, expiresAt: expiresAt}
	s.items[key] = s.ll.PushFront(e)
}

// Invalidate removes key. It reports whether an entry was present.
func (s *Store) Invalidate(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if ok {
		s.removeElement(el)
	}
	return ok
}

// InvalidatePrefix removes every key starting with prefix and returns the count.
func (s *Store) InvalidatePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, el := range s.items {
		if strings.HasPrefix(key, prefix) {
			s.removeElement(el)
			n++
		}
	}
	return n
}

// PruneExpired removes expired entries and returns the count.
func (s *Store) PruneExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for el := s.ll.Back(); el != nil; {
		prev := el.Prev()
		if s.expired(el.Value.(*entry), now) {
			s.removeElement(el)
			s.expirations++
			n++
		}
		el = prev
	}
	return n
}

// Clear drops every entry. Counters and the snapshot are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ll.Init()
	s.items = make(map[string]*list.Element)
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// Stats returns a copy of the counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Hits:         s.hits,
		Misses:       s.misses,
		Evictions:    s.evictions,
		Expirations:  s.expirations,
		Computations: s.computations,
		Size:         s.ll.Len(),
		MaxEntries:   s.maxEntries,
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRate = float64(s.hits) / float64(total)
	}
	return st
}

// SwapSnapshot publishes reg as the current snapshot and returns the previous one.
func (s *Store) SwapSnapshot(reg *registry.Registry) *registry.Registry {
	return s.snapshot.Swap(reg)
}

// Snapshot returns the current snapshot, or nil before the first build.
func (s *Store) Snapshot() *registry.Registry {
	return s.snapshot.Load()
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (s *Store) removeElement(el *list.Element) {
	s.ll.Remove(el)
	delete(s.items, el.Value.(*entry).key)
}
