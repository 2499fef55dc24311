// Package engine serves queries over the indexed project.
//
// The Engine fetches project documents, builds registry snapshots through
// the content-addressed cache and publishes them atomically. Queries read
// the snapshot current at call start. A missing snapshot is built
// synchronously; a stale one is refreshed in the background while the old
// one keeps serving.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cache"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/config"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/fetch"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/registry"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/state"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// Defaults.
var (
	DefaultSchemaPatterns = []string{"models/**/*.yml", "models/**/*.yaml"}
	DefaultSQLPatterns    = []string{"models/**/*.sql"}
)

// Config holds engine configuration.
type Config struct {
	// Repository locates the project
	Repository fetch.RepositorySpec
	// Fetcher reads documents; nil uses a LocalFetcher
	Fetcher fetch.Fetcher
	// ProjectFile is the manifest path relative to the repository root
	ProjectFile    string
	SchemaPatterns []string
	SQLPatterns    []string

	// CacheTTL bounds the age of a snapshot before a background refresh
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Resolver carries schema override, target and schema strategy
	Resolver config.ResolverOptions
	// WarehouseType is used by dataset mapping when no type is requested
	WarehouseType string

	// StatePath is the SQLite database for build history; empty keeps it in memory
	StatePath string
	// Store replaces the SQLite store when set
	Store state.Store

	// Concurrency bounds parallel document parsing; <= 0 means 8
	Concurrency int
	Clock       func() time.Time
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Engine answers metadata queries over the latest snapshot.
type Engine struct {
	cfg     Config
	fetcher fetch.Fetcher
	cache   *cache.Store
	store   state.Store
	logger  *slog.Logger
	now     func() time.Time

	flight singleflight.Group
	// refreshedAt is the unix nano time of the last successful refresh
	refreshedAt atomic.Int64
	last        atomic.Pointer[snapshotBuild]

	bgCtx      context.Context
	bgCancel   context.CancelFunc
	bgMu       sync.Mutex
	bgWG       sync.WaitGroup
	closed     bool
	refreshing atomic.Bool
	closeOnce  sync.Once
}

// New creates an engine. No documents are read until the first query or
// Refresh.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ProjectFile == "" {
		cfg.ProjectFile = config.ProjectFileName
	}
	if len(cfg.SchemaPatterns) == 0 {
		cfg.SchemaPatterns = DefaultSchemaPatterns
	}
	if len(cfg.SQLPatterns) == 0 {
		cfg.SQLPatterns = DefaultSQLPatterns
	}
	if err := fetch.ValidatePatterns(append(append([]string{cfg.ProjectFile}, cfg.SchemaPatterns...), cfg.SQLPatterns...)); err != nil {
		return nil, err
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	logger.Debug("initializing engine", "repository", cfg.Repository.String(), "project_file", cfg.ProjectFile)

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = fetch.NewLocalFetcher(logger)
	}

	store := cfg.Store
	if store == nil {
		path := cfg.StatePath
		if path == "" {
			path = ":memory:"
		}
		sqlite := state.NewSQLiteStore(logger)
		if err := sqlite.Open(path); err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		store = sqlite
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		cache: cache.New(cache.Options{
			MaxEntries: cfg.CacheMaxEntries,
			TTL:        cfg.CacheTTL,
			Clock:      cfg.Clock,
			Logger:     logger,
		}),
		store:    store,
		logger:   logger,
		now:      cfg.Clock,
		bgCtx:    bgCtx,
		bgCancel: cancel,
	}, nil
}

// Close stops background refreshes and closes the state store.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.bgMu.Lock()
		e.closed = true
		e.bgMu.Unlock()
		e.bgCancel()
		e.bgWG.Wait()
		err = e.store.Close()
	})
	return err
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Snapshot returns the current snapshot without triggering any refresh.
func (e *Engine) Snapshot() *registry.Registry { return e.cache.Snapshot() }

// Registry returns the snapshot queries are served from, building it on
// first use.
func (e *Engine) Registry(ctx context.Context) (*registry.Registry, error) {
	return e.snapshot(ctx)
}

// snapshot returns the snapshot to serve a query from.
func (e *Engine) snapshot(ctx context.Context) (*registry.Registry, error) {
	if reg := e.cache.Snapshot(); reg != nil {
		if e.stale() {
			e.refreshInBackground()
		}
		return reg, nil
	}
	if _, err := e.Refresh(ctx, false); err != nil {
		return nil, err
	}
	reg := e.cache.Snapshot()
	if reg == nil {
		return nil, &core.NoSnapshotError{}
	}
	return reg, nil
}

func (e *Engine) stale() bool {
	at := e.refreshedAt.Load()
	if at == 0 {
		return true
	}
	return e.now().Sub(time.Unix(0, at)) >= e.cfg.CacheTTL
}

func (e *Engine) refreshInBackground() {
	if !e.refreshing.CompareAndSwap(false, true) {
		return
	}
	e.bgMu.Lock()
	if e.closed {
		e.bgMu.Unlock()
		e.refreshing.Store(false)
		return
	}
	e.bgWG.Add(1)
	e.bgMu.Unlock()

	go func() {
		defer e.bgWG.Done()
		defer e.refreshing.Store(false)
		if _, err := e.Refresh(e.bgCtx, false); err != nil {
			e.logger.Warn("background refresh failed", "error", err)
		}
	}()
}
