package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FunnelEnvy/dbt-core-mcp/internal/cache"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/config"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/fetch"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/parser"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/registry"
	"github.com/FunnelEnvy/dbt-core-mcp/internal/state"
	"github.com/FunnelEnvy/dbt-core-mcp/pkg/core"
)

// DocumentStats counts schema documents by outcome.
type DocumentStats struct {
	Parsed int `json:"parsed"`
	Cached int `json:"cached"`
	Failed int `json:"failed"`
}

// DocumentError is a schema document that could not be read and was skipped.
type DocumentError struct {
	Path    string `json:"path"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// RefreshResult describes the snapshot a refresh left in place.
type RefreshResult struct {
	ModelCount      int    `json:"model_count"`
	SourceCount     int    `json:"source_count"`
	ExposureCount   int    `json:"exposure_count"`
	MetricCount     int    `json:"metric_count"`
	BuildDurationMs int64  `json:"build_duration_ms"`
	Version         string `json:"version"`
	BuildID         string `json:"build_id"`
	// Cached is true when no new snapshot was built
	Cached         bool                `json:"cached"`
	Documents      DocumentStats       `json:"documents"`
	Changed        []string            `json:"changed,omitempty"`
	Deleted        []string            `json:"deleted,omitempty"`
	DocumentErrors []DocumentError     `json:"document_errors,omitempty"`
	Warnings       []core.ParseWarning `json:"warnings,omitempty"`
}

// Summary returns a human-readable summary.
func (r *RefreshResult) Summary() string {
	mode := "rebuilt"
	if r.Cached {
		mode = "cached"
	}
	return fmt.Sprintf(
		"Snapshot %s (%s): %d models, %d sources, %d exposures, %d metrics | "+
			"Documents: %d parsed, %d cached, %d failed | %d warnings | %dms",
		shortVersion(r.Version), mode,
		r.ModelCount, r.SourceCount, r.ExposureCount, r.MetricCount,
		r.Documents.Parsed, r.Documents.Cached, r.Documents.Failed,
		len(r.Warnings), r.BuildDurationMs,
	)
}

func shortVersion(v string) string {
	if len(v) > 12 {
		return v[:12]
	}
	return v
}

// snapshotBuild is the cached outcome of one snapshot build.
type snapshotBuild struct {
	reg       *registry.Registry
	docs      DocumentStats
	docErrors []DocumentError
	warnings  []core.ParseWarning
}

// Refresh rebuilds the snapshot when it is stale or force is set.
// Concurrent calls share one refresh. Rebuilds that fail leave the previous
// snapshot serving; *core.ConfigError and *core.DuplicateNameError abort a
// rebuild, while unreadable documents are skipped and reported.
func (e *Engine) Refresh(ctx context.Context, force bool) (*RefreshResult, error) {
	ch := e.flight.DoChan("refresh", func() (any, error) {
		return e.refresh(e.bgCtx, force)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := *res.Val.(*RefreshResult)
		return &out, nil
	}
}

func (e *Engine) refresh(ctx context.Context, force bool) (*RefreshResult, error) {
	start := e.now()
	if !force && !e.stale() {
		if reg := e.cache.Snapshot(); reg != nil {
			return e.result(reg, e.lastBuild(), true, start), nil
		}
	}

	files, err := e.fetcher.Fetch(ctx, e.cfg.Repository, e.patterns())
	if err != nil {
		err = fmt.Errorf("fetch project: %w", err)
		e.recordFailure(ctx, start, "", force, err)
		return nil, err
	}

	manifest, err := e.loadManifest(files)
	if err != nil {
		e.recordFailure(ctx, start, "", force, err)
		return nil, err
	}
	resolver := config.NewResolver(manifest, e.cfg.Resolver)

	hashes := make(map[string]string, len(files))
	parts := []string{resolver.Fingerprint()}
	for _, p := range fetch.SortedPaths(files) {
		hashes[p] = cache.ContentHash(files[p])
		parts = append(parts, p, hashes[p])
	}
	version := cache.Hash(parts...)
	key := "snapshot:" + version
	if force {
		e.cache.Invalidate(key)
	}

	computed := false
	b, err := cache.Compute(ctx, e.cache, key, 0, func() (*snapshotBuild, error) {
		computed = true
		return e.build(ctx, resolver, manifest, files, hashes, version)
	})
	if err != nil {
		e.recordFailure(ctx, start, version, force, err)
		return nil, err
	}

	e.cache.SwapSnapshot(b.reg)
	e.last.Store(b)
	e.refreshedAt.Store(e.now().UnixNano())

	res := e.result(b.reg, b, !computed, start)
	previous, err := e.store.DocumentHashes(ctx)
	if err != nil {
		e.logger.Warn("failed to read document hashes", "error", err)
	}
	res.Changed, res.Deleted = state.Diff(previous, hashes)
	if err := e.store.ReplaceDocumentHashes(ctx, b.reg.BuildID(), hashes); err != nil {
		e.logger.Warn("failed to store document hashes", "error", err)
	}

	if computed {
		stats := b.reg.Stats()
		rec := &state.Build{
			ID:         b.reg.BuildID(),
			Version:    version,
			Status:     state.BuildStatusSuccess,
			StartedAt:  start,
			FinishedAt: e.now(),
			DurationMs: res.BuildDurationMs,
			Models:     stats.Models,
			Sources:    stats.Sources,
			Exposures:  stats.Exposures,
			Metrics:    stats.Metrics,
			Documents:  b.docs.Parsed + b.docs.Cached,
			FailedDocs: b.docs.Failed,
			Forced:     force,
		}
		if err := e.store.RecordBuild(ctx, rec); err != nil {
			e.logger.Warn("failed to record build", "error", err)
		}
	}

	e.logger.Info("refresh complete",
		"version", shortVersion(version),
		"cached", res.Cached,
		"models", res.ModelCount,
		"changed", len(res.Changed),
		"deleted", len(res.Deleted),
		"document_errors", len(res.DocumentErrors),
	)
	return res, nil
}

func (e *Engine) patterns() []string {
	out := []string{e.cfg.ProjectFile}
	out = append(out, e.cfg.SchemaPatterns...)
	return append(out, e.cfg.SQLPatterns...)
}

// loadManifest parses the project file. A project without one resolves
// every path to the defaults.
func (e *Engine) loadManifest(files map[string][]byte) (*config.Manifest, error) {
	data, ok := files[e.cfg.ProjectFile]
	if !ok {
		e.logger.Warn("project file not found, using defaults", "path", e.cfg.ProjectFile)
		return nil, nil
	}
	return config.ParseManifest(e.cfg.ProjectFile, data)
}

func (e *Engine) lastBuild() *snapshotBuild {
	return e.last.Load()
}

func (e *Engine) result(reg *registry.Registry, b *snapshotBuild, cached bool, start time.Time) *RefreshResult {
	stats := reg.Stats()
	res := &RefreshResult{
		ModelCount:      stats.Models,
		SourceCount:     stats.Sources,
		ExposureCount:   stats.Exposures,
		MetricCount:     stats.Metrics,
		BuildDurationMs: e.now().Sub(start).Milliseconds(),
		Version:         reg.ContentHash(),
		BuildID:         reg.BuildID(),
		Cached:          cached,
	}
	if b != nil {
		res.Documents = b.docs
		res.DocumentErrors = b.docErrors
		res.Warnings = b.warnings
	}
	return res
}

func (e *Engine) recordFailure(ctx context.Context, start time.Time, version string, force bool, cause error) {
	e.logger.Warn("refresh failed, keeping previous snapshot", "error", cause)
	rec := &state.Build{
		ID:         state.NewBuildID(),
		Version:    version,
		Status:     state.BuildStatusFailed,
		StartedAt:  start,
		FinishedAt: e.now(),
		Forced:     force,
		Error:      cause.Error(),
	}
	if err := e.store.RecordBuild(ctx, rec); err != nil {
		e.logger.Warn("failed to record build", "error", err)
	}
}

// build parses every schema document, scans every model body and merges the
// results into a new registry.
func (e *Engine) build(ctx context.Context, resolver *config.Resolver, manifest *config.Manifest,
	files map[string][]byte, hashes map[string]string, version string) (*snapshotBuild, error) {
	fingerprint := resolver.Fingerprint()

	var docPaths, sqlPaths []string
	for _, p := range fetch.SortedPaths(files) {
		switch {
		case p == e.cfg.ProjectFile:
		case fetch.MatchAny(e.cfg.SchemaPatterns, p):
			docPaths = append(docPaths, p)
		case fetch.MatchAny(e.cfg.SQLPatterns, p):
			sqlPaths = append(sqlPaths, p)
		}
	}

	var (
		mu       sync.Mutex
		out      = &snapshotBuild{}
		docs     = make([]*parser.Document, len(docPaths))
		bodyRefs = make([][]parser.Reference, len(sqlPaths))
		g, gctx  = errgroup.WithContext(ctx)
	)
	g.SetLimit(e.cfg.Concurrency)

	for i, p := range docPaths {
		g.Go(func() error {
			fresh := false
			doc, err := cache.Compute(gctx, e.cache, cache.Key("doc", fingerprint, p, hashes[p]), 0, func() (*parser.Document, error) {
				fresh = true
				return parser.Parse(p, files[p], parser.Options{Resolver: resolver})
			})
			mu.Lock()
			defer mu.Unlock()
			var perr *core.ParseError
			switch {
			case errors.As(err, &perr):
				out.docs.Failed++
				out.docErrors = append(out.docErrors, DocumentError{Path: p, Line: perr.Line, Column: perr.Column, Message: perr.Message})
				return nil
			case err != nil:
				return err
			case fresh:
				out.docs.Parsed++
			default:
				out.docs.Cached++
			}
			docs[i] = doc
			return nil
		})
	}
	for i, p := range sqlPaths {
		g.Go(func() error {
			refs, err := cache.Compute(gctx, e.cache, cache.Key("sql", hashes[p]), 0, func() ([]parser.Reference, error) {
				return parser.ScanReferences(string(files[p])), nil
			})
			if err != nil {
				return err
			}
			bodyRefs[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out.docErrors, func(i, j int) bool { return out.docErrors[i].Path < out.docErrors[j].Path })

	bodies := e.modelBodies(sqlPaths, bodyRefs, out)

	var in registry.Input
	project := resolver.Project()
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		out.warnings = append(out.warnings, doc.Warnings...)
		for _, m := range doc.Models {
			c := m.Clone()
			if refs, ok := bodies[strings.ToLower(c.Name)]; ok {
				parser.AttachReferences(c, refs, project)
			}
			out.warnings = append(out.warnings, c.Warnings...)
			in.Models = append(in.Models, c)
		}
		for _, s := range doc.Sources {
			c := s.Clone()
			out.warnings = append(out.warnings, c.Warnings...)
			in.Sources = append(in.Sources, c)
		}
		for _, x := range doc.Exposures {
			c := x.Clone()
			out.warnings = append(out.warnings, c.Warnings...)
			in.Exposures = append(in.Exposures, c)
		}
		for _, m := range doc.Metrics {
			c := m.Clone()
			out.warnings = append(out.warnings, c.Warnings...)
			in.Metrics = append(in.Metrics, c)
		}
	}

	info := registry.Project{
		Name:            project,
		Vars:            resolver.Vars(),
		Target:          e.cfg.Resolver.Target,
		DefaultDatabase: e.cfg.Resolver.DefaultDatabase,
	}
	if manifest != nil {
		info.Version = manifest.Version
		info.Profile = manifest.Profile
	}

	reg, err := registry.Build(in, registry.Options{
		BuiltAt:     e.now(),
		ContentHash: version,
		BuildID:     state.NewBuildID(),
		Project:     info,
	})
	if err != nil {
		return nil, err
	}
	out.reg = reg
	e.logger.Debug("snapshot built", "snapshot", reg.String(), "documents", len(docPaths), "bodies", len(sqlPaths))
	return out, nil
}

// modelBodies maps lower-cased model names to the references scanned from
// their .sql file. A name backed by more than one file is ambiguous and
// left unattached.
func (e *Engine) modelBodies(paths []string, refs [][]parser.Reference, out *snapshotBuild) map[string][]parser.Reference {
	byName := make(map[string][]int)
	for i, p := range paths {
		name := strings.ToLower(strings.TrimSuffix(path.Base(p), path.Ext(p)))
		byName[name] = append(byName[name], i)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	bodies := make(map[string][]parser.Reference, len(byName))
	for _, name := range names {
		idx := byName[name]
		if len(idx) > 1 {
			dupes := make([]string, 0, len(idx))
			for _, i := range idx {
				dupes = append(dupes, paths[i])
			}
			out.warnings = append(out.warnings, core.ParseWarning{
				Path:    dupes[0],
				Entity:  name,
				Message: "model body is ambiguous across " + strings.Join(dupes, ", ") + "; references not attached",
			})
			continue
		}
		bodies[name] = refs[idx[0]]
	}
	return bodies
}
