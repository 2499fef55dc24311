// Package state persists build history and per-document content hashes
// in SQLite, so that refreshes can report what changed since the last
// successful build, across restarts.
package state

import (
	"context"
	"time"
)

// BuildStatus is the outcome of a snapshot build.
type BuildStatus string

// Build statuses.
const (
	BuildStatusSuccess BuildStatus = "success"
	BuildStatusFailed  BuildStatus = "failed"
)

// Build is one recorded snapshot build.
type Build struct {
	ID         string      `json:"id"`
	Version    string      `json:"version"`
	Status     BuildStatus `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	DurationMs int64       `json:"duration_ms"`
	Models     int         `json:"models"`
	Sources    int         `json:"sources"`
	Exposures  int         `json:"exposures"`
	Metrics    int         `json:"metrics"`
	Documents  int         `json:"documents"`
	FailedDocs int         `json:"failed_documents"`
	Forced     bool        `json:"forced"`
	Error      string      `json:"error,omitempty"`
}

// Store records builds and document hashes.
type Store interface {
	RecordBuild(ctx context.Context, b *Build) error
	// Builds returns the most recent builds, newest first
	Builds(ctx context.Context, limit int) ([]*Build, error)
	// LastSuccessfulBuild returns nil when no build has succeeded yet
	LastSuccessfulBuild(ctx context.Context) (*Build, error)
	DocumentHashes(ctx context.Context) (map[string]string, error)
	// ReplaceDocumentHashes swaps the full set of document hashes atomically
	ReplaceDocumentHashes(ctx context.Context, buildID string, hashes map[string]string) error
	Close() error
}

// Diff compares two path->hash sets. Changed holds added and modified paths.
func Diff(previous, current map[string]string) (changed, deleted []string) {
	for p, h := range current {
		if previous[p] != h {
			changed = append(changed, p)
		}
	}
	for p := range previous {
		if _, ok := current[p]; !ok {
			deleted = append(deleted, p)
		}
	}
	sortStrings(changed)
	sortStrings(deleted)
	return changed, deleted
}
