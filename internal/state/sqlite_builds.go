package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const buildColumns = `id, version, status, started_at, finished_at, duration_ms, models, sources,
	exposures, metrics, documents, failed_docs, forced, error`

// RecordBuild inserts a build. An empty ID is filled in.
func (s *SQLiteStore) RecordBuild(ctx context.Context, b *Build) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if b.ID == "" {
		b.ID = NewBuildID()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (`+buildColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Version, string(b.Status), b.StartedAt.UnixMilli(), b.FinishedAt.UnixMilli(), b.DurationMs,
		b.Models, b.Sources, b.Exposures, b.Metrics, b.Documents, b.FailedDocs, b.Forced, b.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}
	return nil
}

// Builds returns up to limit builds, newest first. limit <= 0 means 20.
func (s *SQLiteStore) Builds(ctx context.Context, limit int) ([]*Build, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+buildColumns+` FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var builds []*Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// LastSuccessfulBuild returns the newest successful build, or nil.
func (s *SQLiteStore) LastSuccessfulBuild(ctx context.Context) (*Build, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+buildColumns+` FROM builds WHERE status = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		string(BuildStatusSuccess))
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last build: %w", err)
	}
	return b, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(sc scanner) (*Build, error) {
	var (
		b                 Build
		status            string
		started, finished int64
	)
	err := sc.Scan(&b.ID, &b.Version, &status, &started, &finished, &b.DurationMs,
		&b.Models, &b.Sources, &b.Exposures, &b.Metrics, &b.Documents, &b.FailedDocs, &b.Forced, &b.Error)
	if err != nil {
		return nil, err
	}
	b.Status = BuildStatus(status)
	b.StartedAt = time.UnixMilli(started).UTC()
	b.FinishedAt = time.UnixMilli(finished).UTC()
	return &b, nil
}
