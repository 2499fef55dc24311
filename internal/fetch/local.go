package fetch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize bounds the size of a single fetched document.
const DefaultMaxFileSize = 10 << 20

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	"target":       true,
	"dbt_packages": true,
	"dbt_modules":  true,
	"logs":         true,
	"node_modules": true,
}

// LocalFetcher reads documents from a directory on disk.
type LocalFetcher struct {
	MaxFileSize int64
	Logger      *slog.Logger
}

// NewLocalFetcher creates a LocalFetcher with default limits.
func NewLocalFetcher(logger *slog.Logger) *LocalFetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LocalFetcher{MaxFileSize: DefaultMaxFileSize, Logger: logger}
}

// Fetch walks spec.Root and reads every regular file matching patterns.
func (f *LocalFetcher) Fetch(ctx context.Context, spec RepositorySpec, patterns []string) (map[string][]byte, error) {
	if err := ValidatePatterns(patterns); err != nil {
		return nil, err
	}
	info, err := os.Stat(spec.Root)
	if err != nil {
		return nil, fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project directory: %s is not a directory", spec.Root)
	}

	maxSize := f.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	files := make(map[string][]byte)
	err = filepath.WalkDir(spec.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != spec.Root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(spec.Root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !MatchAny(patterns, rel) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > maxSize {
			f.logger().Warn("skipping oversized document", "path", rel, "size", fi.Size(), "limit", maxSize)
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		files[rel] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.logger().Debug("fetched documents", "root", spec.Root, "count", len(files))
	return files, nil
}

func (f *LocalFetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.Logger
}
