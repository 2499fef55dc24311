// Package fetch supplies raw project documents to the engine.
//
// A Fetcher returns the bytes of every file under a repository that matches
// at least one glob pattern. Patterns use forward slashes and support "**"
// for any number of directories. Fetching is the only place the engine
// blocks on I/O; timeouts and retries belong to the Fetcher.
package fetch

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
)

// RepositorySpec locates a project.
type RepositorySpec struct {
	// Root is the project directory (or repository name for remote fetchers)
	Root string
	// Ref is an optional revision; local fetchers ignore it
	Ref string
}

func (s RepositorySpec) String() string {
	if s.Ref == "" {
		return s.Root
	}
	return s.Root + "@" + s.Ref
}

// Fetcher returns matching documents keyed by slash-separated path relative
// to the repository root.
type Fetcher interface {
	Fetch(ctx context.Context, spec RepositorySpec, patterns []string) (map[string][]byte, error)
}

// MapFetcher serves documents from memory. It is used for embedded
// projects and tests.
type MapFetcher map[string][]byte

// Fetch returns the entries matching patterns. The repository is ignored.
func (m MapFetcher) Fetch(ctx context.Context, _ RepositorySpec, patterns []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string][]byte)
	for name, data := range m {
		if MatchAny(patterns, name) {
			out[name] = data
		}
	}
	return out, nil
}

// ValidatePatterns reports the first malformed pattern.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("empty glob pattern")
		}
		for _, seg := range strings.Split(p, "/") {
			if seg == "**" {
				continue
			}
			if _, err := path.Match(seg, ""); err != nil {
				return fmt.Errorf("invalid glob pattern %q: %w", p, err)
			}
		}
	}
	return nil
}

// SplitPatterns splits a comma-separated pattern list, dropping blanks.
func SplitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MatchAny reports whether name matches at least one pattern.
func MatchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}

// Match reports whether the slash-separated name matches pattern.
// "**" as a whole segment matches zero or more segments; other segments
// follow path.Match.
func Match(pattern, name string) bool {
	pattern = strings.TrimPrefix(pattern, "./")
	name = strings.TrimPrefix(name, "./")
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		ok, err := path.Match(pat[0], segs[0])
		if err != nil || !ok {
			return false
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}

// SortedPaths returns the keys of a fetch result in order.
func SortedPaths(files map[string][]byte) []string {
	out := make([]string, 0, len(files))
	for p := range files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
