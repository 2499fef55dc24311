package state

import (
	"context"
	"fmt"
	"time"
)

// DocumentHashes returns the stored path -> content hash set.
func (s *SQLiteStore) DocumentHashes(ctx context.Context) (map[string]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path, content_hash FROM document_hashes`)
	if err != nil {
		return nil, fmt.Errorf("failed to get document hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan document hash: %w", err)
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

// ReplaceDocumentHashes replaces every stored hash in one transaction.
func (s *SQLiteStore) ReplaceDocumentHashes(ctx context.Context, buildID string, hashes map[string]string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_hashes`); err != nil {
		return fmt.Errorf("failed to clear document hashes: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, path := range sortedKeys(hashes) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_hashes (path, content_hash, build_id, updated_at) VALUES (?, ?, ?, ?)`,
			path, hashes[path], buildID, now,
		); err != nil {
			return fmt.Errorf("failed to store hash for %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document hashes: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}
