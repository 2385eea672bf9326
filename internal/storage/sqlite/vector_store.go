package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/memento-assistant/internal/storage"
)

// The SQLite backend has no similarity index. Queries return the most
// recently stored records matching the metadata filter with a flat score of
// 1.0, so retrieval degrades to "latest memories" rather than failing.

// Upsert creates or replaces records by ID.
func (s *Store) Upsert(ctx context.Context, records []storage.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", storage.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsertSQL = `
		INSERT INTO memory_vectors (id, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE
		SET embedding = excluded.embedding, metadata = excluded.metadata`

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("%w: record ID is empty", storage.ErrInvalidInput)
		}

		embJSON, err := json.Marshal(rec.Vector)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal embedding: %v", storage.ErrInvalidInput, err)
		}
		metaJSON, err := json.Marshal(metadataOrEmpty(rec.Metadata))
		if err != nil {
			return fmt.Errorf("%w: failed to marshal metadata: %v", storage.ErrInvalidInput, err)
		}

		if _, err := tx.ExecContext(ctx, upsertSQL, rec.ID, string(embJSON), string(metaJSON), now); err != nil {
			return fmt.Errorf("%w: failed to upsert record %s: %v", storage.ErrStoreUnavailable, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit upsert: %v", storage.ErrStoreUnavailable, err)
	}
	return nil
}

// Query returns up to limit records matching the filter, newest first.
// The query vector is ignored.
func (s *Store) Query(ctx context.Context, _ []float32, limit int, filter map[string]string) ([]storage.VectorMatch, error) {
	limit = storage.NormalizeLimit(limit)

	const querySQL = `
		SELECT id, metadata
		FROM memory_vectors
		ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, fmt.Errorf("%w: vector query failed: %v", storage.ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	matches := []storage.VectorMatch{}
	for rows.Next() {
		var (
			id       string
			metaJSON string
		)
		if err := rows.Scan(&id, &metaJSON); err != nil {
			return nil, fmt.Errorf("%w: failed to scan match: %v", storage.ErrStoreUnavailable, err)
		}

		var meta map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("%w: corrupt metadata for %s: %v", storage.ErrStoreUnavailable, id, err)
		}
		if !matchesFilter(meta, filter) {
			continue
		}

		matches = append(matches, storage.VectorMatch{ID: id, Score: 1.0, Metadata: meta})
		if len(matches) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: vector query iteration failed: %v", storage.ErrStoreUnavailable, err)
	}
	return matches, nil
}

// Fetch retrieves a single record by ID.
func (s *Store) Fetch(ctx context.Context, id string) (*storage.VectorRecord, error) {
	const fetchSQL = `SELECT id, embedding, metadata FROM memory_vectors WHERE id = ?`

	var (
		rec      storage.VectorRecord
		embJSON  string
		metaJSON string
	)
	err := s.db.QueryRowContext(ctx, fetchSQL, id).Scan(&rec.ID, &embJSON, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: vector record %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch record %s: %v", storage.ErrStoreUnavailable, id, err)
	}

	if err := json.Unmarshal([]byte(embJSON), &rec.Vector); err != nil {
		return nil, fmt.Errorf("%w: corrupt embedding for %s: %v", storage.ErrStoreUnavailable, id, err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("%w: corrupt metadata for %s: %v", storage.ErrStoreUnavailable, id, err)
	}
	return &rec, nil
}

// Delete removes records by ID. Missing IDs are ignored.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	const deleteSQL = `DELETE FROM memory_vectors WHERE id = ?`
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, deleteSQL, id); err != nil {
			return fmt.Errorf("%w: failed to delete record %s: %v", storage.ErrStoreUnavailable, id, err)
		}
	}
	return nil
}

func matchesFilter(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
