// Package postgres implements the vector store on PostgreSQL with the
// pgvector extension. It is the durable backend for deployments that already
// run Postgres; cosine similarity queries are served by the <=> operator.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/memento-assistant/internal/storage"
)

// VectorStore is a pgvector-backed storage.VectorStore.
type VectorStore struct {
	db        *sql.DB
	dimension int
}

// NewVectorStore opens a connection to Postgres, enables the pgvector
// extension, and creates the memory_vectors table for the given embedding
// dimension.
func NewVectorStore(dsn string, dimension int) (*VectorStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres DSN is empty", storage.ErrInvalidInput)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", storage.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open postgres connection: %v", storage.ErrStoreUnavailable, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to ping postgres: %v", storage.ErrStoreUnavailable, err)
	}

	s := &VectorStore{db: db, dimension: dimension}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *VectorStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("%w: pgvector extension not available: %v", storage.ErrStoreUnavailable, err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS memory_vectors (
			id         TEXT PRIMARY KEY,
			embedding  vector(%d) NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimension)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: failed to create memory_vectors table: %v", storage.ErrStoreUnavailable, err)
	}

	const indexes = `
		CREATE INDEX IF NOT EXISTS idx_memory_vectors_metadata
			ON memory_vectors USING gin (metadata);
		CREATE INDEX IF NOT EXISTS idx_memory_vectors_embedding
			ON memory_vectors USING ivfflat (embedding vector_cosine_ops)`
	if _, err := s.db.ExecContext(ctx, indexes); err != nil {
		// ivfflat can fail on older pgvector versions; queries still work,
		// just unindexed.
		log.Printf("postgres: failed to create vector indexes: %v", err)
	}
	return nil
}

// Upsert creates or replaces records by ID.
func (s *VectorStore) Upsert(ctx context.Context, records []storage.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", storage.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsertSQL = `
		INSERT INTO memory_vectors (id, embedding, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`

	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("%w: record ID is empty", storage.ErrInvalidInput)
		}
		if len(rec.Vector) != s.dimension {
			return fmt.Errorf("%w: vector has dimension %d, store expects %d", storage.ErrInvalidInput, len(rec.Vector), s.dimension)
		}

		meta, err := json.Marshal(metadataOrEmpty(rec.Metadata))
		if err != nil {
			return fmt.Errorf("%w: failed to marshal metadata: %v", storage.ErrInvalidInput, err)
		}
		if _, err := tx.ExecContext(ctx, upsertSQL, rec.ID, pgvector.NewVector(rec.Vector), meta); err != nil {
			return fmt.Errorf("%w: failed to upsert record %s: %v", storage.ErrStoreUnavailable, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit upsert: %v", storage.ErrStoreUnavailable, err)
	}
	return nil
}

// Query returns the records closest to the query vector under cosine
// distance, restricted to rows whose metadata contains every filter pair.
func (s *VectorStore) Query(ctx context.Context, vector []float32, limit int, filter map[string]string) ([]storage.VectorMatch, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store expects %d", storage.ErrInvalidInput, len(vector), s.dimension)
	}
	limit = storage.NormalizeLimit(limit)

	filterJSON, err := json.Marshal(metadataOrEmpty(filter))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal filter: %v", storage.ErrInvalidInput, err)
	}

	const querySQL = `
		SELECT id, metadata, 1 - (embedding <=> $1) AS score
		FROM memory_vectors
		WHERE metadata @> $2::jsonb
		ORDER BY embedding <=> $1, created_at DESC, id
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, querySQL, pgvector.NewVector(vector), filterJSON, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: vector query failed: %v", storage.ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	matches := []storage.VectorMatch{}
	for rows.Next() {
		var (
			match    storage.VectorMatch
			metaJSON []byte
		)
		if err := rows.Scan(&match.ID, &metaJSON, &match.Score); err != nil {
			return nil, fmt.Errorf("%w: failed to scan match: %v", storage.ErrStoreUnavailable, err)
		}
		if err := json.Unmarshal(metaJSON, &match.Metadata); err != nil {
			return nil, fmt.Errorf("%w: corrupt metadata for %s: %v", storage.ErrStoreUnavailable, match.ID, err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: vector query iteration failed: %v", storage.ErrStoreUnavailable, err)
	}
	return matches, nil
}

// Fetch retrieves a single record by ID.
func (s *VectorStore) Fetch(ctx context.Context, id string) (*storage.VectorRecord, error) {
	const fetchSQL = `SELECT id, embedding, metadata FROM memory_vectors WHERE id = $1`

	var (
		rec      storage.VectorRecord
		vec      pgvector.Vector
		metaJSON []byte
	)
	err := s.db.QueryRowContext(ctx, fetchSQL, id).Scan(&rec.ID, &vec, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: vector record %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch record %s: %v", storage.ErrStoreUnavailable, id, err)
	}

	rec.Vector = vec.Slice()
	if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("%w: corrupt metadata for %s: %v", storage.ErrStoreUnavailable, id, err)
	}
	return &rec, nil
}

// Delete removes records by ID. Missing IDs are ignored.
func (s *VectorStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	const deleteSQL = `DELETE FROM memory_vectors WHERE id = $1`
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, deleteSQL, id); err != nil {
			return fmt.Errorf("%w: failed to delete record %s: %v", storage.ErrStoreUnavailable, id, err)
		}
	}
	return nil
}

// Close releases the database connection.
func (s *VectorStore) Close() error {
	return s.db.Close()
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Compile-time assertion.
var _ storage.VectorStore = (*VectorStore)(nil)
