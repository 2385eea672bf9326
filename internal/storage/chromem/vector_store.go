// Package chromem implements the vector store on chromem-go, an embedded
// pure-Go vector database. It gives single-process deployments real cosine
// ranking without running Postgres.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/scrypster/memento-assistant/internal/storage"
)

const collectionName = "memories"

// VectorStore is a chromem-backed storage.VectorStore. Records are held in
// memory; a process restart starts empty.
type VectorStore struct {
	db  *chromem.DB
	col *chromem.Collection

	mu      sync.RWMutex
	records map[string]storage.VectorRecord // chromem has no fetch-by-ID
}

// NewVectorStore creates an in-process chromem vector store.
func NewVectorStore() (*VectorStore, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create collection: %v", storage.ErrStoreUnavailable, err)
	}
	return &VectorStore{
		db:      db,
		col:     col,
		records: make(map[string]storage.VectorRecord),
	}, nil
}

// Upsert creates or replaces records by ID.
func (s *VectorStore) Upsert(ctx context.Context, records []storage.VectorRecord) error {
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("%w: record ID is empty", storage.ErrInvalidInput)
		}

		meta := rec.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		doc := chromem.Document{
			ID:        rec.ID,
			Content:   meta["content"],
			Embedding: rec.Vector,
			Metadata:  meta,
		}
		if err := s.col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("%w: failed to add document %s: %v", storage.ErrStoreUnavailable, rec.ID, err)
		}

		s.mu.Lock()
		s.records[rec.ID] = rec
		s.mu.Unlock()
	}
	return nil
}

// Query returns records ranked by cosine similarity to the query vector,
// restricted to exact metadata matches.
func (s *VectorStore) Query(ctx context.Context, vector []float32, limit int, filter map[string]string) ([]storage.VectorMatch, error) {
	limit = storage.NormalizeLimit(limit)
	if len(filter) == 0 {
		filter = nil
	}

	// chromem rejects nResults larger than the matching document count, so
	// retry with decreasing limits until the query fits.
	var results []chromem.Result
	for currentLimit := limit; currentLimit >= 1; currentLimit-- {
		var err error
		results, err = s.col.QueryEmbedding(ctx, vector, currentLimit, filter, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if currentLimit == 1 {
				return []storage.VectorMatch{}, nil
			}
			continue
		}
		return nil, fmt.Errorf("%w: vector query failed: %v", storage.ErrStoreUnavailable, err)
	}

	matches := make([]storage.VectorMatch, 0, len(results))
	for _, res := range results {
		matches = append(matches, storage.VectorMatch{
			ID:       res.ID,
			Score:    float64(res.Similarity),
			Metadata: res.Metadata,
		})
	}
	return matches, nil
}

// Fetch retrieves a single record by ID.
func (s *VectorStore) Fetch(_ context.Context, id string) (*storage.VectorRecord, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vector record %s", storage.ErrNotFound, id)
	}
	out := rec
	return &out, nil
}

// Delete removes records by ID. Missing IDs are ignored.
func (s *VectorStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	present := make([]string, 0, len(ids))
	s.mu.Lock()
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			present = append(present, id)
			delete(s.records, id)
		}
	}
	s.mu.Unlock()

	if len(present) == 0 {
		return nil
	}
	if err := s.col.Delete(ctx, nil, nil, present...); err != nil {
		return fmt.Errorf("%w: failed to delete documents: %v", storage.ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases resources. chromem keeps everything in memory.
func (s *VectorStore) Close() error {
	return nil
}

// isInsufficientDocsError reports whether the error means the collection
// holds fewer documents than the requested result count.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

// Compile-time assertion.
var _ storage.VectorStore = (*VectorStore)(nil)
