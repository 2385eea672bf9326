package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/scrypster/memento-assistant/internal/storage"
)

func newTestStore(t *testing.T) *VectorStore {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}

	store, err := NewVectorStore(dsn, 3)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_, _ = store.db.Exec("TRUNCATE TABLE memory_vectors")
		_ = store.Close()
	})
	if _, err := store.db.Exec("TRUNCATE TABLE memory_vectors"); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}
	return store
}

func TestUpsertQueryDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := []storage.VectorRecord{
		{ID: "east", Vector: []float32{1, 0, 0}, Metadata: map[string]string{"user_id": "alice", "content": "east"}},
		{ID: "north", Vector: []float32{0, 1, 0}, Metadata: map[string]string{"user_id": "alice", "content": "north"}},
		{ID: "other", Vector: []float32{1, 0, 0}, Metadata: map[string]string{"user_id": "bob", "content": "other"}},
	}
	if err := store.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	matches, err := store.Query(ctx, []float32{1, 0, 0}, 10, map[string]string{"user_id": "alice"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "east" {
		t.Errorf("expected cosine-nearest record first, got %s", matches[0].ID)
	}
	if matches[0].Score <= matches[1].Score {
		t.Errorf("scores not descending: %f, %f", matches[0].Score, matches[1].Score)
	}

	got, err := store.Fetch(ctx, "north")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Metadata["content"] != "north" {
		t.Errorf("unexpected metadata: %#v", got.Metadata)
	}

	if err := store.Delete(ctx, "east", "north", "other"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Fetch(ctx, "east"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	store := newTestStore(t)

	rec := storage.VectorRecord{ID: "bad", Vector: []float32{1, 0}}
	err := store.Upsert(context.Background(), []storage.VectorRecord{rec})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
