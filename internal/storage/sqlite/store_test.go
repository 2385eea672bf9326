package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scrypster/memento-assistant/internal/storage"
	"github.com/scrypster/memento-assistant/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestVectorUpsertAndFetch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := storage.VectorRecord{
		ID:     "mem-1",
		Vector: []float32{0.1, 0.2, 0.3},
		Metadata: map[string]string{
			"user_id": "alice",
			"content": "prefers dark mode",
		},
	}
	if err := store.Upsert(ctx, []storage.VectorRecord{rec}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.Fetch(ctx, "mem-1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Metadata["content"] != "prefers dark mode" {
		t.Errorf("unexpected metadata: %#v", got.Metadata)
	}
	if len(got.Vector) != 3 || got.Vector[1] != 0.2 {
		t.Errorf("unexpected vector: %#v", got.Vector)
	}
}

func TestVectorFetchNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Fetch(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVectorUpsertReplacesByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := storage.VectorRecord{ID: "mem-1", Vector: []float32{1}, Metadata: map[string]string{"content": "old"}}
	second := storage.VectorRecord{ID: "mem-1", Vector: []float32{2}, Metadata: map[string]string{"content": "new"}}
	if err := store.Upsert(ctx, []storage.VectorRecord{first}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, []storage.VectorRecord{second}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.Fetch(ctx, "mem-1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Metadata["content"] != "new" {
		t.Errorf("expected replacement, got %#v", got.Metadata)
	}

	matches, err := store.Query(ctx, nil, 10, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("expected 1 record after replace, got %d", len(matches))
	}
}

func TestVectorQueryFiltersAndOrdersByRecency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := []storage.VectorRecord{
		{ID: "a", Vector: []float32{1}, Metadata: map[string]string{"user_id": "alice", "content": "first"}},
		{ID: "b", Vector: []float32{1}, Metadata: map[string]string{"user_id": "bob", "content": "other user"}},
		{ID: "c", Vector: []float32{1}, Metadata: map[string]string{"user_id": "alice", "content": "second"}},
	}
	if err := store.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	matches, err := store.Query(ctx, []float32{1}, 10, map[string]string{"user_id": "alice"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	// Same created_at for the whole batch, so rowid breaks the tie newest first.
	if matches[0].ID != "c" || matches[1].ID != "a" {
		t.Errorf("unexpected order: %s, %s", matches[0].ID, matches[1].ID)
	}
	for _, m := range matches {
		if m.Score != 1.0 {
			t.Errorf("recency fallback must score 1.0, got %f", m.Score)
		}
	}
}

func TestVectorQueryLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := storage.VectorRecord{
			ID:       string(rune('a' + i)),
			Vector:   []float32{1},
			Metadata: map[string]string{"user_id": "alice"},
		}
		if err := store.Upsert(ctx, []storage.VectorRecord{rec}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	matches, err := store.Query(ctx, nil, 2, map[string]string{"user_id": "alice"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("expected limit of 2, got %d", len(matches))
	}
}

func TestVectorDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := storage.VectorRecord{ID: "mem-1", Vector: []float32{1}, Metadata: map[string]string{}}
	if err := store.Upsert(ctx, []storage.VectorRecord{rec}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Delete(ctx, "mem-1", "never-existed"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Fetch(ctx, "mem-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestConversationLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &types.Conversation{
		ID:          "conv-1",
		UserID:      "alice",
		WorkspaceID: "ws-1",
		Title:       "Planning",
		CreatedAt:   time.Now().Add(-time.Hour),
		UpdatedAt:   time.Now().Add(-time.Hour),
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.UserID != "alice" || got.Title != "Planning" {
		t.Errorf("unexpected conversation: %#v", got)
	}

	if err := store.TouchConversation(ctx, "conv-1"); err != nil {
		t.Fatalf("TouchConversation failed: %v", err)
	}
	touched, _ := store.GetConversation(ctx, "conv-1")
	if !touched.UpdatedAt.After(got.UpdatedAt) {
		t.Error("TouchConversation did not advance updated_at")
	}

	if err := store.DeleteConversation(ctx, "conv-1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if _, err := store.GetConversation(ctx, "conv-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.TouchConversation(ctx, "conv-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound touching deleted conversation, got %v", err)
	}
}

func TestMessagesOrderedOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &types.Conversation{ID: "conv-1", UserID: "alice", WorkspaceID: "ws-1"}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	base := time.Now()
	msgs := []*types.Message{
		{ID: "m1", ConversationID: "conv-1", Role: types.RoleUser, Content: "hello", CreatedAt: base},
		{ID: "m2", ConversationID: "conv-1", Role: types.RoleAssistant, Content: "hi there", CreatedAt: base.Add(time.Second)},
		{ID: "m3", ConversationID: "conv-1", Role: types.RoleUser, Content: "question", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, m := range msgs {
		if err := store.AddMessage(ctx, m); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	got, err := store.GetMessages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if got[i].ID != want {
			t.Errorf("message %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
	if got[1].Role != types.RoleAssistant {
		t.Errorf("unexpected role: %s", got[1].Role)
	}
}

func TestDeleteConversationCascadesMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &types.Conversation{ID: "conv-1", UserID: "alice", WorkspaceID: "ws-1"}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	msg := &types.Message{ID: "m1", ConversationID: "conv-1", Role: types.RoleUser, Content: "hello"}
	if err := store.AddMessage(ctx, msg); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	if err := store.DeleteConversation(ctx, "conv-1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	got, err := store.GetMessages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected cascade delete of messages, got %d", len(got))
	}
}

func TestListConversationsScopedToWorkspace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, c := range []*types.Conversation{
		{ID: "c1", UserID: "alice", WorkspaceID: "ws-1", UpdatedAt: time.Now().Add(-2 * time.Hour)},
		{ID: "c2", UserID: "alice", WorkspaceID: "ws-1", UpdatedAt: time.Now().Add(-1 * time.Hour)},
		{ID: "c3", UserID: "bob", WorkspaceID: "ws-2", UpdatedAt: time.Now()},
	} {
		if err := store.CreateConversation(ctx, c); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}

	got, err := store.ListConversations(ctx, "ws-1", 10)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(got))
	}
	if got[0].ID != "c2" || got[1].ID != "c1" {
		t.Errorf("expected most recently updated first, got %s, %s", got[0].ID, got[1].ID)
	}
}

func TestNoteLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	note := &types.Note{
		ID:          "note-1",
		WorkspaceID: "ws-1",
		Title:       "Roadmap",
		Content:     types.PlainTextDocument("Ship the importer first."),
		CreatedBy:   "alice",
	}
	if err := store.CreateNote(ctx, note); err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}

	got, err := store.GetNote(ctx, "note-1")
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if got.ContentText != "Ship the importer first." {
		t.Errorf("plain-text projection not stored: %q", got.ContentText)
	}

	got.Title = "Roadmap Q3"
	got.Content = types.PlainTextDocument("Importer shipped. Next: search.")
	if err := store.UpdateNote(ctx, got); err != nil {
		t.Fatalf("UpdateNote failed: %v", err)
	}
	updated, _ := store.GetNote(ctx, "note-1")
	if updated.Title != "Roadmap Q3" {
		t.Errorf("title not updated: %q", updated.Title)
	}
	if updated.ContentText != "Importer shipped. Next: search." {
		t.Errorf("projection not recomputed: %q", updated.ContentText)
	}

	if err := store.DeleteNote(ctx, "note-1"); err != nil {
		t.Fatalf("DeleteNote failed: %v", err)
	}
	if _, err := store.GetNote(ctx, "note-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSearchNotesMatchesTitleAndBody(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	notes := []*types.Note{
		{ID: "n1", WorkspaceID: "ws-1", Title: "Importer plan", Content: types.PlainTextDocument("Parse markdown files.")},
		{ID: "n2", WorkspaceID: "ws-1", Title: "Groceries", Content: types.PlainTextDocument("The importer handles docx too.")},
		{ID: "n3", WorkspaceID: "ws-1", Title: "Unrelated", Content: types.PlainTextDocument("Nothing here.")},
		{ID: "n4", WorkspaceID: "ws-2", Title: "Importer elsewhere", Content: types.PlainTextDocument("Other workspace.")},
	}
	for _, n := range notes {
		if err := store.CreateNote(ctx, n); err != nil {
			t.Fatalf("CreateNote failed: %v", err)
		}
	}

	got, err := store.SearchNotes(ctx, "ws-1", "importer", 10)
	if err != nil {
		t.Fatalf("SearchNotes failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	for _, n := range got {
		if n.WorkspaceID != "ws-1" {
			t.Errorf("search leaked across workspaces: %s", n.ID)
		}
	}
}

func TestRelevantNotesPrefersWordOverlap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	notes := []*types.Note{
		{ID: "n1", WorkspaceID: "ws-1", Title: "Deployment checklist", Content: types.PlainTextDocument("Run migrations before deploying the service.")},
		{ID: "n2", WorkspaceID: "ws-1", Title: "Lunch spots", Content: types.PlainTextDocument("The taco place is good.")},
	}
	for _, n := range notes {
		if err := store.CreateNote(ctx, n); err != nil {
			t.Fatalf("CreateNote failed: %v", err)
		}
	}

	got, err := store.RelevantNotes(ctx, "ws-1", "how do I run the deployment migrations?", 1)
	if err != nil {
		t.Fatalf("RelevantNotes failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "n1" {
		t.Fatalf("expected deployment note first, got %#v", got)
	}
}

func TestMoveNote(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	notes := []*types.Note{
		{ID: "parent", WorkspaceID: "ws-1", Title: "Projects"},
		{ID: "child", WorkspaceID: "ws-1", Title: "Importer", ParentID: "parent"},
	}
	for _, n := range notes {
		if err := store.CreateNote(ctx, n); err != nil {
			t.Fatalf("CreateNote failed: %v", err)
		}
	}

	if err := store.MoveNote(ctx, "child", ""); err != nil {
		t.Fatalf("MoveNote to root failed: %v", err)
	}
	got, _ := store.GetNote(ctx, "child")
	if got.ParentID != "" {
		t.Errorf("expected note at root, got parent %q", got.ParentID)
	}

	if err := store.MoveNote(ctx, "child", "parent"); err != nil {
		t.Fatalf("MoveNote under parent failed: %v", err)
	}
	got, _ = store.GetNote(ctx, "child")
	if got.ParentID != "parent" {
		t.Errorf("expected parent %q, got %q", "parent", got.ParentID)
	}

	if err := store.MoveNote(ctx, "missing", "parent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing note, got %v", err)
	}
}

func TestChildrenListsRootsAndSubtrees(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	notes := []*types.Note{
		{ID: "root-1", WorkspaceID: "ws-1", Title: "First"},
		{ID: "root-2", WorkspaceID: "ws-1", Title: "Second"},
		{ID: "leaf", WorkspaceID: "ws-1", Title: "Nested", ParentID: "root-1"},
		{ID: "other", WorkspaceID: "ws-2", Title: "Elsewhere"},
	}
	for _, n := range notes {
		if err := store.CreateNote(ctx, n); err != nil {
			t.Fatalf("CreateNote failed: %v", err)
		}
	}

	roots, err := store.Children(ctx, "ws-1", "")
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if len(roots) != 2 || roots[0].ID != "root-1" || roots[1].ID != "root-2" {
		t.Fatalf("expected roots in creation order, got %#v", roots)
	}

	kids, err := store.Children(ctx, "ws-1", "root-1")
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if len(kids) != 1 || kids[0].ID != "leaf" {
		t.Fatalf("expected single nested note, got %#v", kids)
	}

	empty, err := store.Children(ctx, "ws-1", "root-2")
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no children under root-2, got %d", len(empty))
	}
}
