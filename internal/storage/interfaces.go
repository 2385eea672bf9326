// Package storage provides composable storage interfaces for the Memento
// assistant.
//
// The storage layer is split into small, focused interfaces that can be
// implemented independently: a vector store for memory embeddings, a
// conversation store for chat history, and a note store for the workspace
// knowledge base. Backends are swappable behind these interfaces.
package storage

import (
	"context"

	"github.com/scrypster/memento-assistant/pkg/types"
)

// VectorRecord is a single embedding with its payload, as stored in a
// vector backend.
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// VectorMatch is a query result. Score is a similarity in [0, 1] where
// higher is closer; backends without real ranking report 1.0.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// VectorStore persists embeddings and supports filtered similarity queries.
// Metadata filters use exact equality on every provided key.
type VectorStore interface {
	// Upsert creates or replaces records by ID.
	Upsert(ctx context.Context, records []VectorRecord) error

	// Query returns up to limit records matching the metadata filter,
	// ordered by similarity to the query vector. A store that cannot rank
	// orders by recency instead.
	Query(ctx context.Context, vector []float32, limit int, filter map[string]string) ([]VectorMatch, error)

	// Fetch retrieves a single record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Fetch(ctx context.Context, id string) (*VectorRecord, error)

	// Delete removes records by ID. Missing IDs are not an error.
	Delete(ctx context.Context, ids ...string) error

	// Close releases any resources held by the store.
	Close() error
}

// ConversationStore provides CRUD for conversations and their messages.
type ConversationStore interface {
	// CreateConversation persists a new conversation.
	CreateConversation(ctx context.Context, conv *types.Conversation) error

	// GetConversation retrieves a conversation by ID, without messages.
	// Returns ErrNotFound if it doesn't exist.
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)

	// ListConversations returns a workspace's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context, workspaceID string, limit int) ([]*types.Conversation, error)

	// TouchConversation updates a conversation's updated_at timestamp.
	// Returns ErrNotFound if it doesn't exist.
	TouchConversation(ctx context.Context, id string) error

	// DeleteConversation removes a conversation and its messages.
	// Returns ErrNotFound if it doesn't exist.
	DeleteConversation(ctx context.Context, id string) error

	// AddMessage appends a message to a conversation.
	AddMessage(ctx context.Context, msg *types.Message) error

	// GetMessages returns a conversation's messages, oldest first.
	GetMessages(ctx context.Context, conversationID string) ([]*types.Message, error)
}

// NoteStore provides CRUD and text search for workspace notes.
type NoteStore interface {
	// CreateNote persists a new note.
	CreateNote(ctx context.Context, note *types.Note) error

	// GetNote retrieves a note by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetNote(ctx context.Context, id string) (*types.Note, error)

	// ListNotes returns a workspace's notes, most recently updated first.
	ListNotes(ctx context.Context, workspaceID string, limit int) ([]*types.Note, error)

	// UpdateNote replaces a note's mutable fields.
	// Returns ErrNotFound if it doesn't exist.
	UpdateNote(ctx context.Context, note *types.Note) error

	// DeleteNote removes a note.
	// Returns ErrNotFound if it doesn't exist.
	DeleteNote(ctx context.Context, id string) error

	// MoveNote reparents a note. An empty parentID moves it to the root.
	// Returns ErrNotFound if the note doesn't exist.
	MoveNote(ctx context.Context, id, parentID string) error

	// Children returns a note's direct children, oldest first. An empty
	// parentID returns the workspace's root notes.
	Children(ctx context.Context, workspaceID, parentID string) ([]*types.Note, error)

	// SearchNotes returns notes whose title or plain-text content contains
	// the query, most recently updated first.
	SearchNotes(ctx context.Context, workspaceID, query string, limit int) ([]*types.Note, error)

	// RelevantNotes returns the notes most relevant to a message. The
	// default implementation matches on recency plus substring overlap.
	RelevantNotes(ctx context.Context, workspaceID, message string, limit int) ([]*types.Note, error)
}
