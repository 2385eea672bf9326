package types

import "time"

// MemorySource identifies what kind of content a memory was derived from.
// The value is stored verbatim in vector-store metadata and is informational
// only: retrieval applies no weighting or filtering by source.
type MemorySource string

const (
	// SourceConversation marks memories extracted from chat history.
	SourceConversation MemorySource = "conversation"

	// SourceDocument marks memories extracted from imported documents.
	SourceDocument MemorySource = "document"

	// SourceNote marks memories derived from workspace notes.
	SourceNote MemorySource = "note"
)

// IsValidMemorySource reports whether s is one of the known source values.
func IsValidMemorySource(s string) bool {
	switch MemorySource(s) {
	case SourceConversation, SourceDocument, SourceNote:
		return true
	}
	return false
}

// Memory represents a single remembered fact or instruction. Memories are
// scoped to a (UserID, WorkspaceID) pair and are immutable once stored:
// re-extraction creates new memories instead of mutating old ones.
type Memory struct {
	ID          string       `json:"id"`                  // Unique identifier (uuid)
	UserID      string       `json:"user_id"`             // Owning user
	WorkspaceID string       `json:"workspace_id"`        // Owning workspace
	Content     string       `json:"content"`             // Free-text memory content, never empty
	Embedding   []float32    `json:"embedding,omitempty"` // Fixed-dimension vector (1536 for text-embedding-3-small)
	Source      MemorySource `json:"source"`              // conversation | document | note
	SourceID    string       `json:"source_id,omitempty"` // Optional back-reference to the originating note/conversation
	CreatedAt   time.Time    `json:"created_at"`          // When the memory was stored
}

// MemorySummary is the transparency-panel projection of a memory:
// the fields users see when listing or searching what the assistant
// remembers about them.
type MemorySummary struct {
	ID        string       `json:"id"`
	Content   string       `json:"content"`
	Source    MemorySource `json:"source"`
	SourceID  string       `json:"source_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// RetrievedMemory is a memory as returned by semantic retrieval for prompt
// assembly. Score is the backend's similarity score; the fallback store
// reports 1.0 for every match.
type RetrievedMemory struct {
	Content  string       `json:"content"`
	Source   MemorySource `json:"source"`
	SourceID string       `json:"source_id,omitempty"`
	Score    float64      `json:"score"`
}
