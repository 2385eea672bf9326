package handlers

import (
	"github.com/scrypster/memento-assistant/pkg/types"
)

// ErrorResponse is the standard error format for API responses.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ChatRequest is the request format for POST /api/chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	WorkspaceID    string `json:"workspace_id,omitempty"`
}

// ChatResponse is the response format for POST /api/chat.
type ChatResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// ConversationsResponse is the response format for GET /api/conversations.
type ConversationsResponse struct {
	Conversations []*types.Conversation `json:"conversations"`
	Count         int                   `json:"count"`
}

// MemoriesResponse is the response format for memory list and search.
type MemoriesResponse struct {
	Memories []types.MemorySummary `json:"memories"`
	Count    int                   `json:"count"`
}

// NoteRequest is the request format for creating and updating notes.
// On update, only the fields present in the JSON body are applied.
type NoteRequest struct {
	Title    *string                `json:"title,omitempty"`
	ParentID *string                `json:"parent_id,omitempty"`
	Icon     *string                `json:"icon,omitempty"`
	CoverURL *string                `json:"cover_url,omitempty"`
	Content  map[string]interface{} `json:"content,omitempty"`
}

// NotesResponse is the response format for note list and search.
type NotesResponse struct {
	Notes []*types.Note `json:"notes"`
	Count int           `json:"count"`
}

// ImportResponse is the response format for POST /api/import.
type ImportResponse struct {
	NoteID string `json:"note_id"`
	Title  string `json:"title"`
}
