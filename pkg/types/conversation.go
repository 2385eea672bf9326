package types

import "time"

// MessageRole identifies who authored a message in a conversation.
type MessageRole string

const (
	// RoleUser marks messages written by the user.
	RoleUser MessageRole = "user"

	// RoleAssistant marks messages written by the assistant.
	RoleAssistant MessageRole = "assistant"
)

// Message is a single entry in a conversation. Messages are append-only and
// ordered by creation time.
type Message struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Role           MessageRole            `json:"role"`
	Content        string                 `json:"content"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"` // e.g. which notes were referenced
	CreatedAt      time.Time              `json:"created_at"`
}

// Conversation is an ordered exchange between a user and the assistant,
// scoped to a workspace. Conversations are created lazily on first message
// when no identifier is supplied.
type Conversation struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	Title       string    `json:"title,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Messages    []Message `json:"messages,omitempty"`
}
