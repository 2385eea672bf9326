package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/memento-assistant/internal/storage"
	"github.com/scrypster/memento-assistant/pkg/types"
)

// CreateConversation persists a new conversation.
func (s *Store) CreateConversation(ctx context.Context, conv *types.Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("%w: conversation ID is required", storage.ErrInvalidInput)
	}
	if conv.UserID == "" || conv.WorkspaceID == "" {
		return fmt.Errorf("%w: user ID and workspace ID are required", storage.ErrInvalidInput)
	}

	const insertSQL = `
		INSERT INTO conversations (id, user_id, workspace_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, insertSQL,
		conv.ID, conv.UserID, conv.WorkspaceID, conv.Title,
		formatTime(conv.CreatedAt), formatTime(conv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("%w: failed to create conversation: %v", storage.ErrStoreUnavailable, err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID, without messages.
func (s *Store) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	const getSQL = `
		SELECT id, user_id, workspace_id, title, created_at, updated_at
		FROM conversations WHERE id = ?`

	var (
		conv               types.Conversation
		createdAt, updated string
	)
	err := s.db.QueryRowContext(ctx, getSQL, id).Scan(
		&conv.ID, &conv.UserID, &conv.WorkspaceID, &conv.Title, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversation %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get conversation: %v", storage.ErrStoreUnavailable, err)
	}

	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updated)
	return &conv, nil
}

// ListConversations returns a workspace's conversations, most recently
// updated first.
func (s *Store) ListConversations(ctx context.Context, workspaceID string, limit int) ([]*types.Conversation, error) {
	limit = storage.NormalizeLimit(limit)

	const listSQL = `
		SELECT id, user_id, workspace_id, title, created_at, updated_at
		FROM conversations
		WHERE workspace_id = ?
		ORDER BY updated_at DESC, rowid DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, listSQL, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list conversations: %v", storage.ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	convs := []*types.Conversation{}
	for rows.Next() {
		var (
			conv               types.Conversation
			createdAt, updated string
		)
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.WorkspaceID, &conv.Title, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("%w: failed to scan conversation: %v", storage.ErrStoreUnavailable, err)
		}
		conv.CreatedAt = parseTime(createdAt)
		conv.UpdatedAt = parseTime(updated)
		convs = append(convs, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: conversation listing failed: %v", storage.ErrStoreUnavailable, err)
	}
	return convs, nil
}

// TouchConversation updates a conversation's updated_at timestamp.
func (s *Store) TouchConversation(ctx context.Context, id string) error {
	const touchSQL = `UPDATE conversations SET updated_at = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, touchSQL, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("%w: failed to touch conversation: %v", storage.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to check touch result: %v", storage.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: conversation %s", storage.ErrNotFound, id)
	}
	return nil
}

// DeleteConversation removes a conversation. Messages go with it via the
// foreign key cascade.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	const deleteSQL = `DELETE FROM conversations WHERE id = ?`

	res, err := s.db.ExecContext(ctx, deleteSQL, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete conversation: %v", storage.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to check delete result: %v", storage.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: conversation %s", storage.ErrNotFound, id)
	}
	return nil
}

// AddMessage appends a message to a conversation.
func (s *Store) AddMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("%w: message ID is required", storage.ErrInvalidInput)
	}
	if msg.ConversationID == "" {
		return fmt.Errorf("%w: conversation ID is required", storage.ErrInvalidInput)
	}

	meta := msg.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal message metadata: %v", storage.ErrInvalidInput, err)
	}

	const insertSQL = `
		INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, insertSQL,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, string(metaJSON), formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("%w: failed to add message: %v", storage.ErrStoreUnavailable, err)
	}
	return nil
}

// GetMessages returns a conversation's messages, oldest first.
func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	const listSQL = `
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, listSQL, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get messages: %v", storage.ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	msgs := []*types.Message{}
	for rows.Next() {
		var (
			msg       types.Message
			role      string
			metaJSON  string
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &metaJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan message: %v", storage.ErrStoreUnavailable, err)
		}
		msg.Role = types.MessageRole(role)
		msg.CreatedAt = parseTime(createdAt)
		if err := json.Unmarshal([]byte(metaJSON), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("%w: corrupt metadata for message %s: %v", storage.ErrStoreUnavailable, msg.ID, err)
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: message listing failed: %v", storage.ErrStoreUnavailable, err)
	}
	return msgs, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
