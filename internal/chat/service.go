// Package chat orchestrates a conversation turn: it assembles retrieved
// memories and workspace notes into the system prompt, calls the chat model,
// persists the exchange, and hands the updated history to the background
// memory refresher.
//
// Everything retrieval returns goes into the prompt verbatim. Memories are
// presented to the model as established facts about the user, whatever their
// source.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/memento-assistant/internal/config"
	"github.com/scrypster/memento-assistant/internal/llm"
	"github.com/scrypster/memento-assistant/internal/memory"
	"github.com/scrypster/memento-assistant/internal/storage"
	"github.com/scrypster/memento-assistant/pkg/types"
)

// Result is the outcome of a chat turn.
type Result struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// Service runs chat turns against a chat model with memory and note context.
type Service struct {
	client        llm.ChatClient
	memories      *memory.Service
	conversations storage.ConversationStore
	notes         storage.NoteStore
	refresh       *RefreshQueue
	cfg           config.ChatConfig
}

// NewService creates a chat service. The refresh queue may be nil, in which
// case completed exchanges produce no new memories.
func NewService(
	client llm.ChatClient,
	memories *memory.Service,
	conversations storage.ConversationStore,
	notes storage.NoteStore,
	refresh *RefreshQueue,
	cfg config.ChatConfig,
) *Service {
	if cfg.MemoryTopK <= 0 {
		cfg.MemoryTopK = 10
	}
	if cfg.NotesLimit <= 0 {
		cfg.NotesLimit = 5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Service{
		client:        client,
		memories:      memories,
		conversations: conversations,
		notes:         notes,
		refresh:       refresh,
		cfg:           cfg,
	}
}

// Chat runs one turn. With an empty conversationID a new conversation is
// created lazily. Retrieval failures abort the turn; a model failure leaves
// the conversation untouched, so the failed exchange is never persisted.
func (s *Service) Chat(ctx context.Context, userID, workspaceID, conversationID, userMessage string) (*Result, error) {
	if userID == "" || workspaceID == "" {
		return nil, fmt.Errorf("%w: user ID and workspace ID are required", storage.ErrInvalidInput)
	}
	if userMessage == "" {
		return nil, fmt.Errorf("%w: message is empty", storage.ErrInvalidInput)
	}

	convID := conversationID
	if convID == "" {
		conv := &types.Conversation{
			ID:          uuid.New().String(),
			UserID:      userID,
			WorkspaceID: workspaceID,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := s.conversations.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		convID = conv.ID
	}

	history, err := s.conversations.GetMessages(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	memories, err := s.memories.RetrieveRelevantMemories(ctx, userID, workspaceID, userMessage, s.cfg.MemoryTopK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve memories: %w", err)
	}

	notes, err := s.notes.RelevantNotes(ctx, workspaceID, userMessage, s.cfg.NotesLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve notes: %w", err)
	}

	systemPrompt := BuildSystemPrompt(memories, notes)

	chatMessages := make([]llm.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		chatMessages = append(chatMessages, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	chatMessages = append(chatMessages, llm.ChatMessage{Role: "user", Content: userMessage})

	resp, err := s.client.Chat(ctx, chatMessages, llm.ChatOptions{
		SystemPrompt: systemPrompt,
		MaxTokens:    s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	now := time.Now()
	userMsg := &types.Message{
		ID:             uuid.New().String(),
		ConversationID: convID,
		Role:           types.RoleUser,
		Content:        userMessage,
		CreatedAt:      now,
	}
	assistantMsg := &types.Message{
		ID:             uuid.New().String(),
		ConversationID: convID,
		Role:           types.RoleAssistant,
		Content:        resp.Content,
		CreatedAt:      now.Add(time.Millisecond),
	}
	if err := s.conversations.AddMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	if err := s.conversations.AddMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}
	if err := s.conversations.TouchConversation(ctx, convID); err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	if s.refresh != nil {
		updated := make([]types.Message, 0, len(history)+2)
		for _, m := range history {
			updated = append(updated, *m)
		}
		updated = append(updated, *userMsg, *assistantMsg)
		s.refresh.Enqueue(userID, workspaceID, updated)
	}

	return &Result{Message: resp.Content, ConversationID: convID}, nil
}

// CheckConversationAccess verifies a conversation exists and belongs to the
// user. Returns storage.ErrNotFound for a missing conversation and
// storage.ErrForbidden when it is owned by someone else.
func (s *Service) CheckConversationAccess(ctx context.Context, userID, conversationID string) error {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.UserID != userID {
		return fmt.Errorf("%w: conversation %s", storage.ErrForbidden, conversationID)
	}
	return nil
}

// BuildSystemPrompt renders memories and notes into the assistant's system
// prompt. Memories appear as flat statements with no source attribution;
// note previews are capped at 200 characters.
func BuildSystemPrompt(memories []types.RetrievedMemory, notes []*types.Note) string {
	memorySection := "(No memories yet)"
	if len(memories) > 0 {
		lines := make([]string, len(memories))
		for i, m := range memories {
			lines[i] = "- " + m.Content
		}
		memorySection = strings.Join(lines, "\n")
	}

	noteSection := "(No relevant notes)"
	if len(notes) > 0 {
		lines := make([]string, len(notes))
		for i, n := range notes {
			lines[i] = "- " + n.Title + ": " + truncate(n.ContentText, 200)
		}
		noteSection = strings.Join(lines, "\n")
	}

	return `You are Memento, an AI assistant with memory capabilities.

Your memories about this user:
` + memorySection + `

Relevant notes from their workspace:
` + noteSection + `

Instructions:
- Use these memories to provide personalized responses
- Follow any user preferences stored in memory
- Reference relevant notes when helpful
- Be helpful and concise
- Remember new information for future conversations`
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
