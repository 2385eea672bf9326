// Package memory implements the assistant's long-term memory: extraction
// from conversations and documents, embedding, storage, retrieval, and the
// transparency operations that let users inspect and delete what the
// assistant remembers.
//
// Memories carry no trust level. A fact the user stated directly, a line
// extracted from an imported document, and an instruction embedded in either
// are stored and retrieved identically.
package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/memento-assistant/internal/llm"
	"github.com/scrypster/memento-assistant/internal/storage"
	"github.com/scrypster/memento-assistant/pkg/types"
)

// Default result counts, matching the transparency panel's expectations.
const (
	DefaultListLimit   = 50
	DefaultSearchLimit = 20
)

// Metadata keys used in the vector store.
const (
	metaUserID      = "user_id"
	metaWorkspaceID = "workspace_id"
	metaContent     = "content"
	metaSource      = "source"
	metaSourceID    = "source_id"
	metaCreatedAt   = "created_at"
)

// Service manages memory storage and retrieval on top of a vector store and
// an embedding generator.
type Service struct {
	vectors   storage.VectorStore
	embedder  llm.EmbeddingGenerator
	extractor *llm.MemoryExtractor
}

// NewService creates a memory service.
func NewService(vectors storage.VectorStore, embedder llm.EmbeddingGenerator, extractor *llm.MemoryExtractor) *Service {
	return &Service{
		vectors:   vectors,
		embedder:  embedder,
		extractor: extractor,
	}
}

// StoreMemory embeds content and persists it as a new memory. It returns the
// generated memory ID. Content is stored verbatim with no validation beyond
// being non-empty.
func (s *Service) StoreMemory(ctx context.Context, userID, workspaceID, content string, source types.MemorySource, sourceID string) (string, error) {
	if userID == "" || workspaceID == "" {
		return "", fmt.Errorf("%w: user ID and workspace ID are required", storage.ErrInvalidInput)
	}
	if content == "" {
		return "", fmt.Errorf("%w: memory content is empty", storage.ErrInvalidInput)
	}
	if !types.IsValidMemorySource(string(source)) {
		return "", fmt.Errorf("%w: unknown memory source %q", storage.ErrInvalidInput, source)
	}

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("failed to embed memory: %w", err)
	}

	id := uuid.New().String()
	rec := storage.VectorRecord{
		ID:     id,
		Vector: embedding,
		Metadata: map[string]string{
			metaUserID:      userID,
			metaWorkspaceID: workspaceID,
			metaContent:     content,
			metaSource:      string(source),
			metaSourceID:    sourceID,
			metaCreatedAt:   time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := s.vectors.Upsert(ctx, []storage.VectorRecord{rec}); err != nil {
		return "", fmt.Errorf("failed to store memory: %w", err)
	}
	return id, nil
}

// RetrieveRelevantMemories returns the memories most similar to the query,
// scoped to the user and workspace. All matching memories are returned
// regardless of their source.
func (s *Service) RetrieveRelevantMemories(ctx context.Context, userID, workspaceID, query string, topK int) ([]types.RetrievedMemory, error) {
	if topK <= 0 {
		topK = 10
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.vectors.Query(ctx, queryEmbedding, topK, s.scopeFilter(userID, workspaceID))
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}

	memories := make([]types.RetrievedMemory, 0, len(matches))
	for _, m := range matches {
		memories = append(memories, types.RetrievedMemory{
			Content:  m.Metadata[metaContent],
			Source:   types.MemorySource(m.Metadata[metaSource]),
			SourceID: m.Metadata[metaSourceID],
			Score:    m.Score,
		})
	}
	return memories, nil
}

// ProcessConversationForMemory extracts memories from a conversation and
// stores each one. It is best effort: extraction or storage failures are
// logged and never propagated, so a flaky model cannot block chat.
func (s *Service) ProcessConversationForMemory(ctx context.Context, userID, workspaceID string, messages []types.Message) {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, strings.ToUpper(string(m.Role))+": "+m.Content)
	}
	conversationText := strings.Join(parts, "\n\n")

	memories := s.extractor.Extract(ctx, conversationText, llm.ExtractFromConversation)
	for _, content := range memories {
		if _, err := s.StoreMemory(ctx, userID, workspaceID, content, types.SourceConversation, ""); err != nil {
			log.Printf("memory: failed to store conversation memory: %v", err)
		}
	}
}

// ProcessDocumentForMemory extracts memories from raw document text and
// stores each one, tagged with the originating note's ID. The raw text is
// passed to the model unfiltered, hidden or boilerplate content included.
// Best effort, same as conversation processing.
func (s *Service) ProcessDocumentForMemory(ctx context.Context, userID, workspaceID, rawText, noteID string) {
	memories := s.extractor.Extract(ctx, rawText, llm.ExtractFromDocument)
	for _, content := range memories {
		if _, err := s.StoreMemory(ctx, userID, workspaceID, content, types.SourceDocument, noteID); err != nil {
			log.Printf("memory: failed to store document memory: %v", err)
		}
	}
}

// ListMemories returns a user's memories for the transparency panel. It
// queries with a zero vector, so backends with real ranking return an
// arbitrary-but-stable order and the fallback store returns newest first.
func (s *Service) ListMemories(ctx context.Context, userID, workspaceID string, limit int) ([]types.MemorySummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	zero := make([]float32, s.embedder.Dimension())
	matches, err := s.vectors.Query(ctx, zero, limit, s.scopeFilter(userID, workspaceID))
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	return summarize(matches), nil
}

// SearchMemories performs semantic search over a user's memories.
func (s *Service) SearchMemories(ctx context.Context, userID, workspaceID, query string, limit int) ([]types.MemorySummary, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.vectors.Query(ctx, queryEmbedding, limit, s.scopeFilter(userID, workspaceID))
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	return summarize(matches), nil
}

// DeleteMemory removes a memory after verifying the caller owns it.
// Returns storage.ErrNotFound if the memory doesn't exist and
// storage.ErrForbidden if it belongs to a different user.
func (s *Service) DeleteMemory(ctx context.Context, userID, memoryID string) error {
	if err := s.CheckMemoryAccess(ctx, userID, memoryID); err != nil {
		return err
	}
	if err := s.vectors.Delete(ctx, memoryID); err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

// CheckMemoryAccess verifies that a memory exists and belongs to the user.
func (s *Service) CheckMemoryAccess(ctx context.Context, userID, memoryID string) error {
	rec, err := s.vectors.Fetch(ctx, memoryID)
	if err != nil {
		return err
	}
	if rec.Metadata[metaUserID] != userID {
		return fmt.Errorf("%w: memory %s", storage.ErrForbidden, memoryID)
	}
	return nil
}

func (s *Service) scopeFilter(userID, workspaceID string) map[string]string {
	return map[string]string{
		metaUserID:      userID,
		metaWorkspaceID: workspaceID,
	}
}

func summarize(matches []storage.VectorMatch) []types.MemorySummary {
	summaries := make([]types.MemorySummary, 0, len(matches))
	for _, m := range matches {
		createdAt, _ := time.Parse(time.RFC3339, m.Metadata[metaCreatedAt])
		summaries = append(summaries, types.MemorySummary{
			ID:        m.ID,
			Content:   m.Metadata[metaContent],
			Source:    types.MemorySource(m.Metadata[metaSource]),
			SourceID:  m.Metadata[metaSourceID],
			CreatedAt: createdAt,
		})
	}
	return summaries
}
