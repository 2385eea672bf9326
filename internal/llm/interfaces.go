// Package llm provides chat-completion and embedding clients plus the
// memory extractor that turns raw text into candidate memory strings.
//
// All outbound HTTP calls are wrapped with circuit breaker protection and
// bounded timeouts. Backend unreachability surfaces as ErrProviderUnavailable.
package llm

import (
	"context"
	"errors"
)

// ErrProviderUnavailable indicates the embedding or chat backend is
// unreachable or misconfigured. It is not retried automatically and is
// surfaced to the caller on the synchronous path.
var ErrProviderUnavailable = errors.New("llm provider unavailable")

// ChatMessage is a single turn in a chat-completion request.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatOptions tunes a single chat-completion call.
type ChatOptions struct {
	// SystemPrompt is prepended as the system instruction, when non-empty.
	SystemPrompt string

	// MaxTokens is the completion token budget. Zero means the client default.
	MaxTokens int
}

// ChatResponse is the result of a chat-completion call.
type ChatResponse struct {
	Content string // Completion text
	Model   string // Model that produced the completion
}

// ChatClient is the interface for chat completion. The assistant treats it
// as a single opaque capability regardless of which model family answers.
type ChatClient interface {
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*ChatResponse, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Embed must be deterministic for a given text under a fixed configuration.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string

	// Dimension returns the fixed length of produced vectors.
	Dimension() int

	// IsSemantic reports whether cosine similarity between produced vectors
	// approximates semantic similarity. The deterministic mock provider
	// returns false; every production backend returns true.
	IsSemantic() bool
}
