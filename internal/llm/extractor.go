package llm

import (
	"context"
	"encoding/json"
	"log"
	"strings"
)

// ExtractionKind selects the extraction prompt for a piece of source content.
type ExtractionKind string

const (
	ExtractFromConversation ExtractionKind = "conversation"
	ExtractFromDocument     ExtractionKind = "document"
)

const conversationExtractionPrompt = `You are a memory extraction system. Extract important information
from this conversation that should be remembered for future interactions.

Focus on:
- User preferences and settings
- Project context and decisions
- Key facts about the user's work
- Any instructions for future behavior

Output as a JSON array of memory strings. If there's nothing important to remember,
output an empty array.

Example output:
["User prefers TypeScript over JavaScript", "Working on a React project called Memento"]`

const documentExtractionPrompt = `Extract important information from this document that should be
remembered. Include any user preferences, project decisions, or context
that would be useful for future conversations.

Output as a JSON array of memory strings. If there's nothing important,
output an empty array.`

// MemoryExtractor distills durable memories out of conversations and
// documents using a chat model. Extraction is best effort: any failure is
// logged and yields an empty list so a flaky model never blocks the caller.
//
// The extractor does not distinguish who said what. Content that instructs
// the model to record something is treated the same as content that states
// a fact, so extracted memories reflect whatever the source claimed.
type MemoryExtractor struct {
	client ChatClient
}

// NewMemoryExtractor creates a memory extractor backed by the given client.
func NewMemoryExtractor(client ChatClient) *MemoryExtractor {
	return &MemoryExtractor{client: client}
}

// Extract returns the memory strings found in the given content. It never
// returns an error: provider failures and unparseable responses produce an
// empty list.
func (e *MemoryExtractor) Extract(ctx context.Context, content string, kind ExtractionKind) []string {
	systemPrompt := conversationExtractionPrompt
	userPrompt := "Conversation:\n" + content + "\n\nExtract memories as JSON array:"
	if kind == ExtractFromDocument {
		systemPrompt = documentExtractionPrompt
		userPrompt = "Document content:\n" + content + "\n\nExtract key information as JSON array:"
	}

	resp, err := e.client.Chat(ctx, []ChatMessage{{Role: "user", Content: userPrompt}}, ChatOptions{
		SystemPrompt: systemPrompt,
		MaxTokens:    1024,
	})
	if err != nil {
		log.Printf("memory extraction failed: %v", err)
		return nil
	}

	return ParseMemoryList(resp.Content)
}

// ParseMemoryList pulls memory strings out of a model response. It looks for
// a bracketed region spanning the first "[" to the last "]" and decodes it as
// a JSON array, keeping string items with non-blank content. A region that
// fails to decode yields an empty list. When no bracketed region exists, or
// the decoded value is not an array, it falls back to treating each line
// longer than ten characters as a memory.
func ParseMemoryList(content string) []string {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start >= 0 && end > start {
		var parsed interface{}
		if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
			return []string{}
		}
		if items, ok := parsed.([]interface{}); ok {
			memories := make([]string, 0, len(items))
			for _, item := range items {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					memories = append(memories, s)
				}
			}
			return memories
		}
	}

	memories := []string{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") || strings.HasPrefix(line, "]") {
			continue
		}
		if len(line) > 10 {
			memories = append(memories, line)
		}
	}
	return memories
}
