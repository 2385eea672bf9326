package types

import (
	"strings"
	"time"
)

// Note is a document-like entity with structured rich-text content and a
// derived plain-text projection used for keyword search and AI context.
// Notes form a tree via ParentID and belong to a workspace.
type Note struct {
	ID          string                 `json:"id"`
	WorkspaceID string                 `json:"workspace_id"`
	ParentID    string                 `json:"parent_id,omitempty"`
	Title       string                 `json:"title"`
	Icon        string                 `json:"icon,omitempty"`
	CoverURL    string                 `json:"cover_url,omitempty"`
	Content     map[string]interface{} `json:"content"`      // Rich-text tree (doc/paragraph/text nodes)
	ContentText string                 `json:"content_text"` // Plain-text projection of Content
	CreatedBy   string                 `json:"created_by"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ExtractPlainText walks a rich-text content tree and concatenates every
// "text" leaf, separated by single spaces. Unknown node shapes contribute
// nothing. The projection is recomputed on every note write.
func ExtractPlainText(content map[string]interface{}) string {
	if content == nil {
		return ""
	}

	var b strings.Builder
	walkContentNode(content, &b)
	return strings.TrimSpace(b.String())
}

func walkContentNode(node map[string]interface{}, b *strings.Builder) {
	if text, ok := node["text"].(string); ok {
		b.WriteString(text)
	}

	children, ok := node["content"].([]interface{})
	if !ok {
		return
	}
	for _, child := range children {
		if childNode, ok := child.(map[string]interface{}); ok {
			walkContentNode(childNode, b)
			b.WriteString(" ")
		}
	}
}

// PlainTextDocument wraps raw text in the minimal rich-text tree used for
// imported documents (a single paragraph with one text node).
func PlainTextDocument(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "doc",
		"content": []interface{}{
			map[string]interface{}{
				"type": "paragraph",
				"content": []interface{}{
					map[string]interface{}{
						"type": "text",
						"text": text,
					},
				},
			},
		},
	}
}
