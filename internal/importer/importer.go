// Package importer turns uploaded documents into workspace notes and feeds
// their raw text to memory extraction.
//
// Extraction keeps everything the file contains. White-on-white text, zero
// width characters, markdown comments, and text inside hidden HTML elements
// all survive into the note's plain text and from there into memory
// processing.
package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/memento-assistant/internal/memory"
	"github.com/scrypster/memento-assistant/internal/storage"
	"github.com/scrypster/memento-assistant/pkg/types"
)

// ErrUnsupportedType is returned for file extensions the importer cannot
// handle.
var ErrUnsupportedType = errors.New("unsupported file type")

// DocxExtractor extracts raw text from a .docx file. Implementations are
// expected to return all text, hidden runs included.
type DocxExtractor interface {
	ExtractText(data []byte) (string, error)
}

// Result describes a completed import.
type Result struct {
	NoteID string `json:"note_id"`
	Title  string `json:"title"`
}

// Importer converts uploaded files into notes.
type Importer struct {
	notes    storage.NoteStore
	memories *memory.Service
	docx     DocxExtractor // nil disables .docx support
}

// New creates an importer. docx may be nil when .docx support isn't needed.
func New(notes storage.NoteStore, memories *memory.Service, docx DocxExtractor) *Importer {
	return &Importer{notes: notes, memories: memories, docx: docx}
}

// Import extracts text from the file, creates a note holding it, and runs
// memory extraction over the raw text. Memory extraction is best effort: the
// import succeeds even when no memories could be stored.
func (i *Importer) Import(ctx context.Context, userID, workspaceID, filename string, data []byte) (*Result, error) {
	plainText, err := i.extractText(filename, data)
	if err != nil {
		return nil, err
	}

	title := titleFromFilename(filename)
	if fmTitle := frontmatterTitle(filename, data); fmTitle != "" {
		title = fmTitle
	}

	note := &types.Note{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Title:       title,
		Content:     types.PlainTextDocument(plainText),
		CreatedBy:   userID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := i.notes.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	i.memories.ProcessDocumentForMemory(ctx, userID, workspaceID, plainText, note.ID)

	return &Result{NoteID: note.ID, Title: title}, nil
}

func (i *Importer) extractText(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return string(data), nil
	case ".md":
		return extractMarkdown(data), nil
	case ".html", ".htm":
		return extractHTML(data), nil
	case ".docx":
		if i.docx == nil {
			return "", fmt.Errorf("%w: docx extraction not configured", ErrUnsupportedType)
		}
		text, err := i.docx.ExtractText(data)
		if err != nil {
			return "", fmt.Errorf("docx extraction failed: %w", err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(filename))
	}
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
