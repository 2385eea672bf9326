package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/memento-assistant/internal/storage"
	"github.com/scrypster/memento-assistant/pkg/types"
)

const noteColumns = `id, workspace_id, parent_id, title, icon, cover_url, content, content_text, created_by, created_at, updated_at`

// CreateNote persists a new note. The plain-text projection is recomputed
// from Content on every write.
func (s *Store) CreateNote(ctx context.Context, note *types.Note) error {
	if note == nil || note.ID == "" {
		return fmt.Errorf("%w: note ID is required", storage.ErrInvalidInput)
	}
	if note.WorkspaceID == "" {
		return fmt.Errorf("%w: workspace ID is required", storage.ErrInvalidInput)
	}

	note.ContentText = types.ExtractPlainText(note.Content)
	contentJSON, err := marshalNoteContent(note.Content)
	if err != nil {
		return err
	}

	const insertSQL = `
		INSERT INTO notes (` + noteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, insertSQL,
		note.ID, note.WorkspaceID, nullable(note.ParentID), note.Title, note.Icon, note.CoverURL,
		contentJSON, note.ContentText, note.CreatedBy,
		formatTime(note.CreatedAt), formatTime(note.UpdatedAt))
	if err != nil {
		return fmt.Errorf("%w: failed to create note: %v", storage.ErrStoreUnavailable, err)
	}
	return nil
}

// GetNote retrieves a note by ID.
func (s *Store) GetNote(ctx context.Context, id string) (*types.Note, error) {
	const getSQL = `SELECT ` + noteColumns + ` FROM notes WHERE id = ?`

	note, err := scanNote(s.db.QueryRowContext(ctx, getSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: note %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get note: %v", storage.ErrStoreUnavailable, err)
	}
	return note, nil
}

// ListNotes returns a workspace's notes, most recently updated first.
func (s *Store) ListNotes(ctx context.Context, workspaceID string, limit int) ([]*types.Note, error) {
	limit = storage.NormalizeLimit(limit)

	const listSQL = `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE workspace_id = ?
		ORDER BY updated_at DESC, rowid DESC
		LIMIT ?`

	return s.queryNotes(ctx, listSQL, workspaceID, limit)
}

// UpdateNote replaces a note's mutable fields and refreshes its plain-text
// projection and updated_at timestamp.
func (s *Store) UpdateNote(ctx context.Context, note *types.Note) error {
	if note == nil || note.ID == "" {
		return fmt.Errorf("%w: note ID is required", storage.ErrInvalidInput)
	}

	note.ContentText = types.ExtractPlainText(note.Content)
	note.UpdatedAt = time.Now()
	contentJSON, err := marshalNoteContent(note.Content)
	if err != nil {
		return err
	}

	const updateSQL = `
		UPDATE notes
		SET parent_id = ?, title = ?, icon = ?, cover_url = ?,
		    content = ?, content_text = ?, updated_at = ?
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, updateSQL,
		nullable(note.ParentID), note.Title, note.Icon, note.CoverURL,
		contentJSON, note.ContentText, formatTime(note.UpdatedAt), note.ID)
	if err != nil {
		return fmt.Errorf("%w: failed to update note: %v", storage.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to check update result: %v", storage.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: note %s", storage.ErrNotFound, note.ID)
	}
	return nil
}

// DeleteNote removes a note.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	const deleteSQL = `DELETE FROM notes WHERE id = ?`

	res, err := s.db.ExecContext(ctx, deleteSQL, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete note: %v", storage.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to check delete result: %v", storage.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: note %s", storage.ErrNotFound, id)
	}
	return nil
}

// MoveNote reparents a note. An empty parentID moves it to the root.
func (s *Store) MoveNote(ctx context.Context, id, parentID string) error {
	const moveSQL = `UPDATE notes SET parent_id = ?, updated_at = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, moveSQL, nullable(parentID), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("%w: failed to move note: %v", storage.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to check move result: %v", storage.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: note %s", storage.ErrNotFound, id)
	}
	return nil
}

// Children returns a note's direct children, oldest first. An empty
// parentID returns the workspace's root notes.
func (s *Store) Children(ctx context.Context, workspaceID, parentID string) ([]*types.Note, error) {
	if parentID == "" {
		const rootSQL = `
			SELECT ` + noteColumns + `
			FROM notes
			WHERE workspace_id = ? AND parent_id IS NULL
			ORDER BY created_at ASC, rowid ASC`
		return s.queryNotes(ctx, rootSQL, workspaceID)
	}

	const childrenSQL = `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE workspace_id = ? AND parent_id = ?
		ORDER BY created_at ASC, rowid ASC`
	return s.queryNotes(ctx, childrenSQL, workspaceID, parentID)
}

// SearchNotes returns notes whose title or plain text contains the query,
// case-insensitively, most recently updated first.
func (s *Store) SearchNotes(ctx context.Context, workspaceID, query string, limit int) ([]*types.Note, error) {
	limit = storage.NormalizeLimit(limit)

	const searchSQL = `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE workspace_id = ?
		  AND (title LIKE ? ESCAPE '\' OR content_text LIKE ? ESCAPE '\')
		ORDER BY updated_at DESC, rowid DESC
		LIMIT ?`

	pattern := "%" + escapeLike(query) + "%"
	return s.queryNotes(ctx, searchSQL, workspaceID, pattern, pattern, limit)
}

// RelevantNotes returns the notes most relevant to a message: recent notes
// ranked by how many of the message's words appear in their title or text.
// With no word overlap at all the most recent notes win.
func (s *Store) RelevantNotes(ctx context.Context, workspaceID, message string, limit int) ([]*types.Note, error) {
	if limit <= 0 {
		limit = 5
	}

	// Rank within a recency window rather than the whole workspace.
	candidates, err := s.ListNotes(ctx, workspaceID, storage.MaxQueryLimit)
	if err != nil {
		return nil, err
	}

	words := significantWords(message)
	type scored struct {
		note  *types.Note
		score int
		order int
	}
	ranked := make([]scored, len(candidates))
	for i, note := range candidates {
		haystack := strings.ToLower(note.Title + " " + note.ContentText)
		score := 0
		for _, w := range words {
			if strings.Contains(haystack, w) {
				score++
			}
		}
		ranked[i] = scored{note: note, score: score, order: i}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	notes := make([]*types.Note, len(ranked))
	for i, r := range ranked {
		notes[i] = r.note
	}
	return notes, nil
}

func (s *Store) queryNotes(ctx context.Context, query string, args ...interface{}) ([]*types.Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: note query failed: %v", storage.ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	notes := []*types.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan note: %v", storage.ErrStoreUnavailable, err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: note query iteration failed: %v", storage.ErrStoreUnavailable, err)
	}
	return notes, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(row rowScanner) (*types.Note, error) {
	var (
		note               types.Note
		parentID           sql.NullString
		contentJSON        string
		createdAt, updated string
	)
	err := row.Scan(&note.ID, &note.WorkspaceID, &parentID, &note.Title, &note.Icon, &note.CoverURL,
		&contentJSON, &note.ContentText, &note.CreatedBy, &createdAt, &updated)
	if err != nil {
		return nil, err
	}

	note.ParentID = parentID.String
	note.CreatedAt = parseTime(createdAt)
	note.UpdatedAt = parseTime(updated)
	if err := json.Unmarshal([]byte(contentJSON), &note.Content); err != nil {
		return nil, fmt.Errorf("corrupt content for note %s: %w", note.ID, err)
	}
	return &note, nil
}

func marshalNoteContent(content map[string]interface{}) (string, error) {
	if content == nil {
		content = map[string]interface{}{}
	}
	data, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal note content: %v", storage.ErrInvalidInput, err)
	}
	return string(data), nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// significantWords lowercases a message and keeps words longer than three
// characters, deduplicated.
func significantWords(message string) []string {
	seen := map[string]bool{}
	words := []string{}
	for _, w := range strings.Fields(strings.ToLower(message)) {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if len(w) <= 3 || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	return words
}
