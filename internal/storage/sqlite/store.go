// Package sqlite implements the assistant's relational storage on SQLite:
// conversations, messages, and notes, plus a fallback vector store that
// orders by recency instead of similarity. It is the zero-dependency default
// backend for local single-user deployments.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/memento-assistant/internal/storage"
)

// Schema creates all tables used by the SQLite backend.
const Schema = `
CREATE TABLE IF NOT EXISTS memory_vectors (
	id         TEXT PRIMARY KEY,
	embedding  TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_workspace
	ON conversations(workspace_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	metadata        TEXT NOT NULL DEFAULT '{}',
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS notes (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	parent_id    TEXT,
	title        TEXT NOT NULL DEFAULT '',
	icon         TEXT NOT NULL DEFAULT '',
	cover_url    TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '{}',
	content_text TEXT NOT NULL DEFAULT '',
	created_by   TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_workspace
	ON notes(workspace_id, updated_at DESC);
`

// Store implements storage.VectorStore, storage.ConversationStore, and
// storage.NoteStore on a single SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database, configures WAL mode, and creates the
// schema. Use ":memory:" as the DSN for an ephemeral store in tests.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: sqlite DSN is empty", storage.ErrInvalidInput)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", storage.ErrStoreUnavailable, err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode lets readers proceed without blocking the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %v", storage.ErrStoreUnavailable, err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to set busy timeout: %v", storage.ErrStoreUnavailable, err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to enable foreign keys: %v", storage.ErrStoreUnavailable, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to create schema: %v", storage.ErrStoreUnavailable, err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Compile-time assertions.
var (
	_ storage.VectorStore       = (*Store)(nil)
	_ storage.ConversationStore = (*Store)(nil)
	_ storage.NoteStore         = (*Store)(nil)
)
