// Package library is the SQLite-backed content store: fetched items,
// triage verdicts, extracted documents, retrieval chunks, drafts,
// rendered assets, and publication records.
package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports a missing row. Lookup errors wrap it so callers
// can branch with errors.Is without parsing messages.
var ErrNotFound = errors.New("not found")

// Library wraps the SQLite database holding all pipeline state.
type Library struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Library, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent pipeline stages
	db.SetMaxOpenConns(1)

	lib := &Library{db: db, dbPath: path}
	if err := lib.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return lib, nil
}

// initialize creates the required tables.
func (l *Library) initialize() error {
	itemsTable := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		kind TEXT NOT NULL,
		external_id TEXT,
		url TEXT,
		title TEXT NOT NULL,
		authors TEXT,
		summary TEXT,
		published_at TEXT,
		fetched_at TEXT NOT NULL,
		dedupe_key TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'new',
		tags TEXT,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
	CREATE INDEX IF NOT EXISTS idx_items_source ON items(source);
	CREATE INDEX IF NOT EXISTS idx_items_published ON items(published_at);
	`

	verdictsTable := `
	CREATE TABLE IF NOT EXISTS verdicts (
		item_id TEXT PRIMARY KEY REFERENCES items(id),
		relevance INTEGER NOT NULL,
		action TEXT NOT NULL,
		angle TEXT,
		hook TEXT,
		audience TEXT,
		rationale TEXT,
		model TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_verdicts_action ON verdicts(action);
	`

	documentsTable := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL UNIQUE REFERENCES items(id),
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		word_count INTEGER NOT NULL,
		extracted_with TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
	`

	chunksTable := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		item_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		text TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		indexed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_item ON chunks(item_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_indexed ON chunks(indexed);
	`

	embeddingsTable := `
	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id TEXT PRIMARY KEY REFERENCES chunks(id),
		item_id TEXT NOT NULL,
		embedding TEXT NOT NULL,
		dims INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_item ON embeddings(item_id);
	`

	draftsTable := `
	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		topic TEXT,
		content TEXT NOT NULL,
		item_ids TEXT,
		citations TEXT,
		model TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status);
	CREATE INDEX IF NOT EXISTS idx_drafts_kind ON drafts(kind);
	`

	assetsTable := `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		draft_id TEXT,
		kind TEXT NOT NULL,
		path TEXT NOT NULL,
		meta TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assets_draft ON assets(draft_id);
	`

	publicationsTable := `
	CREATE TABLE IF NOT EXISTS publications (
		draft_id TEXT NOT NULL REFERENCES drafts(id),
		channel TEXT NOT NULL,
		external_ref TEXT,
		published_at TEXT NOT NULL,
		UNIQUE(draft_id, channel)
	);
	`

	for _, table := range []string{
		itemsTable, verdictsTable, documentsTable, chunksTable,
		embeddingsTable, draftsTable, assetsTable, publicationsTable,
	} {
		if _, err := l.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (l *Library) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Library) Path() string {
	return l.dbPath
}

// Stats summarizes the library for status displays.
type Stats struct {
	ItemsByStatus map[string]int
	Documents     int
	Chunks        int
	ChunksIndexed int
	Drafts        int
	Publications  int
}

// Stats counts rows per table and items per status.
func (l *Library) Stats() (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := &Stats{ItemsByStatus: make(map[string]int)}

	rows, err := l.db.Query("SELECT status, COUNT(*) FROM items GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			continue
		}
		st.ItemsByStatus[status] = n
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &st.Documents},
		{"SELECT COUNT(*) FROM chunks", &st.Chunks},
		{"SELECT COUNT(*) FROM chunks WHERE indexed = 1", &st.ChunksIndexed},
		{"SELECT COUNT(*) FROM drafts", &st.Drafts},
		{"SELECT COUNT(*) FROM publications", &st.Publications},
	}
	for _, c := range counts {
		if err := l.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	return st, nil
}

// ============================================================================
// Time encoding: RFC3339 TEXT columns, written by the app
// ============================================================================

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
