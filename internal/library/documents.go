package library

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pulsepress/internal/logging"
)

// SaveDocument stores extracted full text for an item, replacing any
// previous extraction. Replacing a document drops its chunks: they no
// longer describe the stored text.
func (l *Library) SaveDocument(doc *Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.ContentHash == "" {
		doc.ContentHash = ContentHash(doc.Content)
	}
	if doc.WordCount == 0 {
		doc.WordCount = len(strings.Fields(doc.Content))
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldID string
	err = tx.QueryRow("SELECT id FROM documents WHERE item_id = ?", doc.ItemID).Scan(&oldID)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if oldID != "" {
		if _, err := tx.Exec("DELETE FROM chunks WHERE document_id = ?", oldID); err != nil {
			return fmt.Errorf("failed to drop stale chunks: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM documents WHERE id = ?", oldID); err != nil {
			return fmt.Errorf("failed to drop stale document: %w", err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO documents (id, item_id, content, content_hash, word_count, extracted_with, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.ItemID, doc.Content, doc.ContentHash, doc.WordCount,
		doc.ExtractedWith, fmtTime(doc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	logging.StoreDebug("document saved for item %s (%d words, %s)",
		doc.ItemID, doc.WordCount, doc.ExtractedWith)
	return nil
}

// GetDocument retrieves the document for an item, or nil.
func (l *Library) GetDocument(itemID string) (*Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var doc Document
	var extractedWith sql.NullString
	var createdAt string

	err := l.db.QueryRow(
		`SELECT id, item_id, content, content_hash, word_count, extracted_with, created_at
		 FROM documents WHERE item_id = ?`, itemID,
	).Scan(&doc.ID, &doc.ItemID, &doc.Content, &doc.ContentHash,
		&doc.WordCount, &extractedWith, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc.ExtractedWith = extractedWith.String
	doc.CreatedAt = parseTime(createdAt)
	return &doc, nil
}

// HasDocumentWithHash reports whether an item already has this exact text.
// Used to skip re-chunking unchanged extractions.
func (l *Library) HasDocumentWithHash(itemID, hash string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var n int
	err := l.db.QueryRow(
		"SELECT COUNT(*) FROM documents WHERE item_id = ? AND content_hash = ?",
		itemID, hash,
	).Scan(&n)
	return n > 0, err
}

// ============================================================================
// Chunks
// ============================================================================

// SaveChunks replaces the chunks of a document in one transaction.
func (l *Library) SaveChunks(documentID, itemID string, chunks []*Chunk) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO chunks (id, document_id, item_id, seq, text, token_count, indexed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := fmtTime(time.Now())
	for i, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.DocumentID = documentID
		c.ItemID = itemID
		c.Seq = i
		if _, err := stmt.Exec(c.ID, documentID, itemID, i, c.Text, c.TokenCount, now); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	logging.StoreDebug("saved %d chunks for document %s", len(chunks), documentID)
	return nil
}

const chunkColumns = "id, document_id, item_id, seq, text, token_count, indexed, created_at"

func scanChunk(row interface{ Scan(...interface{}) error }) (*Chunk, error) {
	var c Chunk
	var indexed int
	var createdAt string
	err := row.Scan(&c.ID, &c.DocumentID, &c.ItemID, &c.Seq, &c.Text,
		&c.TokenCount, &indexed, &createdAt)
	if err != nil {
		return nil, err
	}
	c.Indexed = indexed != 0
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// ChunksForDocument returns a document's chunks in order.
func (l *Library) ChunksForDocument(documentID string) ([]*Chunk, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.Query(
		"SELECT "+chunkColumns+" FROM chunks WHERE document_id = ? ORDER BY seq", documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectChunks(rows)
}

// UnindexedChunks returns chunks from shortlisted or indexed items that
// have not entered the dense index yet.
func (l *Library) UnindexedChunks(limit int) ([]*Chunk, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = 500
	}

	rows, err := l.db.Query(
		`SELECT c.id, c.document_id, c.item_id, c.seq, c.text, c.token_count, c.indexed, c.created_at
		 FROM chunks c JOIN items i ON i.id = c.item_id
		 WHERE c.indexed = 0 AND i.status IN (?, ?)
		 ORDER BY c.created_at LIMIT ?`,
		StatusShortlisted, StatusIndexed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectChunks(rows)
}

// IndexedChunks returns every chunk in the dense index. This is the
// sparse-search corpus, so hybrid legs score the same set.
func (l *Library) IndexedChunks() ([]*Chunk, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.Query(
		"SELECT " + chunkColumns + " FROM chunks WHERE indexed = 1 ORDER BY item_id, seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectChunks(rows)
}

// GetChunks hydrates chunks by ID, preserving the input order.
func (l *Library) GetChunks(ids []string) ([]*Chunk, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := l.db.Query(
		"SELECT "+chunkColumns+" FROM chunks WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*Chunk)
	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		byID[c.ID] = c
	}

	ordered := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// MarkChunksIndexed flips the indexed flag after a successful upsert and
// advances the owning items to indexed.
func (l *Library) MarkChunksIndexed(ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("UPDATE chunks SET indexed = 1 WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("failed to mark chunk indexed: %w", err)
		}
	}

	// An item is indexed once none of its chunks remain unindexed
	_, err = tx.Exec(
		`UPDATE items SET status = ? WHERE status = ? AND id IN (
			SELECT item_id FROM chunks GROUP BY item_id
			HAVING SUM(CASE WHEN indexed = 0 THEN 1 ELSE 0 END) = 0
		 )`, StatusIndexed, StatusShortlisted)
	if err != nil {
		return fmt.Errorf("failed to advance item status: %w", err)
	}

	return tx.Commit()
}

// ResetChunkIndex clears every indexed flag and returns indexed items to
// shortlisted. Rebuilds call this after dropping the collection so the
// next run re-embeds everything.
func (l *Library) ResetChunkIndex() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE chunks SET indexed = 0"); err != nil {
		return fmt.Errorf("failed to reset chunk flags: %w", err)
	}
	if _, err := tx.Exec("UPDATE items SET status = ? WHERE status = ?",
		StatusShortlisted, StatusIndexed); err != nil {
		return fmt.Errorf("failed to reset item status: %w", err)
	}
	return tx.Commit()
}

func collectChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
