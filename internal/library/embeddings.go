package library

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EmbeddingRow is one chunk embedding persisted for the local dense index.
type EmbeddingRow struct {
	ChunkID string
	ItemID  string
	Vector  []float32
}

// SaveEmbeddings stores chunk embeddings, replacing any existing vector for
// the same chunk. Vectors serialize as JSON arrays.
func (l *Library) SaveEmbeddings(rows []EmbeddingRow) error {
	if len(rows) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO embeddings (chunk_id, item_id, embedding, dims, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := fmtTime(time.Now())
	for _, row := range rows {
		vecJSON, err := json.Marshal(row.Vector)
		if err != nil {
			return fmt.Errorf("failed to serialize embedding for chunk %s: %w", row.ChunkID, err)
		}
		if _, err := stmt.Exec(row.ChunkID, row.ItemID, string(vecJSON), len(row.Vector), now); err != nil {
			return fmt.Errorf("failed to insert embedding for chunk %s: %w", row.ChunkID, err)
		}
	}

	return tx.Commit()
}

// LoadEmbeddings returns stored embeddings for brute-force search.
// itemIDs and tag narrow the candidate set; both are optional.
func (l *Library) LoadEmbeddings(itemIDs []string, tag string) ([]EmbeddingRow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	query := "SELECT e.chunk_id, e.item_id, e.embedding FROM embeddings e"

	var conds []string
	var args []interface{}
	if tag != "" {
		query += " JOIN items i ON i.id = e.item_id"
		conds = append(conds, "i.tags LIKE ?")
		args = append(args, `%"`+tag+`"%`)
	}
	if len(itemIDs) > 0 {
		placeholders := strings.Repeat("?,", len(itemIDs))
		conds = append(conds, fmt.Sprintf("e.item_id IN (%s)", placeholders[:len(placeholders)-1]))
		for _, id := range itemIDs {
			args = append(args, id)
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var result []EmbeddingRow
	for rows.Next() {
		var row EmbeddingRow
		var vecJSON string
		if err := rows.Scan(&row.ChunkID, &row.ItemID, &vecJSON); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(vecJSON), &row.Vector); err != nil {
			continue
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

// DeleteEmbeddingsByItem removes all embeddings for an item's chunks.
func (l *Library) DeleteEmbeddingsByItem(itemID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec("DELETE FROM embeddings WHERE item_id = ?", itemID)
	return err
}

// CountEmbeddings returns the number of stored embeddings.
func (l *Library) CountEmbeddings() (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var n int64
	if err := l.db.QueryRow("SELECT COUNT(*) FROM embeddings").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ClearEmbeddings drops all stored embeddings and resets chunk index flags,
// used by index --rebuild.
func (l *Library) ClearEmbeddings() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM embeddings"); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE chunks SET indexed = 0"); err != nil {
		return err
	}

	return tx.Commit()
}
