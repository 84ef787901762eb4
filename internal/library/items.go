package library

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pulsepress/internal/logging"
)

// UpsertItem inserts an item if its dedupe key is unseen.
// Returns true when the item was new.
func (l *Library) UpsertItem(item *Item) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.DedupeKey == "" {
		item.DedupeKey = DedupeKey(item.Kind, item.ExternalID, item.URL)
	}
	if item.Status == "" {
		item.Status = StatusNew
	}
	if item.Fetched.IsZero() {
		item.Fetched = time.Now()
	}

	authorsJSON, _ := json.Marshal(item.Authors)
	tagsJSON, _ := json.Marshal(item.Tags)
	metaJSON, _ := json.Marshal(item.Metadata)

	res, err := l.db.Exec(
		`INSERT OR IGNORE INTO items
		 (id, source, kind, external_id, url, title, authors, summary,
		  published_at, fetched_at, dedupe_key, status, tags, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Source, item.Kind, item.ExternalID, item.URL, item.Title,
		string(authorsJSON), item.Summary, fmtTime(item.Published),
		fmtTime(item.Fetched), item.DedupeKey, item.Status,
		string(tagsJSON), string(metaJSON),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert item: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		logging.StoreDebug("item stored: %s (%s)", item.Title, item.Source)
		return true, nil
	}
	return false, nil
}

const itemColumns = `id, source, kind, external_id, url, title, authors, summary,
	published_at, fetched_at, dedupe_key, status, tags, metadata`

func scanItem(row interface{ Scan(...interface{}) error }) (*Item, error) {
	var item Item
	var authorsJSON, tagsJSON, metaJSON sql.NullString
	var externalID, url, summary, publishedAt sql.NullString
	var fetchedAt string

	err := row.Scan(
		&item.ID, &item.Source, &item.Kind, &externalID, &url, &item.Title,
		&authorsJSON, &summary, &publishedAt, &fetchedAt,
		&item.DedupeKey, &item.Status, &tagsJSON, &metaJSON,
	)
	if err != nil {
		return nil, err
	}

	item.ExternalID = externalID.String
	item.URL = url.String
	item.Summary = summary.String
	item.Published = parseTime(publishedAt.String)
	item.Fetched = parseTime(fetchedAt)

	if authorsJSON.Valid && authorsJSON.String != "" {
		json.Unmarshal([]byte(authorsJSON.String), &item.Authors)
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		json.Unmarshal([]byte(tagsJSON.String), &item.Tags)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		json.Unmarshal([]byte(metaJSON.String), &item.Metadata)
	}

	return &item, nil
}

// GetItem retrieves an item by ID.
func (l *Library) GetItem(id string) (*Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	row := l.db.QueryRow("SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %w: %s", ErrNotFound, id)
	}
	return item, err
}

// GetItemByDedupeKey retrieves an item by its dedupe key, or nil.
func (l *Library) GetItemByDedupeKey(key string) (*Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	row := l.db.QueryRow("SELECT "+itemColumns+" FROM items WHERE dedupe_key = ?", key)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// ListItems returns items, optionally filtered by status, newest first.
func (l *Library) ListItems(status string, limit int) ([]*Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = l.db.Query(
			"SELECT "+itemColumns+" FROM items WHERE status = ? ORDER BY published_at DESC, fetched_at DESC LIMIT ?",
			status, limit,
		)
	} else {
		rows, err = l.db.Query(
			"SELECT "+itemColumns+" FROM items ORDER BY published_at DESC, fetched_at DESC LIMIT ?",
			limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SearchItems does a keyword LIKE search over titles and summaries.
func (l *Library) SearchItems(query string, limit int) ([]*Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		conditions = append(conditions, "(LOWER(title) LIKE ? OR LOWER(summary) LIKE ?)")
		args = append(args, "%"+kw+"%", "%"+kw+"%")
	}

	sqlQuery := fmt.Sprintf(
		"SELECT %s FROM items WHERE %s ORDER BY published_at DESC LIMIT ?",
		itemColumns, strings.Join(conditions, " AND "),
	)
	args = append(args, limit)

	rows, err := l.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItemStatus moves an item through the intake lifecycle.
func (l *Library) UpdateItemStatus(id, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec("UPDATE items SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("item %w: %s", ErrNotFound, id)
	}
	logging.StoreDebug("item %s -> %s", id, status)
	return nil
}

// CountItems returns the number of items with the given status
// ("" counts everything).
func (l *Library) CountItems(status string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var n int
	var err error
	if status != "" {
		err = l.db.QueryRow("SELECT COUNT(*) FROM items WHERE status = ?", status).Scan(&n)
	} else {
		err = l.db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n)
	}
	return n, err
}
