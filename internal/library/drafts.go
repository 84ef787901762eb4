package library

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pulsepress/internal/logging"
)

// SaveDraft stores a new draft or rewrites an existing one.
func (l *Library) SaveDraft(d *Draft) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DraftStatusDraft
	}
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	itemIDsJSON, _ := json.Marshal(d.ItemIDs)
	citationsJSON, _ := json.Marshal(d.Citations)

	_, err := l.db.Exec(
		`INSERT OR REPLACE INTO drafts
		 (id, kind, title, topic, content, item_ids, citations, model, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Kind, d.Title, d.Topic, d.Content, string(itemIDsJSON),
		string(citationsJSON), d.Model, d.Status,
		fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	logging.StoreDebug("draft saved: %s [%s] %s", d.ID, d.Kind, d.Title)
	return nil
}

const draftColumns = `id, kind, title, topic, content, item_ids, citations,
	model, status, created_at, updated_at`

func scanDraft(row interface{ Scan(...interface{}) error }) (*Draft, error) {
	var d Draft
	var topic, itemIDsJSON, citationsJSON, model sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&d.ID, &d.Kind, &d.Title, &topic, &d.Content,
		&itemIDsJSON, &citationsJSON, &model, &d.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Topic = topic.String
	d.Model = model.String
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	if itemIDsJSON.Valid && itemIDsJSON.String != "" {
		json.Unmarshal([]byte(itemIDsJSON.String), &d.ItemIDs)
	}
	if citationsJSON.Valid && citationsJSON.String != "" {
		json.Unmarshal([]byte(citationsJSON.String), &d.Citations)
	}
	return &d, nil
}

// GetDraft retrieves a draft by ID.
func (l *Library) GetDraft(id string) (*Draft, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	row := l.db.QueryRow("SELECT "+draftColumns+" FROM drafts WHERE id = ?", id)
	d, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("draft %w: %s", ErrNotFound, id)
	}
	return d, err
}

// ListDrafts returns drafts, optionally filtered by status, newest first.
func (l *Library) ListDrafts(status string, limit int) ([]*Draft, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = l.db.Query(
			"SELECT "+draftColumns+" FROM drafts WHERE status = ? ORDER BY updated_at DESC LIMIT ?",
			status, limit)
	} else {
		rows, err = l.db.Query(
			"SELECT "+draftColumns+" FROM drafts ORDER BY updated_at DESC LIMIT ?", limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			continue
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// UpdateDraftStatus moves a draft through draft -> approved -> published.
func (l *Library) UpdateDraftStatus(id, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec(
		"UPDATE drafts SET status = ?, updated_at = ? WHERE id = ?",
		status, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update draft status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("draft %w: %s", ErrNotFound, id)
	}
	return nil
}

// ============================================================================
// Assets
// ============================================================================

// SaveAsset records a rendered artifact.
func (l *Library) SaveAsset(a *Asset) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	metaJSON, _ := json.Marshal(a.Meta)

	_, err := l.db.Exec(
		`INSERT OR REPLACE INTO assets (id, draft_id, kind, path, meta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.DraftID, a.Kind, a.Path, string(metaJSON), fmtTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

// ListAssets returns assets for a draft ("" lists all), newest first.
func (l *Library) ListAssets(draftID string) ([]*Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var rows *sql.Rows
	var err error
	if draftID != "" {
		rows, err = l.db.Query(
			"SELECT id, draft_id, kind, path, meta, created_at FROM assets WHERE draft_id = ? ORDER BY created_at DESC",
			draftID)
	} else {
		rows, err = l.db.Query(
			"SELECT id, draft_id, kind, path, meta, created_at FROM assets ORDER BY created_at DESC")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		var a Asset
		var draftID, metaJSON sql.NullString
		var createdAt string
		if err := rows.Scan(&a.ID, &draftID, &a.Kind, &a.Path, &metaJSON, &createdAt); err != nil {
			continue
		}
		a.DraftID = draftID.String
		a.CreatedAt = parseTime(createdAt)
		if metaJSON.Valid && metaJSON.String != "" {
			json.Unmarshal([]byte(metaJSON.String), &a.Meta)
		}
		assets = append(assets, &a)
	}
	return assets, rows.Err()
}

// ============================================================================
// Publications
// ============================================================================

// RecordPublication stores the delivery record for a draft+channel pair.
// Re-publishing the same pair overwrites the record (used with --force).
func (l *Library) RecordPublication(p *Publication) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now()
	}

	_, err := l.db.Exec(
		`INSERT OR REPLACE INTO publications (draft_id, channel, external_ref, published_at)
		 VALUES (?, ?, ?, ?)`,
		p.DraftID, p.Channel, p.ExternalRef, fmtTime(p.PublishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record publication: %w", err)
	}
	return nil
}

// GetPublication returns the delivery record for a draft+channel, or nil.
func (l *Library) GetPublication(draftID, channel string) (*Publication, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var p Publication
	var externalRef sql.NullString
	var publishedAt string

	err := l.db.QueryRow(
		`SELECT draft_id, channel, external_ref, published_at
		 FROM publications WHERE draft_id = ? AND channel = ?`,
		draftID, channel,
	).Scan(&p.DraftID, &p.Channel, &externalRef, &publishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.ExternalRef = externalRef.String
	p.PublishedAt = parseTime(publishedAt)
	return &p, nil
}

// ListPublications returns all delivery records for a draft.
func (l *Library) ListPublications(draftID string) ([]*Publication, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.Query(
		`SELECT draft_id, channel, external_ref, published_at
		 FROM publications WHERE draft_id = ? ORDER BY published_at`, draftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pubs []*Publication
	for rows.Next() {
		var p Publication
		var externalRef sql.NullString
		var publishedAt string
		if err := rows.Scan(&p.DraftID, &p.Channel, &externalRef, &publishedAt); err != nil {
			continue
		}
		p.ExternalRef = externalRef.String
		p.PublishedAt = parseTime(publishedAt)
		pubs = append(pubs, &p)
	}
	return pubs, rows.Err()
}
