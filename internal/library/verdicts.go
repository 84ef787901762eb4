package library

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveVerdict stores the triage decision for an item and advances its status.
// The item moves to shortlisted for shortlist/deep_dive actions, rejected for skip.
func (l *Library) SaveVerdict(v *Verdict) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO verdicts
		 (item_id, relevance, action, angle, hook, audience, rationale, model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ItemID, v.Relevance, v.Action, v.Angle, v.Hook, v.Audience,
		v.Rationale, v.Model, fmtTime(v.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save verdict: %w", err)
	}

	status := StatusTriaged
	switch v.Action {
	case ActionShortlist, ActionDeepDive:
		status = StatusShortlisted
	case ActionSkip:
		status = StatusRejected
	}
	if _, err := tx.Exec("UPDATE items SET status = ? WHERE id = ?", status, v.ItemID); err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}

	return tx.Commit()
}

// GetVerdict retrieves the verdict for an item, or nil.
func (l *Library) GetVerdict(itemID string) (*Verdict, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var v Verdict
	var angle, hook, audience, rationale, model sql.NullString
	var createdAt string

	err := l.db.QueryRow(
		`SELECT item_id, relevance, action, angle, hook, audience, rationale, model, created_at
		 FROM verdicts WHERE item_id = ?`, itemID,
	).Scan(&v.ItemID, &v.Relevance, &v.Action, &angle, &hook, &audience,
		&rationale, &model, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v.Angle = angle.String
	v.Hook = hook.String
	v.Audience = audience.String
	v.Rationale = rationale.String
	v.Model = model.String
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

// ListVerdicts returns verdicts filtered by action (""), newest first.
func (l *Library) ListVerdicts(action string, limit int) ([]*Verdict, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if action != "" {
		rows, err = l.db.Query(
			`SELECT item_id, relevance, action, angle, hook, audience, rationale, model, created_at
			 FROM verdicts WHERE action = ? ORDER BY created_at DESC LIMIT ?`, action, limit)
	} else {
		rows, err = l.db.Query(
			`SELECT item_id, relevance, action, angle, hook, audience, rationale, model, created_at
			 FROM verdicts ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var verdicts []*Verdict
	for rows.Next() {
		var v Verdict
		var angle, hook, audience, rationale, model sql.NullString
		var createdAt string
		if err := rows.Scan(&v.ItemID, &v.Relevance, &v.Action, &angle, &hook,
			&audience, &rationale, &model, &createdAt); err != nil {
			continue
		}
		v.Angle = angle.String
		v.Hook = hook.String
		v.Audience = audience.String
		v.Rationale = rationale.String
		v.Model = model.String
		v.CreatedAt = parseTime(createdAt)
		verdicts = append(verdicts, &v)
	}
	return verdicts, rows.Err()
}
