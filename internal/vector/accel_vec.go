//go:build sqlite_vec && cgo

package vector

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver.
	// vec.Auto() registers it as an auto-loadable extension.
	vec.Auto()
}

// accelIndex is a vec0 sidecar database next to the library. It mirrors the
// library's embeddings for indexed KNN; the library copy stays the source
// of truth, so the sidecar can be rebuilt at any time.
type accelIndex struct {
	db   *sql.DB
	dims int
}

// openAccel opens (or creates) the sidecar database.
func openAccel(libraryPath string, dims int) (*accelIndex, error) {
	sidecar := ":memory:"
	if libraryPath != ":memory:" && !strings.HasPrefix(libraryPath, "file::memory:") {
		sidecar = filepath.Join(filepath.Dir(libraryPath), "vectors.db")
	}

	db, err := sql.Open("sqlite3", sidecar)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector sidecar: %w", err)
	}
	db.SetMaxOpenConns(1)

	a := &accelIndex{db: db, dims: dims}
	if err := a.ensureTables(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *accelIndex) ensureTables() error {
	refsTable := `
	CREATE TABLE IF NOT EXISTS chunk_refs (
		id INTEGER PRIMARY KEY,
		chunk_id TEXT NOT NULL UNIQUE,
		item_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunk_refs_item ON chunk_refs(item_id);
	`
	if _, err := a.db.Exec(refsTable); err != nil {
		return fmt.Errorf("failed to create chunk_refs: %w", err)
	}

	vecTable := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(embedding float[%d] distance_metric=cosine)",
		a.dims,
	)
	if _, err := a.db.Exec(vecTable); err != nil {
		return fmt.Errorf("failed to create chunk_vectors: %w", err)
	}
	return nil
}

func (a *accelIndex) upsert(points []Point) error {
	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range points {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO chunk_refs (chunk_id, item_id) VALUES (?, ?)",
			p.ChunkID, p.ItemID,
		); err != nil {
			return err
		}

		var rowid int64
		if err := tx.QueryRow(
			"SELECT id FROM chunk_refs WHERE chunk_id = ?", p.ChunkID,
		).Scan(&rowid); err != nil {
			return err
		}

		// vec0 has no OR REPLACE; delete then insert.
		if _, err := tx.Exec("DELETE FROM chunk_vectors WHERE rowid = ?", rowid); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT INTO chunk_vectors (rowid, embedding) VALUES (?, ?)",
			rowid, encodeFloat32(p.Vector),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (a *accelIndex) search(vector []float32, k int) ([]Hit, error) {
	rows, err := a.db.Query(
		"SELECT rowid, distance FROM chunk_vectors WHERE embedding MATCH ? AND k = ? ORDER BY distance",
		encodeFloat32(vector), k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type knnHit struct {
		rowid    int64
		distance float64
	}
	var knn []knnHit
	for rows.Next() {
		var h knnHit
		if err := rows.Scan(&h.rowid, &h.distance); err != nil {
			continue
		}
		knn = append(knn, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(knn) == 0 {
		return nil, nil
	}

	// Resolve rowids to chunk/item IDs, preserving KNN order.
	placeholders := strings.Repeat("?,", len(knn))
	args := make([]interface{}, len(knn))
	for i, h := range knn {
		args[i] = h.rowid
	}
	refRows, err := a.db.Query(
		fmt.Sprintf("SELECT id, chunk_id, item_id FROM chunk_refs WHERE id IN (%s)",
			placeholders[:len(placeholders)-1]),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer refRows.Close()

	type ref struct{ chunkID, itemID string }
	refs := make(map[int64]ref, len(knn))
	for refRows.Next() {
		var id int64
		var r ref
		if err := refRows.Scan(&id, &r.chunkID, &r.itemID); err != nil {
			continue
		}
		refs[id] = r
	}

	hits := make([]Hit, 0, len(knn))
	for _, h := range knn {
		r, ok := refs[h.rowid]
		if !ok {
			continue
		}
		// Cosine distance back to similarity.
		hits = append(hits, Hit{ChunkID: r.chunkID, ItemID: r.itemID, Score: 1 - h.distance})
	}
	return hits, nil
}

func (a *accelIndex) deleteByItem(itemID string) error {
	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM chunk_vectors WHERE rowid IN (SELECT id FROM chunk_refs WHERE item_id = ?)",
		itemID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM chunk_refs WHERE item_id = ?", itemID); err != nil {
		return err
	}

	return tx.Commit()
}

func (a *accelIndex) drop() error {
	if _, err := a.db.Exec("DROP TABLE IF EXISTS chunk_vectors"); err != nil {
		return err
	}
	if _, err := a.db.Exec("DELETE FROM chunk_refs"); err != nil {
		return err
	}
	return a.ensureTables()
}

func (a *accelIndex) close() error {
	return a.db.Close()
}

// encodeFloat32 serializes a vector as the little-endian float32 blob
// sqlite-vec expects.
func encodeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
