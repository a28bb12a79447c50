package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"listenlist/internal/share"
)

// SnapshotRepository persists the last successful reload's shares so
// the CLI can render a thread list without the network.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a repository over db.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// ReplaceAll swaps the snapshot for one viewer in a single transaction.
func (r *SnapshotRepository) ReplaceAll(ctx context.Context, viewerID int64, shares []share.Share) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM share_snapshots WHERE viewer_id = ?`, viewerID); err != nil {
			return fmt.Errorf("clear snapshot: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO share_snapshots (id, viewer_id, raw, created_at)
VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare snapshot insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range shares {
			raw, err := json.Marshal(s)
			if err != nil {
				return fmt.Errorf("encode share %s: %w", s.ID, err)
			}
			createdAt := s.CreatedAt.UTC().Format(time.RFC3339Nano)
			if _, err := stmt.ExecContext(ctx, s.ID, viewerID, string(raw), createdAt); err != nil {
				return fmt.Errorf("insert share %s: %w", s.ID, err)
			}
		}
		return nil
	})
}

// LoadAll returns the stored snapshot for one viewer, oldest first.
func (r *SnapshotRepository) LoadAll(ctx context.Context, viewerID int64) ([]share.Share, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
SELECT raw FROM share_snapshots WHERE viewer_id = ? ORDER BY created_at ASC`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var shares []share.Share
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		var s share.Share
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			// A corrupt row should not take the whole cache down.
			continue
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}
