package metastore

import (
	"context"
	"fmt"
	"time"

	"github.com/engramlabs/engramd/internal/vectorstore"
)

// Tombstone records a vector-store write that must be retried: either
// a delete that failed after the metadata row was removed, or a
// compensation that failed after a partial add.
type Tombstone struct {
	FragmentID string
	Collection string
	Scope      vectorstore.Scope
	Reason     string
	CreatedAt  time.Time
}

// AddTombstone records an outstanding vector-store delete. Duplicate
// entries for the same fragment and collection are collapsed.
func (s *Store) AddTombstone(ctx context.Context, t Tombstone) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vector_tombstones (fragment_id, collection, tenant_id, project_id, user_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fragment_id, collection) DO UPDATE SET reason = excluded.reason`,
		t.FragmentID, t.Collection, t.Scope.TenantID, t.Scope.ProjectID, t.Scope.UserID,
		t.Reason, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("metastore: add tombstone: %w", err)
	}
	return nil
}

// ListTombstones returns outstanding tombstones, oldest first.
func (s *Store) ListTombstones(ctx context.Context, limit int) ([]Tombstone, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT fragment_id, collection, tenant_id, project_id, user_id, reason, created_at
		FROM vector_tombstones ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("metastore: list tombstones: %w", err)
	}
	defer rows.Close()
	var out []Tombstone
	for rows.Next() {
		var t Tombstone
		var createdAt string
		err := rows.Scan(&t.FragmentID, &t.Collection, &t.Scope.TenantID,
			&t.Scope.ProjectID, &t.Scope.UserID, &t.Reason, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("metastore: scan tombstone: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// RemoveTombstone clears a tombstone once the vector store confirmed
// the delete.
func (s *Store) RemoveTombstone(ctx context.Context, fragmentID, collection string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM vector_tombstones WHERE fragment_id = ? AND collection = ?`,
		fragmentID, collection)
	if err != nil {
		return fmt.Errorf("metastore: remove tombstone: %w", err)
	}
	return nil
}
