package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

const fragmentColumns = `id, tenant_id, project_id, user_id, content, memory_type, role,
	session_id, tags, importance, metadata, hit_count, created_at, updated_at`

// InsertFragment writes a new fragment row. A missing ID is assigned;
// timestamps are set to now.
func (s *Store) InsertFragment(ctx context.Context, f *v1.Fragment) error {
	if f.ID == "" {
		f.ID = s.newID()
	}
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	tags, err := json.Marshal(emptyIfNilTags(f.Tags))
	if err != nil {
		return fmt.Errorf("metastore: marshal tags: %w", err)
	}
	meta, err := json.Marshal(emptyIfNilMeta(f.Metadata))
	if err != nil {
		return fmt.Errorf("metastore: marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fragments (`+fragmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.TenantID, f.ProjectID, f.UserID, f.Content, string(f.MemoryType),
		string(f.Role), f.SessionID, string(tags), f.Importance, string(meta),
		f.HitCount, formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
	if isUniqueViolation(err) {
		return v1.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("metastore: insert fragment: %w", err)
	}
	return nil
}

// GetFragment loads a fragment by ID. The scope is part of the WHERE
// clause, so a foreign ID reads as not found.
func (s *Store) GetFragment(ctx context.Context, scope vectorstore.Scope, id string) (*v1.Fragment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+fragmentColumns+` FROM fragments
		WHERE id = ? AND tenant_id = ? AND project_id = ? AND user_id = ?`,
		id, scope.TenantID, scope.ProjectID, scope.UserID)
	f, err := scanFragment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, v1.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: get fragment: %w", err)
	}
	return f, nil
}

// GetFragments loads a batch of fragments by ID, keyed by ID. IDs the
// scope does not own are silently absent from the result.
func (s *Store) GetFragments(ctx context.Context, scope vectorstore.Scope, ids []string) (map[string]*v1.Fragment, error) {
	out := make(map[string]*v1.Fragment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := []interface{}{scope.TenantID, scope.ProjectID, scope.UserID}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fragmentColumns+` FROM fragments
		WHERE tenant_id = ? AND project_id = ? AND user_id = ?
		  AND id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("metastore: get fragments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		f, err := scanFragment(rows)
		if err != nil {
			return nil, fmt.Errorf("metastore: scan fragment: %w", err)
		}
		out[f.ID] = f
	}
	return out, rows.Err()
}

// UpdateFragment rewrites the mutable columns of an existing fragment.
// The scope is enforced in the WHERE clause; zero rows affected means
// the fragment does not exist for this scope.
func (s *Store) UpdateFragment(ctx context.Context, scope vectorstore.Scope, f *v1.Fragment) error {
	f.UpdatedAt = time.Now().UTC()
	tags, err := json.Marshal(emptyIfNilTags(f.Tags))
	if err != nil {
		return fmt.Errorf("metastore: marshal tags: %w", err)
	}
	meta, err := json.Marshal(emptyIfNilMeta(f.Metadata))
	if err != nil {
		return fmt.Errorf("metastore: marshal metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE fragments
		SET content = ?, memory_type = ?, role = ?, session_id = ?,
		    tags = ?, importance = ?, metadata = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND project_id = ? AND user_id = ?`,
		f.Content, string(f.MemoryType), string(f.Role), f.SessionID,
		string(tags), f.Importance, string(meta), formatTime(f.UpdatedAt),
		f.ID, scope.TenantID, scope.ProjectID, scope.UserID)
	if err != nil {
		return fmt.Errorf("metastore: update fragment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("metastore: update fragment: %w", err)
	}
	if n == 0 {
		return v1.ErrNotFound
	}
	return nil
}

// DeleteFragment removes a fragment owned by the scope.
func (s *Store) DeleteFragment(ctx context.Context, scope vectorstore.Scope, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM fragments
		WHERE id = ? AND tenant_id = ? AND project_id = ? AND user_id = ?`,
		id, scope.TenantID, scope.ProjectID, scope.UserID)
	if err != nil {
		return fmt.Errorf("metastore: delete fragment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("metastore: delete fragment: %w", err)
	}
	if n == 0 {
		return v1.ErrNotFound
	}
	return nil
}

// ListFragments returns the scope's fragments newest first, optionally
// filtered by memory type.
func (s *Store) ListFragments(ctx context.Context, scope vectorstore.Scope, memoryType string, limit, offset int) ([]*v1.Fragment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + fragmentColumns + ` FROM fragments
		WHERE tenant_id = ? AND project_id = ? AND user_id = ?`
	args := []interface{}{scope.TenantID, scope.ProjectID, scope.UserID}
	if memoryType != "" {
		query += ` AND memory_type = ?`
		args = append(args, memoryType)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("metastore: list fragments: %w", err)
	}
	defer rows.Close()
	var out []*v1.Fragment
	for rows.Next() {
		f, err := scanFragment(rows)
		if err != nil {
			return nil, fmt.Errorf("metastore: scan fragment: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// IncrementHitCounts bumps the hit counter for the given fragments.
// Used after searches; failures here never fail the search.
func (s *Store) IncrementHitCounts(ctx context.Context, scope vectorstore.Scope, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := []interface{}{scope.TenantID, scope.ProjectID, scope.UserID}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE fragments SET hit_count = hit_count + 1
		WHERE tenant_id = ? AND project_id = ? AND user_id = ?
		  AND id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return fmt.Errorf("metastore: increment hit counts: %w", err)
	}
	return nil
}

// Stats summarizes the scope's fragments and channel messages.
func (s *Store) Stats(ctx context.Context, scope vectorstore.Scope) (*v1.Stats, error) {
	stats := &v1.Stats{ByType: make(map[string]int64)}
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_type, COUNT(*) FROM fragments
		WHERE tenant_id = ? AND project_id = ? AND user_id = ?
		GROUP BY memory_type`,
		scope.TenantID, scope.ProjectID, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("metastore: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int64
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("metastore: stats: %w", err)
		}
		stats.ByType[typ] = count
		stats.TotalFragments += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM channel_messages
		WHERE tenant_id = ? AND project_id = ? AND user_id = ?`,
		scope.TenantID, scope.ProjectID, scope.UserID).Scan(&stats.TotalMessages)
	if err != nil {
		return nil, fmt.Errorf("metastore: stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFragment(row rowScanner) (*v1.Fragment, error) {
	var f v1.Fragment
	var memoryType, role, tags, meta, createdAt, updatedAt string
	err := row.Scan(&f.ID, &f.TenantID, &f.ProjectID, &f.UserID, &f.Content,
		&memoryType, &role, &f.SessionID, &tags, &f.Importance, &meta,
		&f.HitCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	f.MemoryType = v1.MemoryType(memoryType)
	f.Role = v1.Role(role)
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(tags), &f.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &f.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &f, nil
}

func emptyIfNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func emptyIfNilMeta(meta map[string]interface{}) map[string]interface{} {
	if meta == nil {
		return map[string]interface{}{}
	}
	return meta
}
