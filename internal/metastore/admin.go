package metastore

import (
	"context"
	crand "crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

// APIKeyPrefix marks plaintext keys issued by this store.
const APIKeyPrefix = "eg_"

// CreateTenant registers a new tenant name.
func (s *Store) CreateTenant(ctx context.Context, name string) (*v1.Tenant, error) {
	t := &v1.Tenant{
		ID:        s.newID(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, created_at) VALUES (?, ?, ?)`,
		t.ID, t.Name, formatTime(t.CreatedAt))
	if isUniqueViolation(err) {
		return nil, v1.ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: create tenant: %w", err)
	}
	return t, nil
}

// GetTenant looks a tenant up by name.
func (s *Store) GetTenant(ctx context.Context, name string) (*v1.Tenant, error) {
	var t v1.Tenant
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM tenants WHERE name = ?`, name).
		Scan(&t.ID, &t.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, v1.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: get tenant: %w", err)
	}
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

// ListTenants returns all tenants ordered by name.
func (s *Store) ListTenants(ctx context.Context) ([]*v1.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM tenants ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("metastore: list tenants: %w", err)
	}
	defer rows.Close()
	var out []*v1.Tenant
	for rows.Next() {
		var t v1.Tenant
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("metastore: scan tenant: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// DeleteTenant removes a tenant with everything under it: projects,
// API keys, fragments, channel messages, and tombstones. It returns
// the names of the deleted projects so the caller can drop the
// matching vector collections.
func (s *Store) DeleteTenant(ctx context.Context, name string) ([]string, error) {
	t, err := s.GetTenant(ctx, name)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("metastore: delete tenant: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT name FROM projects WHERE tenant_id = ?`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("metastore: delete tenant: %w", err)
	}
	var projects []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("metastore: delete tenant: %w", err)
		}
		projects = append(projects, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, stmt := range []string{
		`DELETE FROM fragments WHERE tenant_id = ?`,
		`DELETE FROM channel_messages WHERE tenant_id = ?`,
		`DELETE FROM api_keys WHERE tenant_id = ?`,
		`DELETE FROM vector_tombstones WHERE tenant_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, name); err != nil {
			return nil, fmt.Errorf("metastore: delete tenant: %w", err)
		}
	}
	// Projects cascade from the tenant row.
	if _, err := tx.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, t.ID); err != nil {
		return nil, fmt.Errorf("metastore: delete tenant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("metastore: delete tenant: %w", err)
	}
	return projects, nil
}

// CreateProject registers a project under an existing tenant.
func (s *Store) CreateProject(ctx context.Context, tenantName, name string) (*v1.Project, error) {
	t, err := s.GetTenant(ctx, tenantName)
	if err != nil {
		return nil, err
	}
	p := &v1.Project{
		ID:        s.newID(),
		TenantID:  t.ID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, tenant_id, name, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.TenantID, p.Name, formatTime(p.CreatedAt))
	if isUniqueViolation(err) {
		return nil, v1.ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: create project: %w", err)
	}
	return p, nil
}

// GetProject looks a project up by tenant and project name.
func (s *Store) GetProject(ctx context.Context, tenantName, name string) (*v1.Project, error) {
	t, err := s.GetTenant(ctx, tenantName)
	if err != nil {
		return nil, err
	}
	var p v1.Project
	var createdAt string
	err = s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, created_at FROM projects
		WHERE tenant_id = ? AND name = ?`, t.ID, name).
		Scan(&p.ID, &p.TenantID, &p.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, v1.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: get project: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// ListProjects returns a tenant's projects ordered by name.
func (s *Store) ListProjects(ctx context.Context, tenantName string) ([]*v1.Project, error) {
	t, err := s.GetTenant(ctx, tenantName)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, created_at FROM projects
		WHERE tenant_id = ? ORDER BY name`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("metastore: list projects: %w", err)
	}
	defer rows.Close()
	var out []*v1.Project
	for rows.Next() {
		var p v1.Project
		var createdAt string
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("metastore: scan project: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project and all rows scoped to it. The
// caller is responsible for dropping the matching vector collection.
func (s *Store) DeleteProject(ctx context.Context, tenantName, name string) error {
	p, err := s.GetProject(ctx, tenantName, name)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metastore: delete project: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM fragments WHERE tenant_id = ? AND project_id = ?`,
		`DELETE FROM channel_messages WHERE tenant_id = ? AND project_id = ?`,
		`DELETE FROM api_keys WHERE tenant_id = ? AND project_id = ?`,
		`DELETE FROM vector_tombstones WHERE tenant_id = ? AND project_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, tenantName, name); err != nil {
			return fmt.Errorf("metastore: delete project: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, p.ID); err != nil {
		return fmt.Errorf("metastore: delete project: %w", err)
	}
	return tx.Commit()
}

// CreateAPIKey mints a credential bound to one scope. The plaintext
// key is returned exactly once; only its SHA-256 hash is stored.
func (s *Store) CreateAPIKey(ctx context.Context, tenantName, projectName, userID, keyName string) (string, *v1.APIKey, error) {
	if _, err := s.GetProject(ctx, tenantName, projectName); err != nil {
		return "", nil, err
	}

	raw := make([]byte, 32)
	if _, err := crand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("metastore: generate key: %w", err)
	}
	plaintext := APIKeyPrefix + hex.EncodeToString(raw)

	k := &v1.APIKey{
		ID:        s.newID(),
		TenantID:  tenantName,
		ProjectID: projectName,
		UserID:    userID,
		Name:      keyName,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, tenant_id, project_id, user_id, name, revoked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		k.ID, HashAPIKey(plaintext), k.TenantID, k.ProjectID, k.UserID, k.Name,
		formatTime(k.CreatedAt))
	if err != nil {
		return "", nil, fmt.Errorf("metastore: create api key: %w", err)
	}
	return plaintext, k, nil
}

// VerifyAPIKey resolves a plaintext key to its scope. Unknown and
// revoked keys both report ErrUnauthorized.
func (s *Store) VerifyAPIKey(ctx context.Context, plaintext string) (vectorstore.Scope, error) {
	var scope vectorstore.Scope
	var revoked int
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, project_id, user_id, revoked FROM api_keys WHERE key_hash = ?`,
		HashAPIKey(plaintext)).
		Scan(&scope.TenantID, &scope.ProjectID, &scope.UserID, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return vectorstore.Scope{}, v1.ErrUnauthorized
	}
	if err != nil {
		return vectorstore.Scope{}, fmt.Errorf("metastore: verify api key: %w", err)
	}
	if revoked != 0 {
		return vectorstore.Scope{}, v1.ErrUnauthorized
	}
	return scope, nil
}

// RevokeAPIKey disables a key by ID. Revocation is permanent.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("metastore: revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("metastore: revoke api key: %w", err)
	}
	if n == 0 {
		return v1.ErrNotFound
	}
	return nil
}

// ListAPIKeys returns a tenant's keys, newest first. Hashes are never
// exposed.
func (s *Store) ListAPIKeys(ctx context.Context, tenantName string) ([]*v1.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, project_id, user_id, name, revoked, created_at
		FROM api_keys WHERE tenant_id = ? ORDER BY created_at DESC`, tenantName)
	if err != nil {
		return nil, fmt.Errorf("metastore: list api keys: %w", err)
	}
	defer rows.Close()
	var out []*v1.APIKey
	for rows.Next() {
		var k v1.APIKey
		var revoked int
		var createdAt string
		err := rows.Scan(&k.ID, &k.TenantID, &k.ProjectID, &k.UserID, &k.Name, &revoked, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("metastore: scan api key: %w", err)
		}
		k.Revoked = revoked != 0
		k.CreatedAt = parseTime(createdAt)
		out = append(out, &k)
	}
	return out, rows.Err()
}

// HashAPIKey returns the stored form of a plaintext key.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
