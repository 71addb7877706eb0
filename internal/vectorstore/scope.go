package vectorstore

import (
	"context"
	"errors"
)

// Scope isolation errors - fail closed security model.
var (
	// ErrMissingScope is returned when ownership scope is missing from context.
	// This triggers "fail closed" behavior - no empty results, just errors.
	ErrMissingScope = errors.New("ownership scope missing from context")

	// ErrInvalidScope is returned when a scope identifier is invalid.
	ErrInvalidScope = errors.New("invalid ownership scope")
)

// scopeContextKey is the context key for Scope.
type scopeContextKey struct{}

// Scope holds the ownership coordinates for filtering and isolation.
//
// All three fields are required:
//   - TenantID: organization identifier
//   - ProjectID: project within the tenant
//   - UserID: end user within the project
//
// Tenant and project select the collection; user isolation is enforced via
// metadata filtering inside the collection.
type Scope struct {
	TenantID  string
	ProjectID string
	UserID    string
}

// Validate checks that all scope fields are present.
func (s *Scope) Validate() error {
	if s.TenantID == "" || s.ProjectID == "" || s.UserID == "" {
		return ErrInvalidScope
	}
	return nil
}

// ContextWithScope adds a Scope to a context.
func ContextWithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the Scope from a context.
// Returns ErrMissingScope if not present - fail closed.
func ScopeFromContext(ctx context.Context) (*Scope, error) {
	val := ctx.Value(scopeContextKey{})
	if val == nil {
		return nil, ErrMissingScope
	}
	scope, ok := val.(*Scope)
	if !ok || scope == nil {
		return nil, ErrMissingScope
	}
	return scope, nil
}

// HasScope checks if a Scope is present in context without error.
func HasScope(ctx context.Context) bool {
	_, err := ScopeFromContext(ctx)
	return err == nil
}

// Metadata returns the scope as a metadata map for document storage.
func (s *Scope) Metadata() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":  s.TenantID,
		"project_id": s.ProjectID,
		"user_id":    s.UserID,
	}
}

// Filter returns filter conditions matching this scope.
func (s *Scope) Filter() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":  s.TenantID,
		"project_id": s.ProjectID,
		"user_id":    s.UserID,
	}
}

// Owns reports whether stored document metadata belongs to this scope.
// Used to re-check ownership on direct-by-ID reads.
func (s *Scope) Owns(metadata map[string]interface{}) bool {
	match := func(key, want string) bool {
		got, ok := metadata[key].(string)
		return ok && got == want
	}
	return match("tenant_id", s.TenantID) &&
		match("project_id", s.ProjectID) &&
		match("user_id", s.UserID)
}
