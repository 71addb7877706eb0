package vectorstore

import (
	"context"
	"fmt"
)

// IsolationMode defines how ownership isolation is enforced in vector stores.
//
// Security: all implementations must enforce fail-closed behavior.
type IsolationMode interface {
	// InjectFilter adds scope filtering to query filters.
	// Must fail with ErrMissingScope if scope context is absent.
	InjectFilter(ctx context.Context, filters map[string]interface{}) (map[string]interface{}, error)

	// InjectMetadata adds scope metadata to documents before storage.
	// Must fail with ErrMissingScope if scope context is absent.
	InjectMetadata(ctx context.Context, docs []Document) error

	// ValidateScope checks that scope context is present and valid.
	ValidateScope(ctx context.Context) error

	// Mode returns the isolation mode name for logging.
	Mode() string
}

// ScopeIsolation implements IsolationMode using metadata filtering.
//
// All documents in a collection carry tenant_id, project_id, user_id in
// metadata, every query is filtered by the scope from ctx, and a missing
// scope is an error (fail closed). Ownership injection overwrites any
// caller-supplied values for those keys.
type ScopeIsolation struct{}

// NewScopeIsolation creates a new ScopeIsolation mode.
func NewScopeIsolation() *ScopeIsolation {
	return &ScopeIsolation{}
}

// InjectFilter adds scope filters to existing query filters. Caller
// filters containing ownership keys are rejected with
// ErrScopeFilterInUserFilters rather than silently overridden.
func (p *ScopeIsolation) InjectFilter(ctx context.Context, filters map[string]interface{}) (map[string]interface{}, error) {
	scope, err := ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return ApplyScopeFilters(filters, scope.Filter())
}

// InjectMetadata adds scope metadata to all documents.
func (p *ScopeIsolation) InjectMetadata(ctx context.Context, docs []Document) error {
	scope, err := ScopeFromContext(ctx)
	if err != nil {
		return err
	}
	if err := scope.Validate(); err != nil {
		return err
	}

	scopeMeta := scope.Metadata()
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]interface{})
		}
		// Overwrites caller values for ownership keys.
		for k, v := range scopeMeta {
			docs[i].Metadata[k] = v
		}
	}
	return nil
}

// ValidateScope checks scope context is present and valid.
func (p *ScopeIsolation) ValidateScope(ctx context.Context) error {
	scope, err := ScopeFromContext(ctx)
	if err != nil {
		return err
	}
	return scope.Validate()
}

// Mode returns "scope" for this isolation mode.
func (p *ScopeIsolation) Mode() string {
	return "scope"
}

// NoIsolation provides no ownership isolation - for testing only.
//
// WARNING: this mode provides no security guarantees.
type NoIsolation struct{}

// NewNoIsolation creates a new NoIsolation mode (testing only).
func NewNoIsolation() *NoIsolation {
	return &NoIsolation{}
}

// InjectFilter passes through filters unchanged.
func (n *NoIsolation) InjectFilter(ctx context.Context, filters map[string]interface{}) (map[string]interface{}, error) {
	return filters, nil
}

// InjectMetadata is a no-op.
func (n *NoIsolation) InjectMetadata(ctx context.Context, docs []Document) error {
	return nil
}

// ValidateScope always succeeds.
func (n *NoIsolation) ValidateScope(ctx context.Context) error {
	return nil
}

// Mode returns "none" for this isolation mode.
func (n *NoIsolation) Mode() string {
	return "none"
}

var (
	_ IsolationMode = (*ScopeIsolation)(nil)
	_ IsolationMode = (*NoIsolation)(nil)
)

// IsolationModeFromString creates an IsolationMode from a string name.
func IsolationModeFromString(mode string) (IsolationMode, error) {
	switch mode {
	case "scope":
		return NewScopeIsolation(), nil
	case "none":
		return NewNoIsolation(), nil
	default:
		return nil, fmt.Errorf("unknown isolation mode: %s", mode)
	}
}
