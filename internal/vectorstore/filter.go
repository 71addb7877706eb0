package vectorstore

import "errors"

// scopeFilterKeys are keys that cannot appear in caller filters (security).
var scopeFilterKeys = []string{"tenant_id", "project_id", "user_id"}

// ErrScopeFilterInUserFilters indicates a caller tried to inject ownership fields.
var ErrScopeFilterInUserFilters = errors.New("caller filters cannot contain ownership fields")

// ApplyScopeFilters merges caller filters with scope filters, enforcing security.
//
// Scope filters (from the isolation layer) always win, and caller filters
// containing tenant_id, project_id, or user_id are rejected outright.
func ApplyScopeFilters(userFilters, scopeFilters map[string]interface{}) (map[string]interface{}, error) {
	if userFilters == nil && scopeFilters == nil {
		return nil, nil
	}
	if userFilters == nil {
		return scopeFilters, nil
	}

	for _, key := range scopeFilterKeys {
		if _, exists := userFilters[key]; exists {
			return nil, ErrScopeFilterInUserFilters
		}
	}

	if scopeFilters == nil {
		result := make(map[string]interface{}, len(userFilters))
		for k, v := range userFilters {
			result[k] = v
		}
		return result, nil
	}

	// Merge: caller filters first, then scope filters (scope wins).
	result := make(map[string]interface{}, len(userFilters)+len(scopeFilters))
	for k, v := range userFilters {
		result[k] = v
	}
	for k, v := range scopeFilters {
		result[k] = v
	}
	return result, nil
}

// MergeFilters combines two filter maps, with override taking precedence.
func MergeFilters(base, override map[string]interface{}) map[string]interface{} {
	if base == nil && override == nil {
		return nil
	}
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	result := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		result[k] = v
	}
	return result
}

// FilterBuilder provides a fluent interface for building query filters.
type FilterBuilder struct {
	filters map[string]interface{}
}

// NewFilterBuilder creates a new FilterBuilder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{filters: make(map[string]interface{})}
}

// With adds a key-value pair to the filter.
func (b *FilterBuilder) With(key string, value interface{}) *FilterBuilder {
	b.filters[key] = value
	return b
}

// WithScope adds ownership filters from a Scope.
func (b *FilterBuilder) WithScope(scope *Scope) *FilterBuilder {
	if scope == nil {
		return b
	}
	for k, v := range scope.Filter() {
		b.filters[k] = v
	}
	return b
}

// WithMap merges an existing filter map.
func (b *FilterBuilder) WithMap(m map[string]interface{}) *FilterBuilder {
	for k, v := range m {
		b.filters[k] = v
	}
	return b
}

// Build returns the constructed filter map.
func (b *FilterBuilder) Build() map[string]interface{} {
	if len(b.filters) == 0 {
		return nil
	}
	return b.filters
}
