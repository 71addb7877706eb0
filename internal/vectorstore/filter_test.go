package vectorstore

import (
	"errors"
	"testing"
)

func TestApplyScopeFilters(t *testing.T) {
	scopeFilters := map[string]interface{}{
		"tenant_id":  "acme",
		"project_id": "support",
		"user_id":    "u1",
	}

	t.Run("nil user filters returns scope filters", func(t *testing.T) {
		result, err := ApplyScopeFilters(nil, scopeFilters)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result["tenant_id"] != "acme" {
			t.Errorf("expected scope filters, got %v", result)
		}
	})

	t.Run("merges caller filters", func(t *testing.T) {
		result, err := ApplyScopeFilters(map[string]interface{}{"memory_type": "factual"}, scopeFilters)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result["memory_type"] != "factual" || result["user_id"] != "u1" {
			t.Errorf("merge failed: %v", result)
		}
	})

	t.Run("rejects ownership keys in caller filters", func(t *testing.T) {
		for _, key := range []string{"tenant_id", "project_id", "user_id"} {
			_, err := ApplyScopeFilters(map[string]interface{}{key: "evil"}, scopeFilters)
			if !errors.Is(err, ErrScopeFilterInUserFilters) {
				t.Errorf("key %s: expected ErrScopeFilterInUserFilters, got %v", key, err)
			}
		}
	})

	t.Run("scope filters win on conflict", func(t *testing.T) {
		// Scope keys are rejected from callers, but MergeFilters ordering
		// still matters for defense in depth.
		result := MergeFilters(map[string]interface{}{"tenant_id": "evil"}, scopeFilters)
		if result["tenant_id"] != "acme" {
			t.Errorf("scope filter must win, got %v", result["tenant_id"])
		}
	})
}

func TestFilterBuilder(t *testing.T) {
	scope := &Scope{TenantID: "t", ProjectID: "p", UserID: "u"}
	filters := NewFilterBuilder().
		With("memory_type", "episodic").
		WithScope(scope).
		Build()

	if filters["memory_type"] != "episodic" || filters["user_id"] != "u" {
		t.Errorf("unexpected filters: %v", filters)
	}

	if got := NewFilterBuilder().Build(); got != nil {
		t.Errorf("empty builder should return nil, got %v", got)
	}
}
