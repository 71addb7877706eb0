package vectorstore

import (
	"context"
	"errors"
	"testing"
)

func scopedContext() context.Context {
	return ContextWithScope(context.Background(), &Scope{
		TenantID:  "acme",
		ProjectID: "support",
		UserID:    "u1",
	})
}

func TestScopeIsolationInjectFilter(t *testing.T) {
	iso := NewScopeIsolation()

	t.Run("fails closed without scope", func(t *testing.T) {
		_, err := iso.InjectFilter(context.Background(), nil)
		if !errors.Is(err, ErrMissingScope) {
			t.Errorf("expected ErrMissingScope, got %v", err)
		}
	})

	t.Run("injects all ownership keys", func(t *testing.T) {
		filters, err := iso.InjectFilter(scopedContext(), map[string]interface{}{"memory_type": "factual"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, key := range []string{"tenant_id", "project_id", "user_id"} {
			if _, ok := filters[key]; !ok {
				t.Errorf("missing %s in injected filters", key)
			}
		}
		if filters["memory_type"] != "factual" {
			t.Error("caller filter dropped")
		}
	})

	t.Run("rejects caller ownership keys", func(t *testing.T) {
		for _, key := range []string{"tenant_id", "project_id", "user_id"} {
			_, err := iso.InjectFilter(scopedContext(), map[string]interface{}{key: "someone-else"})
			if !errors.Is(err, ErrScopeFilterInUserFilters) {
				t.Errorf("key %s: expected ErrScopeFilterInUserFilters, got %v", key, err)
			}
		}
	})
}

func TestScopeIsolationInjectMetadata(t *testing.T) {
	iso := NewScopeIsolation()

	t.Run("fails closed without scope", func(t *testing.T) {
		docs := []Document{{ID: "1", Content: "hello"}}
		if err := iso.InjectMetadata(context.Background(), docs); !errors.Is(err, ErrMissingScope) {
			t.Errorf("expected ErrMissingScope, got %v", err)
		}
	})

	t.Run("stamps every document", func(t *testing.T) {
		docs := []Document{
			{ID: "1", Content: "a"},
			{ID: "2", Content: "b", Metadata: map[string]interface{}{"user_id": "spoofed"}},
		}
		if err := iso.InjectMetadata(scopedContext(), docs); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, doc := range docs {
			if doc.Metadata["tenant_id"] != "acme" || doc.Metadata["user_id"] != "u1" {
				t.Errorf("doc %d missing or spoofed ownership: %v", i, doc.Metadata)
			}
		}
	})
}

func TestNoIsolationPassthrough(t *testing.T) {
	iso := NewNoIsolation()
	filters, err := iso.InjectFilter(context.Background(), map[string]interface{}{"a": "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filters["a"] != "b" {
		t.Error("filters should pass through unchanged")
	}
	if err := iso.ValidateScope(context.Background()); err != nil {
		t.Errorf("NoIsolation must not require scope: %v", err)
	}
}

func TestIsolationModeFromString(t *testing.T) {
	if _, err := IsolationModeFromString("scope"); err != nil {
		t.Error(err)
	}
	if _, err := IsolationModeFromString("none"); err != nil {
		t.Error(err)
	}
	if _, err := IsolationModeFromString("bogus"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
