package vectorstore

import (
	"context"
	"errors"
	"testing"
)

func TestScopeFromContext(t *testing.T) {
	t.Run("missing scope fails closed", func(t *testing.T) {
		_, err := ScopeFromContext(context.Background())
		if !errors.Is(err, ErrMissingScope) {
			t.Errorf("expected ErrMissingScope, got %v", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		scope := &Scope{TenantID: "acme", ProjectID: "support", UserID: "u1"}
		ctx := ContextWithScope(context.Background(), scope)
		got, err := ScopeFromContext(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.TenantID != "acme" || got.ProjectID != "support" || got.UserID != "u1" {
			t.Errorf("scope mismatch: %+v", got)
		}
	})

	t.Run("nil scope treated as missing", func(t *testing.T) {
		ctx := ContextWithScope(context.Background(), nil)
		if _, err := ScopeFromContext(ctx); !errors.Is(err, ErrMissingScope) {
			t.Errorf("expected ErrMissingScope, got %v", err)
		}
	})
}

func TestScopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		wantErr bool
	}{
		{"complete", Scope{TenantID: "t", ProjectID: "p", UserID: "u"}, false},
		{"missing tenant", Scope{ProjectID: "p", UserID: "u"}, true},
		{"missing project", Scope{TenantID: "t", UserID: "u"}, true},
		{"missing user", Scope{TenantID: "t", ProjectID: "p"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScopeOwns(t *testing.T) {
	scope := &Scope{TenantID: "acme", ProjectID: "support", UserID: "u1"}

	owned := map[string]interface{}{"tenant_id": "acme", "project_id": "support", "user_id": "u1"}
	if !scope.Owns(owned) {
		t.Error("expected scope to own matching metadata")
	}

	foreign := map[string]interface{}{"tenant_id": "acme", "project_id": "support", "user_id": "u2"}
	if scope.Owns(foreign) {
		t.Error("scope must not own another user's metadata")
	}

	if scope.Owns(nil) {
		t.Error("scope must not own empty metadata")
	}
}
