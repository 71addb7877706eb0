package logging

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", *NewDefaultConfig(), false},
		{"console format", Config{Level: "debug", Format: "console"}, false},
		{"bad level", Config{Level: "verbose", Format: "json"}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewLoggerLevelGating(t *testing.T) {
	logger, err := NewLogger(&Config{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled at warn level")
	}
	if !logger.Enabled(zapcore.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}
}

func TestScopeRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := ScopeFromContext(ctx); got != nil {
		t.Fatalf("expected nil scope, got %+v", got)
	}

	scope := &Scope{TenantID: "acme", ProjectID: "support", UserID: "u1"}
	ctx = WithScope(ctx, scope)
	got := ScopeFromContext(ctx)
	if got == nil || got.TenantID != "acme" || got.ProjectID != "support" || got.UserID != "u1" {
		t.Errorf("scope round trip failed: %+v", got)
	}

	fields := ContextFields(ctx)
	if len(fields) < 3 {
		t.Errorf("expected scope fields, got %d", len(fields))
	}
}

func TestFromContextDefaultsToNop(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("expected nop logger, got nil")
	}
	// Must not panic.
	logger.Info(context.Background(), "noop")
}
