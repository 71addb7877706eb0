package collections

import (
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	r := NewResolver()

	t.Run("joins sanitized parts", func(t *testing.T) {
		name, err := r.Resolve("Acme Corp", "support-bot")
		if err != nil {
			t.Fatal(err)
		}
		if name != "acme_corp__support_bot" {
			t.Errorf("got %q", name)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a, _ := r.Resolve("tenant", "project")
		b, _ := r.Resolve("tenant", "project")
		if a != b {
			t.Errorf("%q != %q", a, b)
		}
	})

	t.Run("distinct pairs never collide via separator", func(t *testing.T) {
		// "a_b"+"c" and "a"+"b_c" must not map to the same name.
		x, _ := r.Resolve("a_b", "c")
		y, _ := r.Resolve("a", "b_c")
		if x == y {
			t.Errorf("collision: %q", x)
		}
	})

	t.Run("long names truncated with hash suffix", func(t *testing.T) {
		long := strings.Repeat("x", 80)
		name, err := r.Resolve(long, "project")
		if err != nil {
			t.Fatal(err)
		}
		if len(name) != 63 {
			t.Errorf("expected 63 chars, got %d (%q)", len(name), name)
		}
		if name[54] != '_' {
			t.Errorf("expected hash separator at index 54: %q", name)
		}

		other, _ := r.Resolve(long, "project2")
		if name == other {
			t.Error("different projects must get different truncated names")
		}

		again, _ := r.Resolve(long, "project")
		if name != again {
			t.Error("truncation must be stable")
		}
	})

	t.Run("empty ids rejected", func(t *testing.T) {
		if _, err := r.Resolve("", "p"); err == nil {
			t.Error("empty tenant should error")
		}
		if _, err := r.Resolve("t", ""); err == nil {
			t.Error("empty project should error")
		}
	})
}

func TestSanitize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Simple", "simple"},
		{"with-dash", "with_dash"},
		{"dots.and:colons", "dots_and_colons"},
		{"already_ok_123", "already_ok_123"},
		{"Ünïcode", "_n_code"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
