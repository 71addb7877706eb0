package v1

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFragment() *Fragment {
	return &Fragment{
		Content:    "the user prefers short answers",
		MemoryType: MemoryTypePreference,
		Importance: 0.5,
		Tags:       []string{"style"},
	}
}

func TestValidateFragment(t *testing.T) {
	require.NoError(t, ValidateFragment(validFragment()))

	tests := []struct {
		name   string
		mutate func(*Fragment)
		field  string
	}{
		{"blank content", func(f *Fragment) { f.Content = "   \n\t" }, "content"},
		{"content too long", func(f *Fragment) { f.Content = strings.Repeat("x", MaxContentLength+1) }, "content"},
		{"unknown type", func(f *Fragment) { f.MemoryType = "opinions" }, "memory_type"},
		{"unknown role", func(f *Fragment) { f.Role = "narrator" }, "role"},
		{"too many tags", func(f *Fragment) { f.Tags = make([]string, MaxTags+1) }, "tags"},
		{"tag too long", func(f *Fragment) { f.Tags = []string{strings.Repeat("t", MaxTagLength+1)} }, "tags"},
		{"importance below zero", func(f *Fragment) { f.Importance = -0.1 }, "importance"},
		{"importance above one", func(f *Fragment) { f.Importance = 1.1 }, "importance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFragment()
			tt.mutate(f)
			err := ValidateFragment(f)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidMemoryType(t *testing.T) {
	for _, typ := range []MemoryType{MemoryTypeFactual, MemoryTypePreference, MemoryTypeEpisodic, MemoryTypeSession} {
		assert.True(t, ValidMemoryType(typ), string(typ))
	}
	assert.False(t, ValidMemoryType(""))
	assert.False(t, ValidMemoryType("conversation"))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(""))
	assert.True(t, ValidRole(RoleAssistant))
	assert.False(t, ValidRole("tool"))
}
