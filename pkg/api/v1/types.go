package v1

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MemoryType classifies how a fragment was produced and how it should
// be weighted at recall time.
type MemoryType string

const (
	// MemoryTypeFactual is a durable statement about the user or world.
	MemoryTypeFactual MemoryType = "factual"
	// MemoryTypePreference records how the user wants things done.
	MemoryTypePreference MemoryType = "preference"
	// MemoryTypeEpisodic records something that happened.
	MemoryTypeEpisodic MemoryType = "episodic"
	// MemoryTypeSession is conversational context; role and session_id
	// are meaningful for this type.
	MemoryTypeSession MemoryType = "session"
)

// Role identifies the author of a session fragment or channel message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Validation bounds for fragment fields.
const (
	MaxContentLength = 10000
	MaxTags          = 20
	MaxTagLength     = 64
	MaxChannelLength = 128
)

// DefaultImportance is the fragment weight used when a request omits
// the importance field. An explicit 0 is a valid, storable weight.
const DefaultImportance = 0.5

// Fragment is one stored memory. The same record lives in the metadata
// store (full row) and the vector store (content plus ownership payload).
type Fragment struct {
	ID         string                 `json:"id"`
	TenantID   string                 `json:"tenant_id"`
	ProjectID  string                 `json:"project_id"`
	UserID     string                 `json:"user_id"`
	Content    string                 `json:"content"`
	MemoryType MemoryType             `json:"memory_type"`
	Role       Role                   `json:"role,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	Importance float64                `json:"importance"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	HitCount   int64                  `json:"hit_count"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// SearchHit pairs a fragment with its similarity score.
type SearchHit struct {
	Fragment Fragment `json:"fragment"`
	Score    float32  `json:"score"`
}

// ChannelMessage is one entry in an ordered channel history.
type ChannelMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	TenantID  string    `json:"tenant_id"`
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// Tenant is a top-level isolation boundary.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Project scopes fragments and channels under a tenant.
type Project struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKey is the stored form of a credential. The plaintext key is shown
// once at creation; only its SHA-256 hash persists.
type APIKey struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes a scope's stored fragments.
type Stats struct {
	TotalFragments int64            `json:"total_fragments"`
	ByType         map[string]int64 `json:"by_type"`
	TotalMessages  int64            `json:"total_messages"`
}

// ValidMemoryType reports whether t is a recognized memory type.
func ValidMemoryType(t MemoryType) bool {
	switch t {
	case MemoryTypeFactual, MemoryTypePreference, MemoryTypeEpisodic, MemoryTypeSession:
		return true
	}
	return false
}

// ValidRole reports whether r is a recognized role. Empty is allowed
// for non-session fragments.
func ValidRole(r Role) bool {
	switch r {
	case "", RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ValidateFragment checks user-controlled fragment fields against the
// documented bounds. Ownership fields are validated by the scope layer.
func ValidateFragment(f *Fragment) error {
	if strings.TrimSpace(f.Content) == "" {
		return NewValidationError("content", "must not be empty")
	}
	if utf8.RuneCountInString(f.Content) > MaxContentLength {
		return NewValidationError("content", "exceeds maximum length")
	}
	if !ValidMemoryType(f.MemoryType) {
		return NewValidationError("memory_type", "unknown type")
	}
	if !ValidRole(f.Role) {
		return NewValidationError("role", "unknown role")
	}
	if len(f.Tags) > MaxTags {
		return NewValidationError("tags", "too many tags")
	}
	for _, tag := range f.Tags {
		if tag == "" || utf8.RuneCountInString(tag) > MaxTagLength {
			return NewValidationError("tags", "tag must be 1-64 characters")
		}
	}
	if f.Importance < 0 || f.Importance > 1 {
		return NewValidationError("importance", "must be between 0 and 1")
	}
	return nil
}
