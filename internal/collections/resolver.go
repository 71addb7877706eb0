// Package collections derives deterministic vector collection names from
// ownership coordinates.
package collections

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const (
	// maxNameLength is the backend limit on collection names.
	maxNameLength = 63

	// truncatedPrefixLength leaves room for "_" plus an 8-char hash suffix
	// when a name exceeds maxNameLength.
	truncatedPrefixLength = 54

	hashSuffixLength = 8

	separator = "__"
)

// unsafeChars matches everything outside the collection-safe alphabet.
var unsafeChars = regexp.MustCompile(`[^a-z0-9_]`)

// Resolver maps (tenant, project) pairs to collection names.
//
// The mapping is pure and deterministic: the same inputs always produce the
// same name, so no registry or coordination is needed. User identity never
// participates in the name; user isolation is metadata filtering inside the
// collection.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the collection name for a tenant and project.
//
// Both identifiers are sanitized to [a-z0-9_] and joined with "__". Names
// longer than 63 characters are truncated to 54 characters plus "_" and the
// first 8 hex characters of the SHA-256 of the full name, keeping the result
// unique and stable.
func (r *Resolver) Resolve(tenantID, projectID string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenant id required")
	}
	if projectID == "" {
		return "", fmt.Errorf("project id required")
	}

	name := Sanitize(tenantID) + separator + Sanitize(projectID)
	if len(name) <= maxNameLength {
		return name, nil
	}

	sum := sha256.Sum256([]byte(name))
	suffix := hex.EncodeToString(sum[:])[:hashSuffixLength]
	return name[:truncatedPrefixLength] + "_" + suffix, nil
}

// Sanitize lowercases an identifier and replaces every character outside
// [a-z0-9_] with an underscore.
func Sanitize(id string) string {
	return unsafeChars.ReplaceAllString(strings.ToLower(id), "_")
}
