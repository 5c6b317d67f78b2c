package ids

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// MaxKeyLength is the longest a document key may be.
const MaxKeyLength = 254

// keyPattern matches the printable ASCII subset a key may be built from.
// Document keys must be safe to embed directly in a marker (null-terminated,
// 8-byte-aligned) and in a filesystem path component, so control characters,
// '/', and whitespace are excluded.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_:.@()+,=;$!*'%-]+$`)

// ValidateKey reports whether key is an acceptable document key: a
// non-empty, printable string unique inside its collection, short enough to
// fit in a marker's offset_key field.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("document key must not be empty")
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("document key exceeds maximum length of %d bytes", MaxKeyLength)
	}
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("document key %q contains characters outside the printable key alphabet", key)
	}
	return nil
}

// GenerateKey returns a fresh key for a collection that was not given an
// explicit _key. The original generates a numeric key derived from a
// per-collection counter; this engine instead draws a random UUID via
// google/uuid; uniqueness still isn't guaranteed against a forced key
// collision, so the primary collection re-checks on insert.
func GenerateKey() string {
	return uuid.New().String()
}
