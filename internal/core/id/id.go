// Package id provides the identifiers of ledger entries, movements and
// documents. New ids are UUIDv7 so they sort by creation time.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is a UUID.
type ID = uuid.UUID

// New returns a UUIDv7, falling back to v4 if the clock source fails.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Derive returns the name-based id of name within namespace. The same inputs
// always give the same id.
func Derive(namespace ID, name string) ID {
	return uuid.NewSHA1(namespace, []byte(name))
}

// Parse parses a canonical UUID string.
func Parse(s string) (ID, error) {
	return uuid.Parse(strings.TrimSpace(s))
}

// ParseOptional returns nil for an empty string.
func ParseOptional(s string) (*ID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseList parses every element and names the first bad one.
func ParseList(ss []string) ([]ID, error) {
	out := make([]ID, 0, len(ss))
	for i, s := range ss {
		v, err := Parse(s)
		if err != nil {
			return nil, fmt.Errorf("id %d (%q): %w", i, s, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// MustParse panics on malformed input. Tests and constants only.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero id.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether v is the zero id.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
