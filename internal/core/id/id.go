// Package id provides UUIDv7 identifiers for catalogs, movements and lots.
package id

import (
	"github.com/google/uuid"
)

// ID is the identifier type shared by all entities.
type ID = uuid.UUID

// New generates a UUIDv7. The embedded timestamp keeps freshly inserted
// rows adjacent in the primary-key B-tree, which matters for the
// append-heavy movements table.
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the entropy source does
		return uuid.New()
	}
	return id
}

// Parse converts a string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts a string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero-value ID.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether id is the zero value.
func IsNil(id ID) bool {
	return id == uuid.Nil
}
