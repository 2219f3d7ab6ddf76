// Package repository persists identities and listings. The unique indexes of the
// backing store are the source of truth for username, contact and one-listing-per-owner
// uniqueness; adapters report violations as *DuplicateError.
package repository

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no document matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate matches any *DuplicateError via errors.Is.
	ErrDuplicate = errors.New("duplicate key")
)

// Unique fields reported by DuplicateError.
const (
	FieldUsername     = "username"
	FieldMobile       = "mobile"
	FieldEmail        = "email"
	FieldOwner        = "ownerId"
	FieldPrimaryPhone = "primaryPhone"
)

// DuplicateError reports a unique index violation on Field.
type DuplicateError struct {
	Field string
	Err   error
}

func (e *DuplicateError) Error() string {
	return "duplicate key on " + e.Field
}

func (e *DuplicateError) Unwrap() error { return e.Err }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// DuplicateField returns the violated field of err, or "" if err is not a duplicate.
func DuplicateField(err error) string {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.Field
	}
	return ""
}

// ListFilter narrows a public listing query.
type ListFilter struct {
	Query    string
	Category string
	Limit    int
	Offset   int
}

// Store bundles both collections behind one backend.
type Store interface {
	Users() UserStore
	Businesses() BusinessStore
	Close(ctx context.Context) error
}
