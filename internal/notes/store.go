package notes

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned when no record with the given ID exists in the
	// caller's owner scope. A record owned by someone else is indistinguishable
	// from one that does not exist.
	ErrNotFound = errors.New("notes: record not found")

	// ErrMissingOwner is returned when an operation is attempted with an empty
	// owner identity.
	ErrMissingOwner = errors.New("notes: owner identity must not be empty")

	// ErrMissingSubject is returned by Create when the record has no subject
	// name.
	ErrMissingSubject = errors.New("notes: subject name must not be empty")
)

// Store is the persistence abstraction for clinical note records.
//
// All operations are owner-scoped: owner is the authenticated clinician
// identity, and no operation may observe or modify another owner's records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create persists a new record for owner with the given subject name and
	// body, and returns the stored record with ID and CreatedAt assigned.
	// The new record starts unapproved regardless of rec.Approved.
	Create(ctx context.Context, owner string, subjectName, body string) (Record, error)

	// Get returns the record with the given ID in owner's scope.
	// Returns ErrNotFound when it does not exist or belongs to another owner.
	Get(ctx context.Context, owner string, id int64) (Record, error)

	// ListByOwner returns all of owner's records ordered newest first.
	// Returns an empty (non-nil) slice when the owner has no records.
	ListByOwner(ctx context.Context, owner string) ([]Record, error)

	// Update applies upd to the record with the given ID in owner's scope and
	// returns the updated record. An empty update returns the record unchanged.
	// Returns ErrNotFound when the record does not exist in owner's scope.
	Update(ctx context.Context, owner string, id int64, upd Update) (Record, error)

	// Delete removes the record with the given ID from owner's scope.
	// Returns ErrNotFound when the record does not exist in owner's scope.
	Delete(ctx context.Context, owner string, id int64) error
}
