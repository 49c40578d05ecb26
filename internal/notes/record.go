// Package notes defines the persisted clinical note model and the Store
// interface over it.
//
// A note records a single generated-and-reviewed SOAP document: who owns it
// (the authenticated clinician identity), which patient it concerns, the note
// body, and whether the clinician has approved it. Stores are scoped by owner:
// every read and mutation names the owner identity, and records belonging to
// other owners are invisible to it.
//
// Implementations must be safe for concurrent use.
package notes

import "time"

// Record is a persisted clinical note.
type Record struct {
	// ID is the store-assigned unique identifier. Zero means not yet persisted.
	ID int64

	// OwnerIdentity is the authenticated clinician identity (an email address)
	// that owns this record. Never empty for a persisted record.
	OwnerIdentity string

	// SubjectName is the patient display name attached at save time.
	SubjectName string

	// Body is the note text as last saved, including any clinician edits.
	Body string

	// CreatedAt is when the record was first persisted.
	CreatedAt time.Time

	// Approved marks the record as clinician-approved. Body and subject edits
	// never change the flag; it moves only when an update names it, so a
	// clinician can also retract an approval explicitly.
	Approved bool
}

// Update is a partial modification of an existing record. Nil fields are left
// unchanged.
type Update struct {
	// SubjectName replaces the patient display name when non-nil.
	SubjectName *string

	// Body replaces the note text when non-nil.
	Body *string

	// Approved sets the approval flag when non-nil. Setting it to true on an
	// already-approved record is a no-op, not an error.
	Approved *bool
}

// Empty reports whether the update would change nothing.
func (u Update) Empty() bool {
	return u.SubjectName == nil && u.Body == nil && u.Approved == nil
}
