package server

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/soapscribe/soapscribe/internal/notes"
)

// transcriptRequest is the body for PUT /api/session/transcript. An empty
// transcript is legal and clears the current text.
type transcriptRequest struct {
	Transcript string `json:"transcript"`
}

// templateRequest is the body for PUT /api/session/template. An empty
// template restores the default.
type templateRequest struct {
	Template string `json:"template"`
}

// noteBodyRequest is the body for PUT /api/session/note.
type noteBodyRequest struct {
	Body string `json:"body"`
}

// saveRequest is the body for POST /api/session/save. SubjectName is required
// for new records; the session controller enforces that, since only it knows
// whether the note under review is fresh or was opened from the store.
type saveRequest struct {
	SubjectName string `json:"subject_name"`
	Approve     bool   `json:"approve"`
}

// Validate implements request validation for saveRequest.
func (r saveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SubjectName, validation.Length(0, 200)),
	)
}

// patchNoteRequest is the body for PATCH /api/notes/{id}. Absent fields keep
// their stored values.
type patchNoteRequest struct {
	SubjectName *string `json:"subject_name"`
	Body        *string `json:"body"`
	Approved    *bool   `json:"approved"`
}

// Validate implements request validation for patchNoteRequest.
func (r patchNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SubjectName, validation.NilOrNotEmpty, validation.Length(1, 200)),
	)
}

// update converts the patch body into a store update.
func (r patchNoteRequest) update() notes.Update {
	return notes.Update{
		SubjectName: r.SubjectName,
		Body:        r.Body,
		Approved:    r.Approved,
	}
}
