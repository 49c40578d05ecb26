package session

// State is the single explicit phase of an encounter session. Exactly one
// state is active at a time; there are no independent in-progress flags to
// fall out of sync.
type State string

const (
	// StateIdle means no encounter is in progress. Recording may start.
	StateIdle State = "idle"

	// StateRecording means the capture session is open and buffering audio.
	StateRecording State = "recording"

	// StateTranscribing means the finalized recording is at the speech-to-text
	// gateway. The transcript is not editable until this resolves.
	StateTranscribing State = "transcribing"

	// StateReady means a transcript is present and editable, and generation
	// may be requested.
	StateReady State = "ready"

	// StateGenerating means the transcript is at the note generation gateway.
	StateGenerating State = "generating"

	// StateReviewing means a note body is present for clinician review and
	// editing. Saving may be requested.
	StateReviewing State = "reviewing"

	// StateSaving means the reviewed note is at the record store.
	StateSaving State = "saving"
)

// Snapshot is a point-in-time copy of the observable session state. It is a
// value: mutating it has no effect on the controller.
type Snapshot struct {
	// State is the current phase.
	State State `json:"state"`

	// Owner is the clinician identity this session belongs to. Empty for an
	// unauthenticated local session.
	Owner string `json:"owner,omitempty"`

	// Transcript is the current transcript text.
	Transcript string `json:"transcript"`

	// Template is the current instruction template. Never empty.
	Template string `json:"template"`

	// NoteBody is the generated or opened note body under review.
	NoteBody string `json:"note_body"`

	// SubjectName is the patient display name, present when reviewing a
	// persisted record or after a save.
	SubjectName string `json:"subject_name,omitempty"`

	// RecordID is the persisted record backing the review, or 0 when the note
	// has not been saved yet.
	RecordID int64 `json:"record_id,omitempty"`

	// Saved reports whether the note under review is backed by a persisted
	// record; save then updates that record instead of creating a new one.
	Saved bool `json:"saved"`

	// LastError is the most recent surfaced failure message, cleared by the
	// next successful operation.
	LastError string `json:"last_error,omitempty"`
}
