// Package capture defines the interfaces and types for audio capture sessions.
//
// The two primary abstractions are:
//
//   - [Device] — acquires an audio input and returns a live [Session].
//   - [Session] — one recording in progress: it buffers incoming audio chunks in
//     arrival order and finalizes them into exactly one [Blob].
//
// Implementations of these interfaces are provided by adapter packages (the
// in-process [BufferDevice] fed by the HTTP intake, or test doubles in
// capture/mock). The interfaces are intentionally narrow so the session
// controller stays decoupled from how audio actually arrives.
package capture

import (
	"context"
	"errors"
)

// ErrDeviceUnavailable is returned by [Device.Open] when no audio input can be
// acquired (permission denied, no device, or another recording already active).
var ErrDeviceUnavailable = errors.New("capture: audio device unavailable")

// ErrSessionClosed is returned by [Session.Write] and [Session.Finalize] once a
// session has been finalized or discarded.
var ErrSessionClosed = errors.New("capture: session is closed")

// Blob is a finalized audio recording: an opaque byte sequence plus its MIME
// type. A Blob is produced exactly once per capture session and is owned by
// the caller until handed to a transcription provider.
type Blob struct {
	// Data is the encoded audio payload. Never exposed before finalization.
	Data []byte

	// MIME is the media type of Data (e.g., "audio/wav", "audio/webm").
	MIME string
}

// Empty reports whether the blob carries no audio data.
func (b Blob) Empty() bool { return len(b.Data) == 0 }

// Session represents one recording in progress.
//
// Incoming audio is buffered in arrival order; no partial data is exposed
// until [Session.Finalize] produces the single Blob for this session.
// Implementations must be safe for concurrent use.
type Session interface {
	// Write appends a chunk of audio to the session buffer.
	// Returns [ErrSessionClosed] after Finalize or Discard.
	Write(chunk []byte) error

	// Finalize stops the recording and returns the session's single Blob.
	// Calling Finalize again returns [ErrSessionClosed].
	Finalize() (Blob, error)

	// Discard abandons the recording without producing a Blob and releases
	// the device. Safe to call more than once.
	Discard()
}

// Device is the entry point for audio capture. Only one Session may be open
// at a time per device; [Device.Open] while a session is active fails with
// [ErrDeviceUnavailable].
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Open acquires the audio input and returns a live [Session] ready to
	// accept chunks. The supplied ctx governs the acquisition attempt only.
	Open(ctx context.Context) (Session, error)
}
