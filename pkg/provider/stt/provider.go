// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription service (the OpenAI audio API or a
// local whisper-server) and exposes a uniform batch interface: a finalized
// audio blob goes in, best-effort plain text comes out. The design is
// record-then-transcribe — providers receive complete recordings, never
// mid-stream audio.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/soapscribe/soapscribe/pkg/capture"
)

// Provider is the abstraction over any speech-to-text backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
type Provider interface {
	// Transcribe submits a finalized audio blob and returns the plain-text
	// transcript. No language or confidence metadata is guaranteed.
	//
	// Returns an error on upstream failure or empty/corrupt input; callers
	// must leave any previously held transcript untouched on failure.
	Transcribe(ctx context.Context, blob capture.Blob) (string, error)
}
