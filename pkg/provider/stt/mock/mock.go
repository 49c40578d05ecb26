// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to verify that the session controller submits
// the right blobs and to feed controlled transcripts without a live backend.
package mock

import (
	"context"
	"sync"

	"github.com/soapscribe/soapscribe/pkg/capture"
	"github.com/soapscribe/soapscribe/pkg/provider/stt"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Blob is the audio blob passed to Transcribe.
	Blob capture.Blob
}

// Provider is a mock implementation of stt.Provider.
// Zero values cause Transcribe to return "" and a nil error.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string

	// Err, if non-nil, is returned by Transcribe instead of Text.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []Call
}

// Transcribe records the call and returns Text, Err.
func (p *Provider) Transcribe(ctx context.Context, blob capture.Blob) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Blob: blob})
	if p.Err != nil {
		return "", p.Err
	}
	return p.Text, nil
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Compile-time interface check.
var _ stt.Provider = (*Provider)(nil)
