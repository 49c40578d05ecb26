// Package mock provides test doubles for the capture.Device and
// capture.Session interfaces.
//
// Use Device in unit tests to verify that the session controller opens and
// finalizes recordings correctly without a real audio transport.
// All fields are safe to set before calling any method.
package mock

import (
	"context"
	"sync"

	"github.com/soapscribe/soapscribe/pkg/capture"
)

// Device is a mock implementation of capture.Device.
// Zero values cause Open to return a fresh recording Session.
type Device struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open instead of a session.
	OpenErr error

	// OpenCount is the number of times Open was called.
	OpenCount int

	// Sessions records every session handed out, in order.
	Sessions []*Session
}

// Open implements capture.Device.
func (d *Device) Open(_ context.Context) (capture.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCount++
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := &Session{}
	d.Sessions = append(d.Sessions, s)
	return s, nil
}

// Session is a mock implementation of capture.Session.
type Session struct {
	mu sync.Mutex

	// Blob is returned by Finalize.
	Blob capture.Blob

	// FinalizeErr, if non-nil, is returned by Finalize.
	FinalizeErr error

	// WriteErr, if non-nil, is returned by Write.
	WriteErr error

	// Written records every chunk passed to Write.
	Written [][]byte

	// Finalized reports whether Finalize was called.
	Finalized bool

	// Discarded reports whether Discard was called.
	Discarded bool
}

// Write implements capture.Session.
func (s *Session) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.Written = append(s.Written, c)
	return nil
}

// Finalize implements capture.Session.
func (s *Session) Finalize() (capture.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Finalized || s.Discarded {
		return capture.Blob{}, capture.ErrSessionClosed
	}
	if s.FinalizeErr != nil {
		return capture.Blob{}, s.FinalizeErr
	}
	s.Finalized = true
	return s.Blob, nil
}

// Discard implements capture.Session.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Discarded = true
}

// Compile-time interface checks.
var (
	_ capture.Device  = (*Device)(nil)
	_ capture.Session = (*Session)(nil)
)
