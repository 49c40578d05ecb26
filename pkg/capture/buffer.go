package capture

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time assertions.
var (
	_ Device  = (*BufferDevice)(nil)
	_ Session = (*bufferSession)(nil)
)

const (
	defaultSampleRate = 48000
	defaultChannels   = 1
)

// Option is a functional option for configuring a [BufferDevice].
type Option func(*BufferDevice)

// WithPCM configures the device for raw 16-bit little-endian PCM input.
// Finalized blobs are wrapped in a WAV container using the given sample rate
// and channel count. This is the default mode (48 kHz mono).
func WithPCM(sampleRate, channels int) Option {
	return func(d *BufferDevice) {
		d.passthroughMIME = ""
		d.sampleRate = sampleRate
		d.channels = channels
	}
}

// WithPassthrough configures the device to treat incoming chunks as an
// already-containered audio stream (e.g., "audio/webm" from a MediaRecorder
// client). Chunks are concatenated verbatim and the blob carries mime.
func WithPassthrough(mime string) Option {
	return func(d *BufferDevice) {
		d.passthroughMIME = mime
	}
}

// BufferDevice is an in-process [Device] fed by a transport adapter (the HTTP
// audio intake). It enforces the one-active-session rule and hands out
// sessions that buffer chunks in arrival order.
//
// The zero value is not usable; construct with [NewBufferDevice].
type BufferDevice struct {
	mu     sync.Mutex
	active *bufferSession

	passthroughMIME string
	sampleRate      int
	channels        int
}

// NewBufferDevice returns a ready-to-use [BufferDevice].
func NewBufferDevice(opts ...Option) *BufferDevice {
	d := &BufferDevice{
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Open implements [Device]. It fails with [ErrDeviceUnavailable] when a
// session is already active or ctx is cancelled.
func (d *BufferDevice) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != nil {
		return nil, fmt.Errorf("%w: a recording is already active", ErrDeviceUnavailable)
	}

	s := &bufferSession{device: d}
	d.active = s
	return s, nil
}

// Active returns the currently open session, or nil.
func (d *BufferDevice) Active() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil
	}
	return d.active
}

// release clears the active slot if it still points at s.
func (d *BufferDevice) release(s *bufferSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == s {
		d.active = nil
	}
}

// bufferSession buffers audio chunks for a single recording.
type bufferSession struct {
	device *BufferDevice

	mu     sync.Mutex
	buf    []byte
	closed bool
}

// Write implements [Session].
func (s *bufferSession) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.buf = append(s.buf, chunk...)
	return nil
}

// Finalize implements [Session]. The buffered audio is wrapped in a WAV
// container in PCM mode, or returned verbatim in passthrough mode.
func (s *bufferSession) Finalize() (Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Blob{}, ErrSessionClosed
	}
	s.closed = true

	pcm := s.buf
	s.buf = nil
	s.device.release(s)

	if mime := s.device.passthroughMIME; mime != "" {
		return Blob{Data: pcm, MIME: mime}, nil
	}
	return Blob{
		Data: EncodeWAV(pcm, s.device.sampleRate, s.device.channels),
		MIME: "audio/wav",
	}, nil
}

// Discard implements [Session].
func (s *bufferSession) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.buf = nil
	s.device.release(s)
}
