// Package opus decodes Opus packets from browser clients into 16-bit PCM for
// the capture buffer. Each recording gets its own decoder to maintain decoder
// state correctly across consecutive frames.
package opus

import (
	"fmt"

	"layeh.com/gopus"
)

// Browser MediaRecorder clients deliver 48 kHz Opus at 20 ms frame size.
const (
	// SampleRate is the decode output sample rate in Hz.
	SampleRate = 48000

	// Channels is the decode output channel count. Microphone input is mono.
	Channels = 1

	frameSizeMs = 20
	// frameSize is the number of samples per channel per 20 ms frame.
	frameSize = SampleRate * frameSizeMs / 1000 // 960
)

// Decoder wraps a gopus Opus decoder for a single recording's input stream.
// A Decoder is not safe for concurrent use; the intake feeds it from one
// goroutine.
type Decoder struct {
	dec *gopus.Decoder
}

// NewDecoder creates a decoder configured for browser microphone audio.
func NewDecoder() (*Decoder, error) {
	dec, err := gopus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{dec: dec}, nil
}

// Decode decodes one Opus packet into interleaved PCM int16 samples and
// returns the result as little-endian bytes, ready for [capture.Session.Write].
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
