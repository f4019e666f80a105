// Package audio holds the capture-side primitives of the wakegate pipeline:
// the [Chunk] unit of transport, the bounded [Queue] that decouples the
// capture callback from the processing goroutine, the [Producer] contract
// implemented by capture sources, and PCM conversion helpers.
package audio

import "time"

// Chunk is a fixed-size block of 16-bit signed little-endian mono PCM audio.
// Chunks are the atomic unit of audio transport: produced by a capture source,
// handed to the [Queue], and consumed exactly once by the session controller.
//
// A Chunk must not be modified after it has been pushed onto a queue.
type Chunk struct {
	// Data is the raw PCM payload, two bytes per sample.
	Data []byte

	// SampleRate in Hz (16000 by default).
	SampleRate int

	// Timestamp is the monotonic capture time relative to producer start.
	Timestamp time.Duration
}

// Samples returns the number of 16-bit samples in c.
func (c Chunk) Samples() int { return len(c.Data) / 2 }

// Duration returns the playback duration of c. Returns 0 when the sample rate
// is unknown.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Samples()) * time.Second / time.Duration(c.SampleRate)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}
