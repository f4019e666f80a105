// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (e.g., an RMS energy gate or
// a spectral-flux onset detector) and surfaces it as a stateful, per-stream
// session. Each session maintains its own detection state (previous spectrum,
// speaking flag) so that concurrent audio streams are processed independently.
//
// ProcessFrame is synchronous and returns immediately with a detection result.
// The session controller uses it to decide whether the chunk following a wake
// word carries voice before it spins up the full-vocabulary recognizer.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"errors"
	"fmt"
)

// Config holds the parameters for a VAD session. All numeric thresholds are
// expressed in the model's native scale; see each Engine's documentation for
// recommended starting values.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Zero
	// accepts frames of any length, which is what the session controller uses
	// since it gates whole capture chunks. When non-zero ProcessFrame returns
	// an error for frames of a different size.
	FrameSizeMs int

	// SpeechThreshold is the score at or above which a frame is classified as
	// speech. For the energy engine this is the RMS of samples normalised to
	// [-1, 1]. Typical: 0.01.
	SpeechThreshold float64

	// SilenceThreshold is the score below which an active speech segment is
	// considered ended. Zero means "same as SpeechThreshold". Must be <=
	// SpeechThreshold.
	SilenceThreshold float64
}

// Validate reports whether cfg is usable.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameSizeMs < 0 {
		return fmt.Errorf("vad: frame size must not be negative, got %d", c.FrameSizeMs)
	}
	if c.SpeechThreshold < 0 || c.SilenceThreshold < 0 {
		return errors.New("vad: thresholds must not be negative")
	}
	if c.SilenceThreshold > c.SpeechThreshold {
		return fmt.Errorf("vad: silence threshold %.4f exceeds speech threshold %.4f",
			c.SilenceThreshold, c.SpeechThreshold)
	}
	return nil
}

// Release returns the effective silence threshold.
func (c Config) Release() float64 {
	if c.SilenceThreshold > 0 {
		return c.SilenceThreshold
	}
	return c.SpeechThreshold
}

// CheckFrame returns an error when frame does not match the configured frame
// size. Engines call it at the top of ProcessFrame.
func (c Config) CheckFrame(frame []byte) error {
	if len(frame)%2 != 0 {
		return fmt.Errorf("vad: frame length %d is not a whole number of 16-bit samples", len(frame))
	}
	if c.FrameSizeMs == 0 {
		return nil
	}
	want := c.SampleRate * c.FrameSizeMs / 1000 * 2
	if len(frame) != want {
		return fmt.Errorf("vad: frame is %d bytes, want %d (%d ms at %d Hz)", len(frame), want, c.FrameSizeMs, c.SampleRate)
	}
	return nil
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine. Each session maintains its own detection state; Reset clears this state
// without closing the session.
//
// A SessionHandle should not be shared between goroutines unless the implementation
// explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection result.
	// The frame must be raw little-endian PCM at the SampleRate and FrameSizeMs
	// configured when the session was created. Returns an error if the frame size
	// is wrong or if the engine encounters an internal failure.
	//
	// This method is designed to be called synchronously in the audio pipeline loop;
	// it must not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears all accumulated detection state (ring buffers, speech-start
	// counters) without closing the session. Use this when the audio stream is
	// interrupted or restarted to avoid stale state from the previous segment
	// affecting subsequent frames.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// ProcessFrame and Reset must return errors or be no-ops. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration. The session
	// is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid (e.g., unsupported sample
	// rate, frame size, or threshold out of range) or if the engine cannot allocate
	// resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
