// Package transcript accumulates the final segments of an active session and
// persists the finished transcript.
//
// A [Buffer] collects segments while a session is open. When the session
// ends the controller hands the joined text to a [Sink], which stores it and
// returns an identifier for the persisted record (a file path, a row id).
// Sinks are pluggable: [FileSink] writes timestamped text files, the postgres
// subpackage inserts rows, and [MultiSink] fans out to several sinks at once.
//
// A [Recorder] optionally archives the raw audio of each session next to the
// transcript.
package transcript

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrPersist wraps every failure to store a transcript or session recording.
var ErrPersist = errors.New("transcript: persist failed")

// Sink stores finished transcripts.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Persist stores text and returns an identifier for the new record.
	// Empty or whitespace-only text is not stored: Persist returns ("", nil).
	// Failures are wrapped in [ErrPersist].
	Persist(ctx context.Context, text string) (string, error)
}

// Recorder archives the audio of a session.
type Recorder interface {
	// Begin opens a new recording for a session that started at start.
	Begin(start time.Time) error

	// Write appends 16-bit mono PCM to the open recording. Without an open
	// recording it is a no-op.
	Write(pcm []byte) error

	// End finalises the open recording and returns its identifier. Without
	// an open recording it returns ("", nil).
	End() (string, error)
}

// Buffer is an ordered list of final transcript segments. The zero value is
// an empty buffer ready for use. All methods are safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	segments []string
}

// Append adds a segment. Leading and trailing whitespace is trimmed; empty
// segments are ignored.
func (b *Buffer) Append(segment string) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments = append(b.segments, segment)
}

// Text joins all segments with single spaces.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.segments, " ")
}

// Len returns the number of segments.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.segments)
}

// Segments returns a copy of the buffered segments.
func (b *Buffer) Segments() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.segments))
	copy(out, b.segments)
	return out
}

// Reset clears the buffer.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments = nil
}
