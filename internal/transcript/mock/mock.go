// Package mock provides test doubles for the transcript package interfaces.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/wakegate/internal/transcript"
)

// Compile-time interface assertions.
var (
	_ transcript.Sink     = (*Sink)(nil)
	_ transcript.Recorder = (*Recorder)(nil)
)

// Sink is a mock implementation of transcript.Sink. It honours the empty-text
// contract: whitespace-only text is neither recorded nor failed.
type Sink struct {
	mu sync.Mutex

	// PersistErr, if non-nil, is returned by Persist for non-empty text.
	PersistErr error

	// Persisted records every non-empty text stored, in order.
	Persisted []string

	// CallCountPersist counts every Persist call including empty ones.
	CallCountPersist int
}

// Persist records text and returns a synthetic identifier "record-<n>".
func (s *Sink) Persist(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountPersist++
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if s.PersistErr != nil {
		return "", s.PersistErr
	}
	s.Persisted = append(s.Persisted, text)
	return fmt.Sprintf("record-%d", len(s.Persisted)), nil
}

// Records returns a copy of Persisted. Thread-safe.
func (s *Sink) Records() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Persisted))
	copy(out, s.Persisted)
	return out
}

// Recorder is a mock implementation of transcript.Recorder.
type Recorder struct {
	mu sync.Mutex

	// BeginErr, WriteErr and EndErr are returned by the matching methods.
	BeginErr error
	WriteErr error
	EndErr   error

	// Sessions records the audio of every finished recording.
	Sessions [][]byte

	// Starts records every Begin timestamp.
	Starts []time.Time

	open    bool
	current []byte
}

// Begin implements transcript.Recorder.
func (r *Recorder) Begin(start time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BeginErr != nil {
		return r.BeginErr
	}
	r.Starts = append(r.Starts, start)
	r.open = true
	r.current = nil
	return nil
}

// Write implements transcript.Recorder.
func (r *Recorder) Write(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return nil
	}
	if r.WriteErr != nil {
		return r.WriteErr
	}
	r.current = append(r.current, pcm...)
	return nil
}

// End implements transcript.Recorder.
func (r *Recorder) End() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return "", nil
	}
	r.open = false
	if r.EndErr != nil {
		return "", r.EndErr
	}
	r.Sessions = append(r.Sessions, r.current)
	r.current = nil
	return fmt.Sprintf("session-%d.wav", len(r.Sessions)), nil
}

// Open reports whether a recording is in progress. Thread-safe.
func (r *Recorder) Open() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}
