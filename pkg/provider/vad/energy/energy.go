// Package energy implements a root-mean-square energy VAD. A frame counts as
// speech when the RMS of its samples, normalised to [-1, 1], reaches the
// configured speech threshold.
package energy

import (
	"errors"
	"sync"

	"github.com/MrWong99/wakegate/pkg/audio"
	"github.com/MrWong99/wakegate/pkg/provider/vad"
)

// Compile-time interface assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

var errClosed = errors.New("energy vad: session is closed")

// Engine creates energy VAD sessions. It is stateless and safe for
// concurrent use.
type Engine struct{}

// New returns an energy Engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg and returns a fresh session.
func (*Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{cfg: cfg}, nil
}

type session struct {
	cfg vad.Config

	mu     sync.Mutex
	gate   vad.Gate
	closed bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, errClosed
	}
	if err := s.cfg.CheckFrame(frame); err != nil {
		return vad.VADEvent{}, err
	}
	return s.gate.Next(audio.RMS(frame), s.cfg), nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate.Reset()
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
