// Package mock provides scripted test doubles for the vad interfaces.
//
// A [Session] answers ProcessFrame from its Events script and records every
// frame it was given; [Voiced] builds such a script from per-frame booleans:
//
//	eng := &mock.Engine{Session: mock.Voiced(false, false, true)}
package mock

import (
	"sync"

	"github.com/MrWong99/wakegate/pkg/provider/vad"
)

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)

// NewSessionCall records one Engine.NewSession invocation.
type NewSessionCall struct {
	Cfg vad.Config
}

// Engine is a mock vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. Nil hands out a fresh zero Session.
	Session vad.SessionHandle

	// NewSessionErr fails every NewSession call.
	NewSessionErr error

	// NewSessionCalls lists every call in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session or NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	switch {
	case e.NewSessionErr != nil:
		return nil, e.NewSessionErr
	case e.Session != nil:
		return e.Session, nil
	default:
		return &Session{}, nil
	}
}

// Session is a mock vad.SessionHandle. ProcessFrame pops Events in order and
// then keeps answering EventResult; the zero value reports speech start for
// every frame.
type Session struct {
	mu sync.Mutex

	Events      []vad.VADEvent
	EventResult vad.VADEvent

	// ProcessFrameErr fails every ProcessFrame call.
	ProcessFrameErr error
	CloseErr        error

	// Frames holds a copy of every processed frame.
	Frames         [][]byte
	ResetCallCount int
	CloseCallCount int
}

// Voiced returns a Session whose nth frame is speech when voiced[n] is true
// and silence otherwise. Frames past the script are silence.
func Voiced(voiced ...bool) *Session {
	s := &Session{EventResult: vad.VADEvent{Type: vad.VADSilence}}
	for _, v := range voiced {
		ev := vad.VADEvent{Type: vad.VADSilence}
		if v {
			ev = vad.VADEvent{Type: vad.VADSpeechContinue, Probability: 1}
		}
		s.Events = append(s.Events, ev)
	}
	return s
}

// ProcessFrame records frame and returns the next scripted event.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = append(s.Frames, append([]byte(nil), frame...))
	if s.ProcessFrameErr != nil {
		return vad.VADEvent{}, s.ProcessFrameErr
	}
	if len(s.Events) == 0 {
		return s.EventResult, nil
	}
	ev := s.Events[0]
	s.Events = s.Events[1:]
	return ev, nil
}

func (s *Session) Reset() {
	s.mu.Lock()
	s.ResetCallCount++
	s.mu.Unlock()
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// FrameCount returns the number of processed frames.
func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames)
}
