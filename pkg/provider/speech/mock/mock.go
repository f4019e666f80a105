// Package mock provides test doubles for the speech package interfaces.
//
// Use Engine to verify that recognizers are created with the expected Config
// and to hand out scripted Recognizers in creation order. Use Recognizer to
// script the outcome of every Feed call and inspect the audio that was
// delivered.
//
// Example:
//
//	hot := &mock.Recognizer{Steps: []mock.Step{{}, {Final: "hello"}}}
//	full := &mock.Recognizer{Steps: []mock.Step{{Partial: "at the"}, {Final: "at the park"}}}
//	eng := &mock.Engine{Hot: []*mock.Recognizer{hot}, Full: []*mock.Recognizer{full}}
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/wakegate/pkg/provider/speech"
)

// Compile-time interface assertions.
var (
	_ speech.Engine     = (*Engine)(nil)
	_ speech.Recognizer = (*Recognizer)(nil)
)

// NewRecognizerCall records a single invocation of Engine.NewRecognizer.
type NewRecognizerCall struct {
	// Cfg is the Config passed to NewRecognizer.
	Cfg speech.Config
}

// Engine is a mock implementation of speech.Engine.
//
// Grammar-restricted requests are served from Hot and unrestricted requests
// from Full, each in order. When a list is exhausted a fresh Recognizer with
// no steps is returned.
type Engine struct {
	mu sync.Mutex

	// Hot recognizers handed out for Config values with a grammar.
	Hot []*Recognizer

	// Full recognizers handed out for Config values without a grammar.
	Full []*Recognizer

	// HotErr, if non-nil, is returned for grammar-restricted requests.
	HotErr error

	// FullErr, if non-nil, is returned for unrestricted requests.
	FullErr error

	// NewRecognizerCalls records every call to NewRecognizer in order.
	NewRecognizerCalls []NewRecognizerCall

	// Created lists every recognizer returned, in order.
	Created []*Recognizer

	hotNext, fullNext int
}

// NewRecognizer records the call and returns the next scripted recognizer.
func (e *Engine) NewRecognizer(_ context.Context, cfg speech.Config) (speech.Recognizer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewRecognizerCalls = append(e.NewRecognizerCalls, NewRecognizerCall{Cfg: cfg})

	var r *Recognizer
	if cfg.Restricted() {
		if e.HotErr != nil {
			return nil, e.HotErr
		}
		if e.hotNext < len(e.Hot) {
			r = e.Hot[e.hotNext]
			e.hotNext++
		}
	} else {
		if e.FullErr != nil {
			return nil, e.FullErr
		}
		if e.fullNext < len(e.Full) {
			r = e.Full[e.fullNext]
			e.fullNext++
		}
	}
	if r == nil {
		r = &Recognizer{}
	}
	r.mu.Lock()
	r.Cfg = cfg
	r.mu.Unlock()
	e.Created = append(e.Created, r)
	return r, nil
}

// SetErrors replaces HotErr and FullErr. Thread-safe.
func (e *Engine) SetErrors(hot, full error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.HotErr = hot
	e.FullErr = full
}

// CallCount returns the number of NewRecognizer calls. Thread-safe.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.NewRecognizerCalls)
}

// Step scripts the outcome of one Feed call.
type Step struct {
	// Final, when non-empty, makes Feed report an utterance boundary and
	// Result return this text.
	Final string

	// Boundary forces an utterance boundary even when Final is empty.
	Boundary bool

	// Partial is returned by PartialResult after a non-boundary Feed.
	Partial string

	// FeedErr, if non-nil, is returned by Feed.
	FeedErr error

	// ResultErr, if non-nil, is returned by Result after this step.
	ResultErr error
}

// Recognizer is a scripted implementation of speech.Recognizer. Each Feed
// consumes the next Step; once Steps is exhausted Feed reports no boundary
// and empty partials.
type Recognizer struct {
	mu sync.Mutex

	// Steps are consumed one per Feed call.
	Steps []Step

	// Flush is returned by Result when it is called without a pending
	// boundary (forced finalisation).
	Flush string

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// Cfg is the Config the engine created this recognizer with.
	Cfg speech.Config

	// --- Call records ---

	// Fed holds a copy of every chunk passed to Feed.
	Fed [][]byte

	// ResultCalls counts Result invocations.
	ResultCalls int

	// PartialCalls counts PartialResult invocations.
	PartialCalls int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next    int
	current Step
	pending bool
}

// Feed records the chunk and applies the next Step.
func (r *Recognizer) Feed(pcm []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CloseCallCount > 0 {
		return false, fmt.Errorf("%w: mock recognizer closed", speech.ErrRecognizer)
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.Fed = append(r.Fed, cp)

	r.current = Step{}
	if r.next < len(r.Steps) {
		r.current = r.Steps[r.next]
		r.next++
	}
	if r.current.FeedErr != nil {
		return false, r.current.FeedErr
	}
	r.pending = r.current.Final != "" || r.current.Boundary
	return r.pending, nil
}

// Result returns the pending final text, or Flush when none is pending.
func (r *Recognizer) Result() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResultCalls++
	if r.current.ResultErr != nil {
		return "", r.current.ResultErr
	}
	if r.pending {
		r.pending = false
		return r.current.Final, nil
	}
	return r.Flush, nil
}

// PartialResult returns the Partial of the last Step.
func (r *Recognizer) PartialResult() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PartialCalls++
	if r.pending {
		return "", nil
	}
	return r.current.Partial, nil
}

// Close records the call and returns CloseErr.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCallCount++
	return r.CloseErr
}

// FedCount returns the number of Feed calls. Thread-safe.
func (r *Recognizer) FedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Fed)
}

// Closed reports whether Close has been called. Thread-safe.
func (r *Recognizer) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.CloseCallCount > 0
}
