// Package speech defines the Engine interface for speech recognition backends.
//
// An Engine wraps an offline or server-side recognizer (e.g., whisper.cpp or a
// Vosk server) and hands out Recognizer instances. A Recognizer is a
// synchronous, pull-based decoder: the caller feeds PCM audio one chunk at a
// time and, after each chunk, asks either for the final result of a completed
// utterance or for the current partial hypothesis.
//
// Grammar-restricted ("hot") and unrestricted ("full") recognizers are the
// same capability and differ only in the [Config] they were created with.
//
// Engines must be safe for concurrent use. A single Recognizer is owned by one
// goroutine and is not safe for concurrent use unless the implementation says
// otherwise.
package speech

import (
	"context"
	"errors"
)

// Error sentinels shared by all engine implementations. Implementations wrap
// these with fmt.Errorf("...: %w", ...) so callers can classify failures with
// errors.Is.
var (
	// ErrModelLoad indicates that the speech model could not be loaded. It is
	// returned by engine constructors and is fatal for startup.
	ErrModelLoad = errors.New("speech: model load failed")

	// ErrEngineCreation indicates that NewRecognizer could not create a
	// recognizer instance.
	ErrEngineCreation = errors.New("speech: recognizer creation failed")

	// ErrRecognizer indicates that a Feed or result call failed mid-stream.
	ErrRecognizer = errors.New("speech: recognizer failure")

	// ErrGrammarUnsupported is returned (wrapped in ErrEngineCreation) when an
	// engine cannot honour a word grammar. Callers may retry without one.
	ErrGrammarUnsupported = errors.New("speech: grammar not supported")
)

// Config describes the audio format and vocabulary of a new Recognizer.
type Config struct {
	// SampleRate is the sample rate in Hz of the 16-bit mono PCM passed to
	// Feed.
	SampleRate int

	// Grammar restricts recognition to the listed words. A nil or empty
	// grammar selects the unrestricted vocabulary.
	Grammar []string
}

// Restricted reports whether cfg carries a word grammar.
func (c Config) Restricted() bool { return len(c.Grammar) > 0 }

// Recognizer is a single decoding stream. It is an interface so that test
// code can supply scripted implementations without a real model.
//
// Callers must call Close when the recognizer is no longer needed.
type Recognizer interface {
	// Feed decodes one chunk of 16-bit little-endian mono PCM. It reports
	// true when the chunk completed an utterance, in which case Result
	// returns its text. A failure is returned wrapped in [ErrRecognizer].
	Feed(pcm []byte) (bool, error)

	// Result returns the final text of the most recently completed utterance.
	// When no utterance boundary is pending it forces the recognizer to
	// finalise whatever it has heard so far. Unparseable engine output yields
	// an empty string and a nil error. Engines whose stream ends on a forced
	// finalisation (vosk) fail every later Feed and Result with
	// [ErrRecognizer]; callers should Close the recognizer then.
	Result() (string, error)

	// PartialResult returns the current in-progress hypothesis, or "" when
	// the engine has none.
	PartialResult() (string, error)

	// Close releases the recognizer. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Engine is the factory for Recognizer instances. It is the top-level
// interface implemented by each recognition backend.
type Engine interface {
	// NewRecognizer creates a recognizer for cfg. Failures are wrapped in
	// [ErrEngineCreation].
	NewRecognizer(ctx context.Context, cfg Config) (Recognizer, error)
}
