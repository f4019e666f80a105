package session

import (
	"errors"
	"fmt"

	"github.com/MrWong99/wakegate/internal/event"
	"github.com/MrWong99/wakegate/internal/transcript"
	"github.com/MrWong99/wakegate/pkg/audio"
	"github.com/MrWong99/wakegate/pkg/provider/speech"
)

// ErrorKind is a short, stable label for an error's category. It is used as
// the metrics attribute and the "kind" log key.
type ErrorKind string

const (
	KindDevice         ErrorKind = "device"
	KindModelLoad      ErrorKind = "model_load"
	KindRecognizer     ErrorKind = "recognizer"
	KindEngineCreation ErrorKind = "engine_creation"
	KindPersist        ErrorKind = "persist"
	KindSubscriber     ErrorKind = "subscriber"
	KindUnknown        ErrorKind = "unknown"
)

// Classify maps err onto its [ErrorKind]. Handler failures are checked first
// because they may wrap any other error.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, event.ErrSubscriber):
		return KindSubscriber
	case errors.Is(err, audio.ErrDevice):
		return KindDevice
	case errors.Is(err, speech.ErrModelLoad):
		return KindModelLoad
	case errors.Is(err, speech.ErrEngineCreation):
		return KindEngineCreation
	case errors.Is(err, speech.ErrRecognizer):
		return KindRecognizer
	case errors.Is(err, transcript.ErrPersist):
		return KindPersist
	default:
		return KindUnknown
	}
}

// recognizerError tags err as a recognizer failure unless the adapter already
// did.
func recognizerError(op string, err error) error {
	if errors.Is(err, speech.ErrRecognizer) {
		return fmt.Errorf("session: %s: %w", op, err)
	}
	return fmt.Errorf("session: %s: %w: %w", op, speech.ErrRecognizer, err)
}

// creationError tags err as a recognizer creation failure unless it already
// carries a more specific creation sentinel.
func creationError(which string, err error) error {
	if errors.Is(err, speech.ErrEngineCreation) || errors.Is(err, speech.ErrModelLoad) {
		return fmt.Errorf("session: create %s recognizer: %w", which, err)
	}
	return fmt.Errorf("session: create %s recognizer: %w: %w", which, speech.ErrEngineCreation, err)
}

func persistError(err error) error {
	if errors.Is(err, transcript.ErrPersist) {
		return fmt.Errorf("session: %w", err)
	}
	return fmt.Errorf("session: %w: %w", transcript.ErrPersist, err)
}
