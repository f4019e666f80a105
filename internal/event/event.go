// Package event provides the synchronous, typed event bus through which the
// session controller announces wake, sleep, transcript and error
// notifications to the outside world.
//
// Handlers run on the emitting goroutine in subscription order. A handler
// that returns an error or panics never disturbs the controller: the failure
// is contained, reported to the KindError subscribers and delivery continues
// with the next handler.
package event

import (
	"errors"
	"fmt"
	"time"
)

// ErrSubscriber wraps failures raised by event handlers. The bus reports them
// as KindError events.
var ErrSubscriber = errors.New("event: subscriber failed")

// Kind is the closed set of event types the bus delivers.
type Kind int

const (
	// KindWake is emitted when a wake word opened a session.
	KindWake Kind = iota + 1

	// KindSleep is emitted when a sleep word closed a session.
	KindSleep

	// KindTranscript is emitted for every non-empty partial or final segment
	// recognised during an active session.
	KindTranscript

	// KindError is emitted for recoverable runtime failures.
	KindError

	// KindClosed is emitted once when the pipeline is closed.
	KindClosed
)

// Kinds lists every valid Kind in declaration order.
var Kinds = []Kind{KindWake, KindSleep, KindTranscript, KindError, KindClosed}

// String returns the lower-case event name.
func (k Kind) String() string {
	switch k {
	case KindWake:
		return "wake"
	case KindSleep:
		return "sleep"
	case KindTranscript:
		return "transcript"
	case KindError:
		return "error"
	case KindClosed:
		return "closed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsValid reports whether k is one of the declared kinds.
func (k Kind) IsValid() bool {
	return k >= KindWake && k <= KindClosed
}

// Event is a single notification. Events are passed by value, so handlers
// cannot alter what later handlers observe.
type Event struct {
	// Kind selects which subscribers receive the event.
	Kind Kind

	// Word is the wake or sleep word that triggered a KindWake or KindSleep.
	Word string

	// Text is the recognised text of a KindTranscript event.
	Text string

	// IsFinal distinguishes final from partial transcript segments.
	IsFinal bool

	// Timestamp is the wall-clock time the event was raised.
	Timestamp time.Time

	// Err carries the failure of a KindError event.
	Err error

	// Record identifies the persisted transcript of a KindSleep event. It is
	// empty when nothing was persisted.
	Record string
}
