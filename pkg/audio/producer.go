package audio

import (
	"context"
	"errors"
)

// ErrDevice is returned by [Producer.Start] when the capture device or input
// source cannot be opened. It is fatal for the pipeline start.
var ErrDevice = errors.New("audio: device unavailable")

// Producer captures audio and pushes fixed-size mono [Chunk] values onto the
// [Queue] it was constructed with.
//
// Implementations must never block the capture path on a full queue; frames
// that do not fit are dropped via [Queue.TryPush].
type Producer interface {
	// Start opens the device and begins capture. Calling Start on a running
	// producer is a no-op. A failure to open the device returns an error
	// wrapping [ErrDevice] and leaves nothing running.
	Start(ctx context.Context) error

	// Stop ends capture and releases the device. It is idempotent and safe to
	// call after a failed Start.
	Stop() error
}

// Finisher is optionally implemented by producers with a natural end, such
// as file replay. Done is closed once the last chunk has been pushed.
type Finisher interface {
	Done() <-chan struct{}
}
