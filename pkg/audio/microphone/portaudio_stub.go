//go:build !portaudio

package microphone

import (
	"context"
	"fmt"

	"github.com/MrWong99/wakegate/pkg/audio"
)

// Producer is the stub used when the binary is built without PortAudio.
type Producer struct {
	cfg   Config
	queue *audio.Queue
}

// New returns a Producer whose Start always fails.
func New(q *audio.Queue, cfg Config) *Producer {
	return &Producer{cfg: cfg.withDefaults(), queue: q}
}

// Start always returns an error wrapping [audio.ErrDevice].
func (p *Producer) Start(_ context.Context) error {
	return fmt.Errorf("%w: microphone support not compiled in; rebuild with -tags portaudio", audio.ErrDevice)
}

// Stop is a no-op.
func (p *Producer) Stop() error { return nil }
