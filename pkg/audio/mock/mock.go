// Package mock provides an in-memory mock implementation of [audio.Producer]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts, and it exposes exported fields that the
// test can set to control behaviour.
//
// Typical usage:
//
//	q := audio.NewQueue(16)
//	p := &mock.Producer{Queue: q, Chunks: chunks}
//	_ = p.Start(ctx) // pushes every chunk onto q
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/wakegate/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Producer = (*Producer)(nil)
	_ audio.Finisher = (*Producer)(nil)
)

// Producer is a mock implementation of [audio.Producer].
// Set the exported fields before use; inspect the Call* fields after.
type Producer struct {
	mu sync.Mutex

	// Queue receives Chunks on Start. If nil, Start pushes nothing.
	Queue *audio.Queue

	// Chunks are pushed onto Queue, in order, by the first successful Start.
	Chunks []audio.Chunk

	// StartErr is returned by Start. When set, no chunks are pushed.
	StartErr error

	// StopErr is returned by Stop.
	StopErr error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// Accepted counts chunks the queue accepted during Start.
	Accepted int

	running  bool
	finished bool
	done     chan struct{}
}

// Start implements [audio.Producer]. It pushes Chunks onto Queue
// synchronously and then closes the Done channel.
func (p *Producer) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStart++
	if p.StartErr != nil {
		return p.StartErr
	}
	if p.running {
		return nil
	}
	p.running = true
	if p.finished {
		return nil
	}
	if p.done == nil {
		p.done = make(chan struct{})
	}
	if p.Queue != nil {
		for _, c := range p.Chunks {
			if p.Queue.TryPush(c) {
				p.Accepted++
			}
		}
	}
	p.finished = true
	close(p.done)
	return nil
}

// Stop implements [audio.Producer].
func (p *Producer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStop++
	p.running = false
	return p.StopErr
}

// Done implements [audio.Finisher]. The channel is closed after a successful
// Start has pushed every chunk.
func (p *Producer) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		p.done = make(chan struct{})
	}
	return p.done
}

// Running reports whether Start succeeded and Stop has not been called since.
func (p *Producer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
