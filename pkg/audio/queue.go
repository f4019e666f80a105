package audio

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the capacity used by [NewQueue] when size <= 0.
const DefaultQueueSize = 200

// Queue is a bounded single-producer/single-consumer channel of [Chunk]
// values between a capture callback and the processing goroutine.
//
// The producer side never blocks: [Queue.TryPush] drops the chunk when the
// queue is full. The consumer side blocks for at most a caller-chosen timeout
// in [Queue.Pop] so that the processing loop can observe shutdown promptly.
type Queue struct {
	ch      chan Chunk
	pushed  atomic.Int64
	dropped atomic.Int64
}

// NewQueue returns a Queue holding at most size chunks.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Chunk, size)}
}

// TryPush enqueues c without blocking. It reports false and counts a drop
// when the queue is full.
func (q *Queue) TryPush(c Chunk) bool {
	select {
	case q.ch <- c:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Push enqueues c, waiting for room until ctx is done. It is meant for
// sources that are not bound to a real-time capture callback, such as file
// replay; capture callbacks must use [Queue.TryPush].
func (q *Queue) Push(ctx context.Context, c Chunk) error {
	select {
	case q.ch <- c:
		q.pushed.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop waits up to timeout for the next chunk. ok is false if the timeout
// elapsed with the queue empty.
func (q *Queue) Pop(timeout time.Duration) (c Chunk, ok bool) {
	select {
	case c = <-q.ch:
		return c, true
	default:
	}
	if timeout <= 0 {
		return Chunk{}, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c = <-q.ch:
		return c, true
	case <-timer.C:
		return Chunk{}, false
	}
}

// Drain discards every chunk currently queued and returns how many were
// removed.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of queued chunks.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Pushed returns the number of chunks accepted so far.
func (q *Queue) Pushed() int64 { return q.pushed.Load() }

// Dropped returns the number of chunks rejected because the queue was full.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }
