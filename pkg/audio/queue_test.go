package audio_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/wakegate/pkg/audio"
)

func TestQueue_DefaultSize(t *testing.T) {
	t.Parallel()
	if got := audio.NewQueue(0).Cap(); got != audio.DefaultQueueSize {
		t.Errorf("Cap = %d, want %d", got, audio.DefaultQueueSize)
	}
}

func TestQueue_FIFO(t *testing.T) {
	t.Parallel()
	q := audio.NewQueue(4)
	for i := range 3 {
		q.TryPush(audio.Chunk{Timestamp: time.Duration(i)})
	}
	for i := range 3 {
		c, ok := q.Pop(10 * time.Millisecond)
		if !ok {
			t.Fatalf("pop %d: queue unexpectedly empty", i)
		}
		if c.Timestamp != time.Duration(i) {
			t.Errorf("pop %d: got timestamp %v", i, c.Timestamp)
		}
	}
}

func TestQueue_BackpressureDropsInsteadOfGrowing(t *testing.T) {
	t.Parallel()
	q := audio.NewQueue(5)
	accepted := 0
	for range 50 {
		if q.TryPush(audio.Chunk{}) {
			accepted++
		}
		if q.Len() > q.Cap() {
			t.Fatalf("queue length %d exceeds capacity %d", q.Len(), q.Cap())
		}
	}
	if accepted != 5 {
		t.Errorf("accepted = %d, want 5", accepted)
	}
	if q.Dropped() != 45 {
		t.Errorf("Dropped = %d, want 45", q.Dropped())
	}
	if q.Pushed() != 5 {
		t.Errorf("Pushed = %d, want 5", q.Pushed())
	}
}

func TestQueue_ConcurrentProducerNeverExceedsCapacity(t *testing.T) {
	t.Parallel()
	q := audio.NewQueue(8)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 1000 {
			q.TryPush(audio.Chunk{})
		}
	}()
	consumed := 0
	for consumed < 20 {
		if _, ok := q.Pop(5 * time.Millisecond); ok {
			consumed++
		}
		if q.Len() > q.Cap() {
			t.Fatalf("queue length %d exceeds capacity %d", q.Len(), q.Cap())
		}
		if q.Pushed()+q.Dropped() == 1000 && q.Len() == 0 {
			break
		}
	}
	wg.Wait()
	if q.Pushed()+q.Dropped() != 1000 {
		t.Errorf("pushed+dropped = %d, want 1000", q.Pushed()+q.Dropped())
	}
}

func TestQueue_PopTimesOut(t *testing.T) {
	t.Parallel()
	q := audio.NewQueue(1)
	start := time.Now()
	if _, ok := q.Pop(20 * time.Millisecond); ok {
		t.Fatal("expected timeout on empty queue")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Pop returned after %v, expected to wait for the timeout", elapsed)
	}
}

func TestQueue_Drain(t *testing.T) {
	t.Parallel()
	q := audio.NewQueue(4)
	q.TryPush(audio.Chunk{})
	q.TryPush(audio.Chunk{})
	if n := q.Drain(); n != 2 {
		t.Errorf("Drain = %d, want 2", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len after drain = %d", q.Len())
	}
}

func TestQueue_PushWaitsForRoom(t *testing.T) {
	t.Parallel()
	q := audio.NewQueue(1)
	ctx := context.Background()
	if err := q.Push(ctx, audio.Chunk{Timestamp: 1}); err != nil {
		t.Fatalf("first Push: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- q.Push(ctx, audio.Chunk{Timestamp: 2}) }()

	select {
	case err := <-done:
		t.Fatalf("Push returned early with %v while queue was full", err)
	case <-time.After(20 * time.Millisecond):
	}
	if _, ok := q.Pop(time.Second); !ok {
		t.Fatal("Pop failed")
	}
	if err := <-done; err != nil {
		t.Fatalf("second Push: %v", err)
	}
	if q.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", q.Dropped())
	}
}

func TestQueue_PushCancelled(t *testing.T) {
	t.Parallel()
	q := audio.NewQueue(1)
	q.TryPush(audio.Chunk{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Push(ctx, audio.Chunk{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Push on cancelled ctx = %v, want context.Canceled", err)
	}
}
