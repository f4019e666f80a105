package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/wakegate/internal/event"
	"github.com/MrWong99/wakegate/internal/observe"
	"github.com/MrWong99/wakegate/internal/session"
	"github.com/MrWong99/wakegate/pkg/audio"
)

// Defaults used by [NewPipeline] for zero-valued [PipelineConfig] fields.
const (
	DefaultPopTimeout  = 500 * time.Millisecond
	DefaultJoinTimeout = time.Second
)

var (
	// ErrPipelineClosed is returned by [Pipeline.Start] after [Pipeline.Close].
	ErrPipelineClosed = errors.New("app: pipeline closed")

	// ErrLoopBusy is returned by [Pipeline.Start] while the processing loop of
	// a previous run, abandoned by Stop after the join timeout, still owns the
	// controller.
	ErrLoopBusy = errors.New("app: previous processing loop still running")
)

// ProducerFactory builds a fresh audio producer that pushes onto q. The
// pipeline calls it on every Start so a stopped device is never reused.
type ProducerFactory func(q *audio.Queue) (audio.Producer, error)

// PipelineConfig holds the dependencies of a [Pipeline].
type PipelineConfig struct {
	// Controller consumes every dequeued chunk. Required.
	Controller *session.Controller

	// Bus receives the closed event. Required.
	Bus *event.Bus

	// NewProducer builds the audio source. Required.
	NewProducer ProducerFactory

	// QueueSize is the capacity of the chunk queue. Zero means
	// [audio.DefaultQueueSize].
	QueueSize int

	// PopTimeout bounds each wait on the queue. Zero means [DefaultPopTimeout].
	PopTimeout time.Duration

	// JoinTimeout bounds how long Stop waits for the processing loop. Zero
	// means [DefaultJoinTimeout].
	JoinTimeout time.Duration

	// Metrics receives queue observations. Nil means [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// PipelineStatus is a point-in-time snapshot of a [Pipeline].
type PipelineStatus struct {
	Running bool
	State   session.State
	Queued  int
	Dropped int64
}

// Pipeline owns one audio queue, one producer at a time, and the processing
// goroutine that feeds the session controller. Start and Stop are serialised
// and idempotent. There is no global instance: create as many as needed.
type Pipeline struct {
	ctrl        *session.Controller
	bus         *event.Bus
	newProducer ProducerFactory
	queue       *audio.Queue
	popTimeout  time.Duration
	joinTimeout time.Duration
	queueReg    metric.Registration

	mu       sync.Mutex
	producer audio.Producer
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
}

// NewPipeline validates cfg and returns a stopped pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Controller == nil {
		return nil, errors.New("app: pipeline requires a controller")
	}
	if cfg.Bus == nil {
		return nil, errors.New("app: pipeline requires an event bus")
	}
	if cfg.NewProducer == nil {
		return nil, errors.New("app: pipeline requires a producer factory")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = audio.DefaultQueueSize
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = DefaultPopTimeout
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	p := &Pipeline{
		ctrl:        cfg.Controller,
		bus:         cfg.Bus,
		newProducer: cfg.NewProducer,
		queue:       audio.NewQueue(cfg.QueueSize),
		popTimeout:  cfg.PopTimeout,
		joinTimeout: cfg.JoinTimeout,
	}
	reg, err := cfg.Metrics.ObserveQueue(p.queue)
	if err != nil {
		return nil, fmt.Errorf("app: observe queue: %w", err)
	}
	p.queueReg = reg
	return p, nil
}

// Start prepares the hot recognizer, starts a fresh producer and launches the
// processing loop. It is a no-op while the pipeline runs. A producer that
// fails to open its device leaves nothing running and the returned error
// wraps [audio.ErrDevice].
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	if p.producer != nil {
		select {
		case <-p.done:
			// The previous run ended on its own (source exhausted).
			if err := p.stopLocked(); err != nil {
				slog.Warn("pipeline: stop finished run", "err", err)
			}
		default:
			return nil
		}
	}
	if p.abandoned() {
		return ErrLoopBusy
	}

	if err := p.ctrl.Prepare(ctx); err != nil {
		return fmt.Errorf("app: prepare controller: %w", err)
	}

	producer, err := p.newProducer(p.queue)
	if err != nil {
		p.ctrl.Shutdown(ctx)
		return fmt.Errorf("app: create producer: %w", err)
	}
	if err := producer.Start(ctx); err != nil {
		_ = producer.Stop()
		p.queue.Drain()
		p.ctrl.Shutdown(ctx)
		return fmt.Errorf("app: start producer: %w", err)
	}

	var finished <-chan struct{}
	if f, ok := producer.(audio.Finisher); ok {
		finished = f.Done()
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.producer = producer
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, finished, p.done)

	slog.Info("pipeline started", "queue_size", p.queue.Cap())
	return nil
}

// Stop stops the producer, cancels the processing loop and waits up to the
// join timeout for it to exit. A loop that does not exit in time is
// abandoned with a warning. Stop is idempotent.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Pipeline) stopLocked() error {
	if p.producer == nil {
		return nil
	}
	err := p.producer.Stop()
	p.cancel()

	timer := time.NewTimer(p.joinTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		slog.Warn("pipeline: processing loop did not exit in time", "timeout", p.joinTimeout)
	}

	p.producer = nil
	p.cancel = nil
	slog.Info("pipeline stopped", "dropped", p.queue.Dropped())
	if err != nil {
		return fmt.Errorf("app: stop producer: %w", err)
	}
	return nil
}

// abandoned reports whether the loop of a stopped run has not exited yet.
func (p *Pipeline) abandoned() bool {
	if p.producer != nil || p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Close stops the pipeline, releases the controller and emits the closed
// event. Subsequent calls return nil and emit nothing. If an abandoned loop
// still owns the controller, the controller is closed once that loop exits.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	errs := []error{p.stopLocked()}
	if p.queueReg != nil {
		errs = append(errs, p.queueReg.Unregister())
	}
	if p.abandoned() {
		go func(done <-chan struct{}) {
			<-done
			if err := p.ctrl.Close(); err != nil {
				slog.Warn("pipeline: close controller", "err", err)
			}
		}(p.done)
	} else {
		errs = append(errs, p.ctrl.Close())
	}
	p.bus.Emit(event.Event{Kind: event.KindClosed, Timestamp: time.Now()})
	return errors.Join(errs...)
}

// Running reports whether the processing loop is alive.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.producer == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done returns a channel that is closed when the current run's processing
// loop exits, either because Stop was called or because a finite source was
// exhausted. Before the first Start it returns nil.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() PipelineStatus {
	return PipelineStatus{
		Running: p.Running(),
		State:   p.ctrl.State(),
		Queued:  p.queue.Len(),
		Dropped: p.queue.Dropped(),
	}
}

// Check implements a readiness probe: it fails unless the loop is running.
func (p *Pipeline) Check(context.Context) error {
	if !p.Running() {
		return errors.New("pipeline is not running")
	}
	return nil
}

// loop is the only goroutine that touches the controller while running. It
// exits on cancellation or once a finite source is done and the queue is
// empty, then drains the queue and shuts the controller down.
func (p *Pipeline) loop(ctx context.Context, finished <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer func() {
		if n := p.queue.Drain(); n > 0 {
			slog.Debug("pipeline: discarded queued chunks", "count", n)
		}
		p.ctrl.Shutdown(ctx)
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		chunk, ok := p.queue.Pop(p.popTimeout)
		if ok {
			if ctx.Err() != nil {
				return
			}
			p.ctrl.Process(ctx, chunk)
			continue
		}
		if sourceFinished(finished) && p.queue.Len() == 0 {
			slog.Info("pipeline: audio source finished")
			return
		}
	}
}

func sourceFinished(finished <-chan struct{}) bool {
	if finished == nil {
		return false
	}
	select {
	case <-finished:
		return true
	default:
		return false
	}
}
