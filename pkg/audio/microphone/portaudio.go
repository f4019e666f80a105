//go:build portaudio

package microphone

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/wakegate/pkg/audio"
)

// Producer captures from the default PortAudio input device.
type Producer struct {
	cfg   Config
	queue *audio.Queue

	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool
	started time.Time
	conv    *audio.FormatConverter
}

// New returns a Producer that pushes captured chunks onto q.
func New(q *audio.Queue, cfg Config) *Producer {
	return &Producer{cfg: cfg.withDefaults(), queue: q}
}

// Start initialises PortAudio and opens a callback stream on the default
// input device. Calling Start on a running Producer is a no-op.
func (p *Producer) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize portaudio: %v", audio.ErrDevice, err)
	}

	p.conv = &audio.FormatConverter{TargetRate: p.cfg.SampleRate}
	p.started = time.Now()

	stream, err := portaudio.OpenDefaultStream(
		p.cfg.Channels,
		0,
		float64(p.cfg.SampleRate),
		p.cfg.BlockSize,
		p.onCapture,
	)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: open input stream: %v", audio.ErrDevice, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: start input stream: %v", audio.ErrDevice, err)
	}

	p.stream = stream
	p.running = true
	slog.Info("microphone started",
		"sample_rate", p.cfg.SampleRate,
		"block_size", p.cfg.BlockSize,
		"channels", p.cfg.Channels,
	)
	return nil
}

// onCapture runs on the PortAudio callback thread. It must not block: the
// converted chunk is offered to the queue and dropped if the queue is full.
func (p *Producer) onCapture(in []float32) {
	pcm := audio.Float32ToPCM16(in)
	pcm = p.conv.Convert(pcm, audio.Format{SampleRate: p.cfg.SampleRate, Channels: p.cfg.Channels})
	if len(pcm) == 0 {
		return
	}
	p.queue.TryPush(audio.Chunk{
		Data:       pcm,
		SampleRate: p.cfg.SampleRate,
		Timestamp:  time.Since(p.started),
	})
}

// Stop stops and closes the stream and terminates PortAudio. It is safe to
// call multiple times.
func (p *Producer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.running = false

	var firstErr error
	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			firstErr = fmt.Errorf("microphone: stop stream: %w", err)
		}
		if err := p.stream.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("microphone: close stream: %w", err)
		}
		p.stream = nil
	}
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("microphone: terminate portaudio: %w", err)
	}
	slog.Info("microphone stopped", "dropped_chunks", p.queue.Dropped())
	return firstErr
}
