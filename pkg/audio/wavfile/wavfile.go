// Package wavfile replays a WAV file as an [audio.Producer]. It is used for
// offline runs and reproducible end-to-end tests in place of a live
// microphone.
//
// Any PCM WAV file decodable by go-audio/wav is accepted; samples are
// converted to 16-bit mono at the configured sample rate before being
// chunked.
package wavfile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/MrWong99/wakegate/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Producer = (*Producer)(nil)
	_ audio.Finisher = (*Producer)(nil)
)

const (
	defaultSampleRate = 16000
	defaultBlockSize  = 4000
)

// Option is a functional option for configuring a Producer.
type Option func(*Producer)

// WithFs sets the filesystem the WAV file is read from. Defaults to the OS
// filesystem.
func WithFs(fs afero.Fs) Option {
	return func(p *Producer) { p.fs = fs }
}

// WithSampleRate sets the output sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Producer) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithBlockSize sets the number of samples per emitted chunk. Defaults to 4000.
func WithBlockSize(n int) Option {
	return func(p *Producer) {
		if n > 0 {
			p.blockSize = n
		}
	}
}

// WithPacing controls whether chunks are emitted at real-time cadence (the
// default) or as fast as the consumer drains them. Unpaced replay never
// drops chunks; it waits for room in the queue instead.
func WithPacing(realtime bool) Option {
	return func(p *Producer) { p.realtime = realtime }
}

// Producer replays a WAV file into an [audio.Queue].
type Producer struct {
	path       string
	queue      *audio.Queue
	fs         afero.Fs
	sampleRate int
	blockSize  int
	realtime   bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	finish  sync.Once
	wg      sync.WaitGroup
}

// New returns a Producer that replays the file at path onto q.
func New(path string, q *audio.Queue, opts ...Option) *Producer {
	p := &Producer{
		path:       path,
		queue:      q,
		fs:         afero.NewOsFs(),
		sampleRate: defaultSampleRate,
		blockSize:  defaultBlockSize,
		realtime:   true,
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start decodes the WAV file and begins replay in a background goroutine.
// A missing or undecodable file returns an error wrapping [audio.ErrDevice].
// Calling Start on a running Producer is a no-op.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	pcm, err := p.load()
	if err != nil {
		return err
	}

	replayCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go p.replay(replayCtx, pcm)

	slog.Info("wav replay started",
		"path", p.path,
		"duration", time.Duration(len(pcm)/2)*time.Second/time.Duration(p.sampleRate),
		"realtime", p.realtime,
	)
	return nil
}

// Stop cancels replay and waits for the replay goroutine to exit. It is safe
// to call multiple times.
func (p *Producer) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	return nil
}

// Done implements [audio.Finisher]. It is closed once every chunk of the file
// has been queued.
func (p *Producer) Done() <-chan struct{} { return p.done }

// load reads and decodes the file into 16-bit mono PCM at p.sampleRate.
func (p *Producer) load() ([]byte, error) {
	f, err := p.fs.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open wav %q: %v", audio.ErrDevice, p.path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %q is not a valid wav file", audio.ErrDevice, p.path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: decode wav %q: %v", audio.ErrDevice, p.path, err)
	}

	samples := make([]int16, len(buf.Data))
	shift := int(dec.BitDepth) - 16
	for i, v := range buf.Data {
		switch {
		case dec.BitDepth == 8:
			samples[i] = int16((v - 128) << 8)
		case shift > 0:
			samples[i] = int16(v >> shift)
		default:
			samples[i] = int16(v)
		}
	}

	conv := &audio.FormatConverter{TargetRate: p.sampleRate}
	pcm := conv.Convert(audio.Int16ToPCM16(samples), audio.Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	})
	return pcm, nil
}

// replay emits pcm in blockSize chunks until the data is exhausted or ctx is
// cancelled. The final partial block is emitted as-is.
func (p *Producer) replay(ctx context.Context, pcm []byte) {
	defer p.wg.Done()

	blockBytes := p.blockSize * 2
	blockDur := time.Duration(p.blockSize) * time.Second / time.Duration(p.sampleRate)

	var ticker *time.Ticker
	if p.realtime {
		ticker = time.NewTicker(blockDur)
		defer ticker.Stop()
	}

	var ts time.Duration
	for off := 0; off < len(pcm); off += blockBytes {
		end := min(off+blockBytes, len(pcm))
		c := audio.Chunk{Data: pcm[off:end], SampleRate: p.sampleRate, Timestamp: ts}
		ts += c.Duration()

		if p.realtime {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			p.queue.TryPush(c)
			continue
		}
		if err := p.queue.Push(ctx, c); err != nil {
			return
		}
	}
	slog.Info("wav replay finished", "path", p.path)
	p.finish.Do(func() { close(p.done) })
}
