package transcript

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"

	"github.com/MrWong99/wakegate/pkg/audio"
)

// Compile-time interface assertion.
var _ Recorder = (*WAVRecorder)(nil)

// WAVRecorder archives each session as a 16-bit mono WAV file named
// session_<YYYY-MM-DD_HH-MM-SS>.wav inside its directory.
type WAVRecorder struct {
	dir        string
	fs         afero.Fs
	sampleRate int

	mu     sync.Mutex
	writer *wave.Writer
	path   string
}

// NewWAVRecorder returns a recorder writing into dir on fsys at sampleRate.
func NewWAVRecorder(fsys afero.Fs, dir string, sampleRate int) *WAVRecorder {
	if dir == "" {
		dir = DefaultDir
	}
	return &WAVRecorder{dir: dir, fs: fsys, sampleRate: sampleRate}
}

// Begin implements [Recorder]. A recording that is still open is finalised
// first.
func (r *WAVRecorder) Begin(start time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer != nil {
		if _, err := r.endLocked(); err != nil {
			return err
		}
	}

	f, path, err := createExclusive(r.fs, r.dir, "session_"+start.Format(fileTimeLayout), ".wav")
	if err != nil {
		return err
	}
	w, err := wave.NewWriter(wave.WriterParam{
		Out:           f,
		Channel:       1,
		SampleRate:    r.sampleRate,
		BitsPerSample: 16,
	})
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: open wav writer %s: %w", ErrPersist, path, err)
	}
	r.writer = w
	r.path = path
	return nil
}

// Write implements [Recorder].
func (r *WAVRecorder) Write(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	if _, err := r.writer.WriteSample16(audio.PCM16ToInt16(pcm)); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrPersist, r.path, err)
	}
	return nil
}

// End implements [Recorder].
func (r *WAVRecorder) End() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endLocked()
}

func (r *WAVRecorder) endLocked() (string, error) {
	if r.writer == nil {
		return "", nil
	}
	w, path := r.writer, r.path
	r.writer, r.path = nil, ""
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %w", ErrPersist, path, err)
	}
	return path, nil
}
