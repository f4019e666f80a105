// Package flux implements a spectral-flux onset VAD on top of go-dsp.
//
// Each frame is split into Hann-windowed analysis windows. The score of a
// frame is the mean half-wave rectified spectral flux between consecutive
// windows, so steady background noise and hum score close to zero while
// speech, whose spectrum changes constantly, scores high. The previous
// window's spectrum carries across frames within a session.
package flux

import (
	"errors"
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/MrWong99/wakegate/pkg/audio"
	"github.com/MrWong99/wakegate/pkg/provider/vad"
)

// Compile-time interface assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

// DefaultWindowSize is the analysis window length in samples.
const DefaultWindowSize = 512

var errClosed = errors.New("flux vad: session is closed")

// Engine creates spectral-flux VAD sessions.
type Engine struct {
	windowSize int
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithWindowSize sets the analysis window length in samples. It should be a
// power of two. Defaults to 512.
func WithWindowSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.windowSize = n
		}
	}
}

// New returns a flux Engine.
func New(opts ...Option) *Engine {
	e := &Engine{windowSize: DefaultWindowSize}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession validates cfg and returns a fresh session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{cfg: cfg, windowSize: e.windowSize}, nil
}

type session struct {
	cfg        vad.Config
	windowSize int

	mu     sync.Mutex
	gate   vad.Gate
	prev   []float64
	closed bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, errClosed
	}
	if err := s.cfg.CheckFrame(frame); err != nil {
		return vad.VADEvent{}, err
	}
	return s.gate.Next(s.score(audio.PCM16ToInt16(frame)), s.cfg), nil
}

// score returns the mean spectral flux across the frame's analysis windows.
// A trailing partial window is zero padded.
func (s *session) score(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total float64
	var n int
	for off := 0; off < len(samples); off += s.windowSize {
		end := min(off+s.windowSize, len(samples))
		mag := s.spectrum(samples[off:end])
		total += flux(s.prev, mag)
		s.prev = mag
		n++
	}
	return total / float64(n)
}

// spectrum returns the magnitude spectrum (DC to Nyquist) of one windowed
// block, normalised by the window length.
func (s *session) spectrum(block []int16) []float64 {
	x := make([]float64, s.windowSize)
	for i, v := range block {
		x[i] = float64(v) / 32768.0
	}
	window.Apply(x, window.Hann)
	bins := fft.FFTReal(x)

	half := len(bins)/2 + 1
	mag := make([]float64, half)
	for i := range half {
		mag[i] = cmplx.Abs(bins[i]) / float64(s.windowSize)
	}
	return mag
}

// flux is the L2 norm of the positive magnitude increases from prev to cur.
// A nil prev counts as silence.
func flux(prev, cur []float64) float64 {
	var sum float64
	for i, m := range cur {
		var p float64
		if i < len(prev) {
			p = prev[i]
		}
		if d := m - p; d > 0 {
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate.Reset()
	s.prev = nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.prev = nil
	return nil
}
