// Package whisper implements speech.Engine on top of the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
//
// whisper.cpp has no native streaming mode, so each Recognizer segments the
// fed audio on trailing silence and runs a full inference pass per utterance.
// Partial hypotheses are therefore never available. Grammar-restricted
// recognizers filter the decoded words down to the grammar vocabulary.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/wakegate/pkg/provider/speech"
)

// Compile-time interface assertions.
var (
	_ speech.Engine     = (*Engine)(nil)
	_ speech.Recognizer = (*recognizer)(nil)
)

// Engine implements speech.Engine using a whisper.cpp model loaded once at
// construction and shared across all recognizers.
type Engine struct {
	model    whisperlib.Model
	language string

	sampleRate          int
	rmsThreshold        float64
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// WithSampleRate sets the default sample rate in Hz used when a recognizer
// Config leaves it zero. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(e *Engine) {
		if rate > 0 {
			e.sampleRate = rate
		}
	}
}

// WithSilenceThresholdMs sets the trailing-silence duration (ms) that ends an
// utterance. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(e *Engine) { e.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs sets the maximum utterance duration (ms) before a
// forced boundary. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(e *Engine) { e.maxBufferDurationMs = ms }
}

// WithRMSThreshold sets the RMS energy below which audio counts as silence.
// Defaults to 300.
func WithRMSThreshold(rms float64) Option {
	return func(e *Engine) { e.rmsThreshold = rms }
}

// New loads the whisper.cpp model at modelPath. Load failures are wrapped in
// [speech.ErrModelLoad]. The caller must call Close when the engine is no
// longer needed.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: whisper model path must not be empty", speech.ErrModelLoad)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: whisper: load model %q: %v", speech.ErrModelLoad, modelPath, err)
	}

	e := &Engine{
		model:               model,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		rmsThreshold:        defaultRMSThreshold,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close releases the whisper model.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// NewRecognizer returns a recognizer sharing the engine's model. Each
// inference pass creates its own whisper.cpp context, so recognizers can run
// concurrently.
func (e *Engine) NewRecognizer(ctx context.Context, cfg speech.Config) (speech.Recognizer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: whisper: %v", speech.ErrEngineCreation, err)
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = e.sampleRate
	}
	return &recognizer{
		model:    e.model,
		language: e.language,
		grammar:  grammarSet(cfg.Grammar),
		seg: segmenter{
			sampleRate:          sr,
			rmsThreshold:        e.rmsThreshold,
			silenceThresholdMs:  e.silenceThresholdMs,
			maxBufferDurationMs: e.maxBufferDurationMs,
		},
	}, nil
}

// ---- recognizer --------------------------------------------------------------

type recognizer struct {
	model    whisperlib.Model
	language string
	grammar  map[string]struct{}

	mu         sync.Mutex
	seg        segmenter
	final      string
	hasPending bool
	closed     bool
}

func (r *recognizer) Feed(pcm []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, fmt.Errorf("%w: whisper: recognizer is closed", speech.ErrRecognizer)
	}
	utterance, done := r.seg.push(pcm)
	if !done {
		return false, nil
	}
	text, err := r.infer(utterance)
	if err != nil {
		return false, err
	}
	r.final = text
	r.hasPending = true
	return true, nil
}

func (r *recognizer) Result() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", fmt.Errorf("%w: whisper: recognizer is closed", speech.ErrRecognizer)
	}
	if r.hasPending {
		text := r.final
		r.final, r.hasPending = "", false
		return text, nil
	}
	pcm := r.seg.flush()
	if len(pcm) == 0 {
		return "", nil
	}
	return r.infer(pcm)
}

// PartialResult always returns "" because whisper.cpp only decodes whole
// utterances.
func (r *recognizer) PartialResult() (string, error) {
	return "", nil
}

func (r *recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.seg.reset()
	return nil
}

// infer runs whisper.cpp on pcm using a fresh context and returns the
// normalised text.
func (r *recognizer) infer(pcm []byte) (string, error) {
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("%w: whisper: create context: %v", speech.ErrRecognizer, err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", r.language, "error", err)
	}
	if err := wctx.Process(pcmToFloat32(pcm), nil, nil, nil); err != nil {
		return "", fmt.Errorf("%w: whisper: process audio: %v", speech.ErrRecognizer, err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A truncated segment stream is treated as no recognised speech.
			slog.Debug("whisper: read segment failed", "error", err)
			break
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return normalize(strings.Join(parts, " "), r.grammar), nil
}
