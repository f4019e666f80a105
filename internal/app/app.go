// Package app wires the wakegate subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run drives the audio pipeline until the context ends or a
// finite source is exhausted, and Shutdown tears everything down in order.
//
// For testing, inject test doubles through [Providers] and the functional
// options (WithBus, WithRecorder, WithMetrics, ...). When an option is not
// provided, New builds the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/wakegate/internal/config"
	"github.com/MrWong99/wakegate/internal/event"
	"github.com/MrWong99/wakegate/internal/health"
	"github.com/MrWong99/wakegate/internal/observe"
	"github.com/MrWong99/wakegate/internal/session"
	"github.com/MrWong99/wakegate/internal/transcript"
	"github.com/MrWong99/wakegate/pkg/provider/speech"
	"github.com/MrWong99/wakegate/pkg/provider/vad"
)

// Providers holds the pluggable components. Populated by main.go via the
// config registry.
type Providers struct {
	// Engine creates the hot and full recognizers. Required.
	Engine speech.Engine

	// VAD gates the start of transcription. Nil selects the energy VAD when
	// voice gating is enabled.
	VAD vad.Engine

	// Source builds the audio producer. Required.
	Source ProducerFactory

	// Sinks receive every finished transcript. Empty means transcripts are
	// announced but not persisted.
	Sinks []transcript.Sink
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	bus      *event.Bus
	sink     transcript.Sink
	recorder transcript.Recorder
	ctrl     *session.Controller
	pipeline *Pipeline
	metrics  *observe.Metrics
	fs       afero.Fs
	now      func() time.Time

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBus injects the event bus instead of creating a fresh one.
func WithBus(b *event.Bus) Option {
	return func(a *App) { a.bus = b }
}

// WithRecorder injects a session audio recorder. It takes precedence over
// transcripts.record_audio.
func WithRecorder(r transcript.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithMetrics injects the metric instruments instead of the global ones.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithFs sets the filesystem session audio is archived to. The default is
// the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(a *App) { a.fs = fsys }
}

// WithClock replaces the controller's clock.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The returned App is
// stopped; call [App.Run] to start processing audio.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil || providers.Engine == nil {
		return nil, errors.New("app: a speech engine is required")
	}
	if providers.Source == nil {
		return nil, errors.New("app: an audio source is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		fs:        afero.NewOsFs(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Event bus ─────────────────────────────────────────────────────
	if a.bus == nil {
		a.bus = event.NewBus()
	}

	// ── 2. Transcript sinks ──────────────────────────────────────────────
	a.initSinks()

	// ── 3. Session audio recorder ────────────────────────────────────────
	if a.recorder == nil && cfg.Transcripts.RecordAudio {
		a.recorder = transcript.NewWAVRecorder(a.fs, cfg.Transcripts.Dir, cfg.Session.SampleRate)
	}

	// ── 4. Session controller ────────────────────────────────────────────
	if err := a.initController(); err != nil {
		_ = a.runClosers(ctx)
		return nil, fmt.Errorf("app: init controller: %w", err)
	}

	// ── 5. Pipeline ──────────────────────────────────────────────────────
	p, err := NewPipeline(PipelineConfig{
		Controller:  a.ctrl,
		Bus:         a.bus,
		NewProducer: providers.Source,
		QueueSize:   cfg.Audio.QueueSize,
		PopTimeout:  cfg.Audio.PopTimeout,
		JoinTimeout: cfg.Audio.JoinTimeout,
		Metrics:     a.metrics,
	})
	if err != nil {
		_ = a.ctrl.Close()
		_ = a.runClosers(ctx)
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.pipeline = p
	// The pipeline closes first so the last transcript reaches the sinks
	// before they are released.
	a.closers = append([]func() error{p.Close}, a.closers...)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSinks combines the configured sinks and registers closers for those
// that hold resources.
func (a *App) initSinks() {
	sinks := a.providers.Sinks
	switch len(sinks) {
	case 0:
		slog.Warn("no transcript sink configured; transcripts will not be persisted")
	case 1:
		a.sink = sinks[0]
	default:
		a.sink = transcript.NewMultiSink(sinks...)
	}

	for _, s := range sinks {
		switch c := s.(type) {
		case interface{ Close() error }:
			a.closers = append(a.closers, c.Close)
		case interface{ Close() }:
			a.closers = append(a.closers, func() error {
				c.Close()
				return nil
			})
		}
	}
}

func (a *App) initController() error {
	s := a.cfg.Session
	opts := []session.Option{session.WithMetrics(a.metrics)}
	if a.sink != nil {
		opts = append(opts, session.WithSink(a.sink))
	}
	if a.providers.VAD != nil {
		opts = append(opts, session.WithVAD(a.providers.VAD))
	}
	if a.recorder != nil {
		opts = append(opts, session.WithRecorder(a.recorder))
	}
	if a.now != nil {
		opts = append(opts, session.WithClock(a.now))
	}

	ctrl, err := session.New(session.Config{
		WakeWords:    s.WakeWords,
		SleepWords:   s.SleepWords,
		SampleRate:   s.SampleRate,
		DisableVAD:   !s.VADOn(),
		VADThreshold: s.VADThreshold,
		Debounce:     s.Debounce(),
	}, a.providers.Engine, a.bus, opts...)
	if err != nil {
		return err
	}
	a.ctrl = ctrl
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Bus returns the event bus. Subscribe before calling Run to observe every
// event.
func (a *App) Bus() *event.Bus { return a.bus }

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.ctrl }

// Pipeline returns the audio pipeline.
func (a *App) Pipeline() *Pipeline { return a.pipeline }

// Checkers returns the readiness checks of the running application: the
// pipeline, plus every sink that can be pinged.
func (a *App) Checkers() []health.Checker {
	checkers := []health.Checker{{Name: "pipeline", Check: a.pipeline.Check}}
	for i, s := range a.providers.Sinks {
		if p, ok := s.(health.Pinger); ok {
			checkers = append(checkers, health.PingChecker(fmt.Sprintf("sink_%d", i), p))
		}
	}
	return checkers
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the pipeline and blocks until ctx is cancelled or a finite audio
// source has been fully processed. It returns the start error, if any; the
// pipeline keeps its resources until [App.Shutdown].
func (a *App) Run(ctx context.Context) error {
	if err := a.pipeline.Start(ctx); err != nil {
		return err
	}
	slog.Info("listening for wake words",
		"wake", a.cfg.Session.WakeWords,
		"sleep", a.cfg.Session.SleepWords,
	)

	select {
	case <-ctx.Done():
	case <-a.pipeline.Done():
		slog.Info("audio input exhausted")
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems: the pipeline first, then the sinks. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		shutdownErr = a.runClosers(ctx)
	})
	return shutdownErr
}

func (a *App) runClosers(ctx context.Context) error {
	slog.Info("shutting down", "closers", len(a.closers))
	for i, closer := range a.closers {
		select {
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
			return ctx.Err()
		default:
		}
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	slog.Info("shutdown complete")
	return nil
}
