package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/wakegate/internal/app"
	"github.com/MrWong99/wakegate/internal/config"
	"github.com/MrWong99/wakegate/internal/health"
	"github.com/MrWong99/wakegate/internal/resilience"
	"github.com/MrWong99/wakegate/internal/transcript"
	"github.com/MrWong99/wakegate/internal/transcript/postgres"
	"github.com/MrWong99/wakegate/pkg/audio"
	"github.com/MrWong99/wakegate/pkg/audio/microphone"
	"github.com/MrWong99/wakegate/pkg/audio/wavfile"
	"github.com/MrWong99/wakegate/pkg/provider/speech"
	"github.com/MrWong99/wakegate/pkg/provider/speech/vosk"
	"github.com/MrWong99/wakegate/pkg/provider/speech/whisper"
	"github.com/MrWong99/wakegate/pkg/provider/vad"
	"github.com/MrWong99/wakegate/pkg/provider/vad/energy"
	"github.com/MrWong99/wakegate/pkg/provider/vad/flux"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires every implementation that ships with
// wakegate into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Speech engines ────────────────────────────────────────────────────────

	reg.RegisterEngine(config.EngineWhisper, func(_ context.Context, e config.EngineEntry) (speech.Engine, error) {
		return whisper.New(e.ModelPath,
			whisper.WithLanguage(e.Language),
			whisper.WithSampleRate(e.SampleRate),
		)
	})

	// vosk-server is addressed by URL; a ws:// model path doubles as one.
	reg.RegisterEngine(config.EngineVosk, func(ctx context.Context, e config.EngineEntry) (speech.Engine, error) {
		url := e.URL
		if url == "" {
			url = e.ModelPath
		}
		return vosk.New(ctx, url, vosk.WithSampleRate(e.SampleRate))
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD(config.VADEnergy, func(config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})
	reg.RegisterVAD(config.VADFlux, func(config.VADConfig) (vad.Engine, error) {
		return flux.New(), nil
	})

	// ── Audio sources ─────────────────────────────────────────────────────────

	reg.RegisterSource(config.SourceMicrophone, func(q *audio.Queue, cfg *config.Config) (audio.Producer, error) {
		return microphone.New(q, microphone.Config{
			SampleRate: cfg.Session.SampleRate,
			BlockSize:  cfg.Audio.BlockSize,
			Channels:   cfg.Audio.Channels,
		}), nil
	})
	reg.RegisterSource(config.SourceWAV, func(q *audio.Queue, cfg *config.Config) (audio.Producer, error) {
		return wavfile.New(cfg.Audio.File, q,
			wavfile.WithSampleRate(cfg.Session.SampleRate),
			wavfile.WithBlockSize(cfg.Audio.BlockSize),
		), nil
	})

	// ── Transcript sinks ──────────────────────────────────────────────────────

	reg.RegisterSink(config.SinkFile, func(_ context.Context, cfg *config.Config) (transcript.Sink, error) {
		return transcript.NewFileSink(cfg.Transcripts.Dir), nil
	})
	reg.RegisterSink(config.SinkPostgres, func(ctx context.Context, cfg *config.Config) (transcript.Sink, error) {
		return postgres.New(ctx, cfg.Transcripts.PostgresDSN)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// builtProviders are the providers handed to the application plus the engine
// wrapper main has to close on exit.
type builtProviders struct {
	providers *app.Providers
	engine    *resilience.EngineFallback
}

// buildProviders instantiates everything cfg names using the registry.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*builtProviders, error) {
	primaryEntry := cfg.PrimaryEngine()
	primary, err := reg.CreateEngine(ctx, primaryEntry)
	if err != nil {
		return nil, fmt.Errorf("create %s engine: %w", primaryEntry.Name, err)
	}
	slog.Info("provider created", "kind", "engine", "name", primaryEntry.Name)

	engine := resilience.NewEngineFallback(primary, string(primaryEntry.Name), resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Engine.CircuitBreaker.MaxFailures,
			ResetTimeout: cfg.Engine.CircuitBreaker.ResetTimeout,
		},
	})
	built := &builtProviders{
		providers: &app.Providers{Engine: engine},
		engine:    engine,
	}

	if fbEntry, ok := cfg.FallbackEngine(); ok {
		fb, err := reg.CreateEngine(ctx, fbEntry)
		if err != nil {
			// The primary already works; run without a fallback.
			slog.Warn("fallback engine unavailable", "name", fbEntry.Name, "err", err)
		} else {
			engine.AddFallback("fallback_"+string(fbEntry.Name), fb)
			slog.Info("provider created", "kind", "engine_fallback", "name", fbEntry.Name)
		}
	}

	if cfg.Session.VADOn() {
		v, err := reg.CreateVAD(cfg.VAD)
		if err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("create vad %q: %w", cfg.VAD.Name, err)
		}
		built.providers.VAD = v
		slog.Info("provider created", "kind", "vad", "name", cfg.VAD.Name)
	}

	source, err := reg.Source(cfg.Audio.Source)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("audio source: %w", err)
	}
	built.providers.Source = func(q *audio.Queue) (audio.Producer, error) {
		return source(q, cfg)
	}

	for _, name := range cfg.Transcripts.Sinks {
		s, err := reg.CreateSink(ctx, name, cfg)
		if err != nil {
			closeSinks(built.providers.Sinks)
			_ = engine.Close()
			return nil, fmt.Errorf("create %s sink: %w", name, err)
		}
		built.providers.Sinks = append(built.providers.Sinks, s)
		slog.Info("provider created", "kind", "sink", "name", name)
	}

	return built, nil
}

func closeSinks(sinks []transcript.Sink) {
	for _, s := range sinks {
		switch c := s.(type) {
		case interface{ Close() error }:
			_ = c.Close()
		case interface{ Close() }:
			c.Close()
		}
	}
}

// engineChecker fails readiness while every engine's breaker is open.
func engineChecker(built *builtProviders) health.Checker {
	return health.Checker{
		Name: "engine",
		Check: func(context.Context) error {
			open := 0
			states := built.engine.States()
			for _, st := range states {
				if st == resilience.StateOpen {
					open++
				}
			}
			if len(states) > 0 && open == len(states) {
				return errors.New("all speech engines are failing")
			}
			return nil
		},
	}
}
