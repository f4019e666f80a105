package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/wakegate/internal/transcript"
	"github.com/MrWong99/wakegate/pkg/audio"
	"github.com/MrWong99/wakegate/pkg/provider/speech"
	"github.com/MrWong99/wakegate/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// EngineEntry is everything a speech engine factory needs to construct one
// engine instance. The primary engine and the fallback engine are described
// by separate entries.
type EngineEntry struct {
	// Name selects the registered factory.
	Name EngineName

	// ModelPath is the model file (whisper) or server URL (vosk).
	ModelPath string

	// URL is the server address for network engines. Factories fall back to
	// ModelPath when it is empty.
	URL string

	// Language is the decoding language.
	Language string

	// SampleRate of the audio the engine will receive.
	SampleRate int
}

// PrimaryEngine returns the entry of the main engine.
func (c *Config) PrimaryEngine() EngineEntry {
	return EngineEntry{
		Name:       c.EffectiveEngine(),
		ModelPath:  c.Session.ModelPath,
		URL:        c.Engine.URL,
		Language:   c.Engine.Language,
		SampleRate: c.Session.SampleRate,
	}
}

// FallbackEngine returns the entry of the fallback engine and whether one is
// configured.
func (c *Config) FallbackEngine() (EngineEntry, bool) {
	fb := c.Engine.Fallback
	if fb.Name == "" {
		return EngineEntry{}, false
	}
	return EngineEntry{
		Name:       fb.Name,
		ModelPath:  fb.ModelPath,
		URL:        fb.URL,
		Language:   c.Engine.Language,
		SampleRate: c.Session.SampleRate,
	}, true
}

// EngineFactory constructs a speech engine.
type EngineFactory func(ctx context.Context, entry EngineEntry) (speech.Engine, error)

// VADFactory constructs a VAD engine.
type VADFactory func(cfg VADConfig) (vad.Engine, error)

// SourceFactory constructs a fresh audio producer that pushes onto q. The
// pipeline calls it on every start.
type SourceFactory func(q *audio.Queue, cfg *Config) (audio.Producer, error)

// SinkFactory constructs a transcript sink.
type SinkFactory func(ctx context.Context, cfg *Config) (transcript.Sink, error)

// Registry maps implementation names to their constructor functions for each
// pluggable component. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[EngineName]EngineFactory
	vads    map[VADName]VADFactory
	sources map[SourceName]SourceFactory
	sinks   map[SinkName]SinkFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[EngineName]EngineFactory),
		vads:    make(map[VADName]VADFactory),
		sources: make(map[SourceName]SourceFactory),
		sinks:   make(map[SinkName]SinkFactory),
	}
}

// RegisterEngine registers a speech engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEngine(name EngineName, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name VADName, factory VADFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vads[name] = factory
}

// RegisterSource registers an audio source factory under name.
func (r *Registry) RegisterSource(name SourceName, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// RegisterSink registers a transcript sink factory under name.
func (r *Registry) RegisterSink(name SinkName, factory SinkFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = factory
}

// CreateEngine instantiates a speech engine using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateEngine(ctx context.Context, entry EngineEntry) (speech.Engine, error) {
	r.mu.RLock()
	factory, ok := r.engines[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: engine/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// CreateVAD instantiates a VAD engine using the factory registered under
// cfg.Name.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vads[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// Source returns the audio source factory registered under name. Unlike the
// other lookups it does not construct anything: producers are built fresh on
// every pipeline start.
func (r *Registry) Source(name SourceName) (SourceFactory, error) {
	r.mu.RLock()
	factory, ok := r.sources[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrProviderNotRegistered, name)
	}
	return factory, nil
}

// CreateSink instantiates the transcript sink registered under name.
func (r *Registry) CreateSink(ctx context.Context, name SinkName, cfg *Config) (transcript.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sink/%q", ErrProviderNotRegistered, name)
	}
	return factory(ctx, cfg)
}
