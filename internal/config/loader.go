package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":9464"
	DefaultSampleRate      = 16000
	DefaultVADThreshold    = 0.01
	DefaultDebounceSeconds = 0.8
	DefaultLanguage        = "en"
	DefaultBlockSize       = 4000
	DefaultQueueSize       = 200
	DefaultPopTimeout      = 500 * time.Millisecond
	DefaultJoinTimeout     = time.Second
	DefaultTranscriptDir   = "transcripts"
	DefaultMaxFailures     = 3
	DefaultResetTimeout    = 30 * time.Second
)

// ValidProviderNames lists known implementation names per registry kind.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"engine": {string(EngineWhisper), string(EngineVosk)},
	"vad":    {string(VADEnergy), string(VADFlux)},
	"source": {string(SourceMicrophone), string(SourceWAV)},
	"sink":   {string(SinkFile), string(SinkPostgres)},
}

// Default returns a configuration with every default applied and no model
// path. It is used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads the YAML configuration file at path from the OS filesystem and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs is [Load] on an arbitrary filesystem.
func LoadFs(fsys afero.Fs, path string) (*Config, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the defaults.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every zero-valued field with its default and
// lower-cases the wake and sleep words. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	s := &cfg.Session
	if len(s.WakeWords) == 0 {
		s.WakeWords = []string{"hello"}
	}
	if len(s.SleepWords) == 0 {
		s.SleepWords = []string{"goodbye"}
	}
	s.WakeWords = lowerAll(s.WakeWords)
	s.SleepWords = lowerAll(s.SleepWords)
	if s.SampleRate == 0 {
		s.SampleRate = DefaultSampleRate
	}
	if s.VADEnabled == nil {
		on := true
		s.VADEnabled = &on
	}
	if s.VADThreshold == 0 {
		s.VADThreshold = DefaultVADThreshold
	}
	if s.DebounceSeconds == 0 {
		s.DebounceSeconds = DefaultDebounceSeconds
	}

	if cfg.Engine.Language == "" {
		cfg.Engine.Language = DefaultLanguage
	}
	if cfg.Engine.CircuitBreaker.MaxFailures == 0 {
		cfg.Engine.CircuitBreaker.MaxFailures = DefaultMaxFailures
	}
	if cfg.Engine.CircuitBreaker.ResetTimeout == 0 {
		cfg.Engine.CircuitBreaker.ResetTimeout = DefaultResetTimeout
	}

	if cfg.VAD.Name == "" {
		cfg.VAD.Name = VADEnergy
	}

	a := &cfg.Audio
	if a.Source == "" {
		a.Source = SourceMicrophone
	}
	if a.BlockSize == 0 {
		a.BlockSize = DefaultBlockSize
	}
	if a.QueueSize == 0 {
		a.QueueSize = DefaultQueueSize
	}
	if a.Channels == 0 {
		a.Channels = 1
	}
	if a.PopTimeout == 0 {
		a.PopTimeout = DefaultPopTimeout
	}
	if a.JoinTimeout == 0 {
		a.JoinTimeout = DefaultJoinTimeout
	}

	if cfg.Transcripts.Sinks == nil {
		cfg.Transcripts.Sinks = []SinkName{SinkFile}
	}
	if cfg.Transcripts.Dir == "" {
		cfg.Transcripts.Dir = DefaultTranscriptDir
	}
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. The model
// path is not checked here because the command line may still supply it.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Session
	s := cfg.Session
	if len(s.WakeWords) == 0 {
		errs = append(errs, errors.New("session.wake_words must not be empty"))
	}
	if len(s.SleepWords) == 0 {
		errs = append(errs, errors.New("session.sleep_words must not be empty"))
	}
	for _, w := range s.WakeWords {
		if slices.Contains(s.SleepWords, w) {
			errs = append(errs, fmt.Errorf("session: %q is both a wake word and a sleep word", w))
		}
		if strings.ContainsAny(w, " \t") {
			errs = append(errs, fmt.Errorf("session.wake_words: %q must be a single word", w))
		}
	}
	for _, w := range s.SleepWords {
		if strings.ContainsAny(w, " \t") {
			errs = append(errs, fmt.Errorf("session.sleep_words: %q must be a single word", w))
		}
	}
	if s.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("session.sample_rate %d must be positive", s.SampleRate))
	}
	if s.VADThreshold < 0 || s.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("session.vad_threshold %.4f is out of range [0, 1]", s.VADThreshold))
	}
	if s.DebounceSeconds < 0 {
		errs = append(errs, fmt.Errorf("session.debounce_seconds %.2f must not be negative", s.DebounceSeconds))
	}

	// Engine
	validateProviderName("engine", string(cfg.Engine.Name))
	validateProviderName("engine", string(cfg.Engine.Fallback.Name))
	if cfg.Engine.CircuitBreaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("engine.circuit_breaker.max_failures %d must not be negative", cfg.Engine.CircuitBreaker.MaxFailures))
	}
	if cfg.Engine.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.circuit_breaker.reset_timeout %s must not be negative", cfg.Engine.CircuitBreaker.ResetTimeout))
	}
	if cfg.Engine.Fallback.Name == EngineVosk && cfg.Engine.Fallback.URL == "" {
		errs = append(errs, errors.New("engine.fallback.url is required when the fallback is vosk"))
	}
	if cfg.Engine.Fallback.Name == EngineWhisper && cfg.Engine.Fallback.ModelPath == "" {
		errs = append(errs, errors.New("engine.fallback.model_path is required when the fallback is whisper"))
	}

	// VAD
	validateProviderName("vad", string(cfg.VAD.Name))
	if !s.VADOn() && cfg.VAD.Name != "" && cfg.VAD.Name != VADEnergy {
		slog.Warn("vad.name is set but session.vad_enabled is false; the VAD will not run", "vad", cfg.VAD.Name)
	}

	// Audio
	a := cfg.Audio
	validateProviderName("source", string(a.Source))
	if a.Source == SourceWAV && a.File == "" {
		errs = append(errs, errors.New("audio.file is required when audio.source is wav"))
	}
	if a.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must be positive", a.BlockSize))
	}
	if a.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("audio.queue_size %d must be positive", a.QueueSize))
	}
	if a.Channels < 0 || a.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", a.Channels))
	}
	if a.PopTimeout < 0 || a.JoinTimeout < 0 {
		errs = append(errs, errors.New("audio.pop_timeout and audio.join_timeout must not be negative"))
	}

	// Transcripts
	t := cfg.Transcripts
	for i, sink := range t.Sinks {
		validateProviderName("sink", string(sink))
		if sink == SinkPostgres && t.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("transcripts.sinks[%d]: postgres requires transcripts.postgres_dsn", i))
		}
	}
	if len(t.Sinks) == 0 {
		slog.Warn("transcripts.sinks is empty; transcripts will be announced but not persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
