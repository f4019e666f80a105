package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/wakegate/pkg/provider/speech"
)

// Compile-time interface assertion.
var _ speech.Engine = (*EngineFallback)(nil)

// EngineFallback implements [speech.Engine] over a primary engine and
// optional fallbacks, each guarded by its own circuit breaker. Only
// recognizer creation is protected: an established recognizer stays bound to
// the engine that created it.
type EngineFallback struct {
	group *FallbackGroup[speech.Engine]
}

// NewEngineFallback creates an [EngineFallback] with primary as the preferred
// engine. Unless cfg supplies its own IsFailure, context cancellation and
// [speech.ErrGrammarUnsupported] do not count against a breaker.
func NewEngineFallback(primary speech.Engine, primaryName string, cfg FallbackConfig) *EngineFallback {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = isEngineFailure
	}
	return &EngineFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional engine.
func (f *EngineFallback) AddFallback(name string, engine speech.Engine) {
	f.group.AddFallback(name, engine)
}

// NewRecognizer creates a recognizer on the first engine that succeeds. The
// returned error always wraps [speech.ErrEngineCreation].
func (f *EngineFallback) NewRecognizer(ctx context.Context, cfg speech.Config) (speech.Recognizer, error) {
	rec, err := Do(ctx, f.group, func(ctx context.Context, e speech.Engine) (speech.Recognizer, error) {
		return e.NewRecognizer(ctx, cfg)
	})
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, speech.ErrEngineCreation) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", speech.ErrEngineCreation, err)
}

// States returns the breaker state of every engine by name.
func (f *EngineFallback) States() map[string]State {
	out := make(map[string]State, f.group.Len())
	f.group.Each(func(name string, _ speech.Engine, s State) { out[name] = s })
	return out
}

// Close closes every engine that holds resources and returns the joined
// errors.
func (f *EngineFallback) Close() error {
	var errs []error
	f.group.Each(func(name string, e speech.Engine, _ State) {
		if c, ok := e.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close engine %s: %w", name, err))
			}
		}
	})
	return errors.Join(errs...)
}

func isEngineFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, speech.ErrGrammarUnsupported)
}
