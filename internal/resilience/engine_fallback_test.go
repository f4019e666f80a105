package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/wakegate/pkg/provider/speech"
	"github.com/MrWong99/wakegate/pkg/provider/speech/mock"
)

var hotCfg = speech.Config{SampleRate: 16000, Grammar: []string{"goodbye", "hello"}}

func newEngineFallback(primary, secondary speech.Engine) *EngineFallback {
	fb := NewEngineFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	if secondary != nil {
		fb.AddFallback("secondary", secondary)
	}
	return fb
}

func TestEngineFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()
	hot := &mock.Recognizer{}
	primary := &mock.Engine{Hot: []*mock.Recognizer{hot}}
	secondary := &mock.Engine{}

	rec, err := newEngineFallback(primary, secondary).NewRecognizer(context.Background(), hotCfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != hot {
		t.Fatal("recognizer was not created by the primary")
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.CallCount())
	}
	if got := primary.NewRecognizerCalls[0].Cfg.Grammar; len(got) != 2 {
		t.Errorf("grammar not forwarded: %v", got)
	}
}

func TestEngineFallback_Failover(t *testing.T) {
	t.Parallel()
	primary := &mock.Engine{HotErr: fmt.Errorf("%w: vosk: connection refused", speech.ErrEngineCreation)}
	hot := &mock.Recognizer{}
	secondary := &mock.Engine{Hot: []*mock.Recognizer{hot}}

	rec, err := newEngineFallback(primary, secondary).NewRecognizer(context.Background(), hotCfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != hot {
		t.Fatal("recognizer was not created by the fallback")
	}
}

func TestEngineFallback_AllFailWrapsEngineCreation(t *testing.T) {
	t.Parallel()
	primary := &mock.Engine{FullErr: errors.New("primary down")}
	secondary := &mock.Engine{FullErr: errors.New("secondary down")}

	_, err := newEngineFallback(primary, secondary).NewRecognizer(context.Background(), speech.Config{SampleRate: 16000})
	if !errors.Is(err, speech.ErrEngineCreation) {
		t.Fatalf("err = %v, want ErrEngineCreation", err)
	}
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestEngineFallback_OpenBreakerStopsRedialling(t *testing.T) {
	t.Parallel()
	primary := &mock.Engine{HotErr: fmt.Errorf("%w: dial", speech.ErrEngineCreation)}
	fb := newEngineFallback(primary, nil)

	for range 5 {
		_, err := fb.NewRecognizer(context.Background(), hotCfg)
		if !errors.Is(err, speech.ErrEngineCreation) {
			t.Fatalf("err = %v, want ErrEngineCreation", err)
		}
	}
	if primary.CallCount() != 2 {
		t.Errorf("primary dialled %d times, want 2 before the breaker opened", primary.CallCount())
	}
	if fb.States()["primary"] != StateOpen {
		t.Errorf("states = %v, want primary open", fb.States())
	}
}

func TestEngineFallback_GrammarUnsupportedKeepsBreakerClosed(t *testing.T) {
	t.Parallel()
	unsupported := fmt.Errorf("%w: vosk: %w", speech.ErrEngineCreation, speech.ErrGrammarUnsupported)
	primary := &mock.Engine{HotErr: unsupported}
	fb := newEngineFallback(primary, nil)

	for range 3 {
		_, err := fb.NewRecognizer(context.Background(), hotCfg)
		if !errors.Is(err, speech.ErrGrammarUnsupported) {
			t.Fatalf("err = %v, want ErrGrammarUnsupported preserved", err)
		}
	}
	if primary.CallCount() != 3 {
		t.Errorf("primary called %d times, want 3", primary.CallCount())
	}
	if fb.States()["primary"] != StateClosed {
		t.Errorf("states = %v, want primary closed", fb.States())
	}
}

type closingEngine struct {
	mock.Engine
	closed bool
	err    error
}

func (e *closingEngine) Close() error {
	e.closed = true
	return e.err
}

func TestEngineFallback_Close(t *testing.T) {
	t.Parallel()
	primary := &closingEngine{}
	secondary := &closingEngine{err: errors.New("busy")}
	fb := newEngineFallback(primary, secondary)
	fb.AddFallback("plain", &mock.Engine{})

	err := fb.Close()
	if !primary.closed || !secondary.closed {
		t.Fatal("Close did not reach every closable engine")
	}
	if err == nil || !errors.Is(err, secondary.err) {
		t.Fatalf("err = %v, want secondary's close error", err)
	}
}

func TestEngineFallback_CancelledContext(t *testing.T) {
	t.Parallel()
	primary := &mock.Engine{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngineFallback(primary, nil).NewRecognizer(ctx, hotCfg)
	if !errors.Is(err, speech.ErrEngineCreation) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want ErrEngineCreation wrapping context.Canceled", err)
	}
	if primary.CallCount() != 0 {
		t.Errorf("primary called %d times after cancellation", primary.CallCount())
	}
}
