// Package session implements the wake/sleep-gated dictation state machine.
//
// A [Controller] consumes audio chunks one at a time on a single processing
// goroutine. While idle it feeds a cheap, grammar-restricted "hot"
// recognizer and waits for a wake word. After a wake word and the first
// voiced chunk it switches to a full-vocabulary recognizer and transcribes
// until a sleep word, then persists the collected transcript and goes back to
// listening. Nothing heard before the wake word or after the sleep word is
// ever transcribed.
//
// The controller is not safe for concurrent use: [Controller.Prepare],
// [Controller.Process] and [Controller.Shutdown] must all be called from the
// goroutine that owns it. [Controller.State] may be read from anywhere.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/wakegate/internal/event"
	"github.com/MrWong99/wakegate/internal/observe"
	"github.com/MrWong99/wakegate/internal/transcript"
	"github.com/MrWong99/wakegate/pkg/audio"
	"github.com/MrWong99/wakegate/pkg/provider/speech"
	"github.com/MrWong99/wakegate/pkg/provider/vad"
	"github.com/MrWong99/wakegate/pkg/provider/vad/energy"
)

// shutdownPersistTimeout bounds the final persist in [Controller.Shutdown],
// which runs after the processing context has been cancelled.
const shutdownPersistTimeout = 5 * time.Second

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithSink sets the transcript sink. Without one, transcripts are announced
// but not persisted.
func WithSink(s transcript.Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithVAD sets the VAD engine used to gate PendingVoiceStart. Defaults to the
// energy engine. Ignored when [Config.DisableVAD] is set.
func WithVAD(e vad.Engine) Option {
	return func(c *Controller) { c.vadEngine = e }
}

// WithRecorder archives the audio of every session through r.
func WithRecorder(r transcript.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides the wall clock used for debouncing and event
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller is the wake/sleep state machine. Create one with [New].
type Controller struct {
	cfg     Config
	wake    wordSet
	sleep   wordSet
	grammar []string

	engine    speech.Engine
	bus       *event.Bus
	sink      transcript.Sink
	vadEngine vad.Engine
	vadSess   vad.SessionHandle
	recorder  transcript.Recorder
	metrics   *observe.Metrics
	now       func() time.Time

	state atomic.Int32
	hot   speech.Recognizer
	full  speech.Recognizer
	buf   transcript.Buffer

	lastWake     time.Time
	wakeWord     string
	sessionStart time.Time
	sessionCtx   context.Context
	span         *observe.SessionSpan
	recording    bool
}

// New returns an idle Controller. cfg is copied. The hot recognizer is not
// created until [Controller.Prepare] or the first [Controller.Process] call.
func New(cfg Config, engine speech.Engine, bus *event.Bus, opts ...Option) (*Controller, error) {
	if engine == nil {
		return nil, errors.New("session: speech engine is required")
	}
	cfg = cfg.withDefaults()
	if len(cfg.WakeWords) == 0 {
		return nil, errors.New("session: at least one wake word is required")
	}
	if len(cfg.SleepWords) == 0 {
		return nil, errors.New("session: at least one sleep word is required")
	}
	for _, w := range cfg.WakeWords {
		if slices.Contains(cfg.SleepWords, w) {
			return nil, fmt.Errorf("session: %q is both a wake and a sleep word", w)
		}
	}
	if bus == nil {
		bus = event.NewBus()
	}

	c := &Controller{
		cfg:    cfg,
		wake:   newWordSet(cfg.WakeWords),
		sleep:  newWordSet(cfg.SleepWords),
		engine: engine,
		bus:    bus,
		now:    time.Now,
	}
	c.grammar = append(slices.Clone(cfg.WakeWords), cfg.SleepWords...)
	slices.Sort(c.grammar)

	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	if !cfg.DisableVAD {
		if c.vadEngine == nil {
			c.vadEngine = energy.New()
		}
		sess, err := c.vadEngine.NewSession(vad.Config{
			SampleRate:      cfg.SampleRate,
			SpeechThreshold: cfg.VADThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("session: create vad session: %w", err)
		}
		c.vadSess = sess
	}
	return c, nil
}

// State returns the current state. Safe for concurrent use.
func (c *Controller) State() State { return State(c.state.Load()) }

// Config returns a copy of the effective configuration.
func (c *Controller) Config() Config {
	cfg := c.cfg
	cfg.WakeWords = slices.Clone(cfg.WakeWords)
	cfg.SleepWords = slices.Clone(cfg.SleepWords)
	return cfg
}

func (c *Controller) setState(s State) { c.state.Store(int32(s)) }

// Prepare creates the hot recognizer if it does not exist yet. The pipeline
// calls it on start so that an unusable engine fails fast.
func (c *Controller) Prepare(ctx context.Context) error {
	if c.hot != nil {
		return nil
	}
	cfg := speech.Config{SampleRate: c.cfg.SampleRate, Grammar: c.grammar}
	r, err := c.engine.NewRecognizer(ctx, cfg)
	if errors.Is(err, speech.ErrGrammarUnsupported) {
		slog.Warn("session: engine rejected the hot grammar, listening unrestricted", "error", err)
		cfg.Grammar = nil
		r, err = c.engine.NewRecognizer(ctx, cfg)
	}
	if err != nil {
		return creationError("hot", err)
	}
	c.hot = r
	return nil
}

// Process handles one chunk according to the current state. Failures are
// reported as [event.KindError] events; Process itself never fails.
func (c *Controller) Process(ctx context.Context, chunk audio.Chunk) {
	start := time.Now()
	defer func() {
		c.metrics.ChunksProcessed.Add(ctx, 1)
		c.metrics.ChunkProcessingDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("state", c.State().String())))
	}()

	switch c.State() {
	case StateIdle:
		c.processIdle(ctx, chunk)
	case StatePendingVoiceStart:
		c.processPending(ctx, chunk)
	case StateActive:
		c.processActive(ctx, chunk)
	}
}

// ── Idle ─────────────────────────────────────────────────────────────────────

func (c *Controller) processIdle(ctx context.Context, chunk audio.Chunk) {
	if c.hot == nil {
		if err := c.Prepare(ctx); err != nil {
			c.emitError(ctx, err)
			return
		}
	}

	boundary, err := c.hot.Feed(chunk.Data)
	if err != nil {
		c.emitError(ctx, recognizerError("feed hot recognizer", err))
		return
	}
	if !boundary {
		return
	}
	text, err := c.hot.Result()
	if err != nil {
		c.emitError(ctx, recognizerError("read hot result", err))
		return
	}

	if word, ok := c.wake.match(text); ok {
		now := c.now()
		if now.Sub(c.lastWake) <= c.cfg.Debounce {
			slog.Debug("session: wake word debounced", "word", word,
				"since_last", now.Sub(c.lastWake))
			return
		}
		c.lastWake = now
		c.wakeWord = word
		if c.vadSess != nil {
			c.vadSess.Reset()
		}
		c.setState(StatePendingVoiceStart)
		slog.Info("session: wake word heard, waiting for voice", "word", word)
		return
	}
	if word, ok := c.sleep.match(text); ok {
		slog.Debug("session: sleep word ignored while idle", "word", word)
	}
}

// ── PendingVoiceStart ────────────────────────────────────────────────────────

func (c *Controller) processPending(ctx context.Context, chunk audio.Chunk) {
	if c.vadSess != nil {
		ev, err := c.vadSess.ProcessFrame(chunk.Data)
		switch {
		case err != nil:
			slog.Warn("session: vad failed, treating chunk as voiced", "error", err)
		case !ev.IsSpeech():
			return
		}
	}

	full, err := c.engine.NewRecognizer(ctx, speech.Config{SampleRate: c.cfg.SampleRate})
	if err != nil {
		c.emitError(ctx, creationError("full", err))
		c.setState(StateIdle)
		return
	}

	c.full = full
	c.buf.Reset()
	c.closeHot()
	c.setState(StateActive)

	now := c.now()
	c.sessionStart = now
	c.sessionCtx, c.span = observe.StartSession(ctx, c.wakeWord, now)
	c.metrics.Wakes.Add(ctx, 1, metric.WithAttributes(attribute.String("word", c.wakeWord)))
	c.metrics.ActiveSessions.Add(ctx, 1)

	if c.recorder != nil {
		if err := c.recorder.Begin(now); err != nil {
			c.emitError(ctx, persistError(fmt.Errorf("begin session audio: %w", err)))
		} else {
			c.recording = true
		}
	}

	observe.Logger(c.sessionCtx).Info("session: started", "word", c.wakeWord)
	c.bus.Emit(event.Event{Kind: event.KindWake, Word: c.wakeWord, Timestamp: now})

	c.processActive(ctx, chunk)
}

// ── Active ───────────────────────────────────────────────────────────────────

func (c *Controller) processActive(ctx context.Context, chunk audio.Chunk) {
	if c.recording {
		if err := c.recorder.Write(chunk.Data); err != nil {
			c.recording = false
			c.emitError(ctx, persistError(fmt.Errorf("write session audio: %w", err)))
		}
	}

	boundary, err := c.full.Feed(chunk.Data)
	if err != nil {
		c.emitError(ctx, recognizerError("feed full recognizer", err))
		return
	}

	if boundary {
		text, err := c.full.Result()
		if err != nil {
			c.emitError(ctx, recognizerError("read full result", err))
			return
		}
		text = strings.TrimSpace(text)
		if text != "" {
			c.buf.Append(text)
			c.emitTranscript(ctx, text, true)
		}
		if word, ok := c.sleep.match(text); ok {
			c.endSession(ctx, word)
		}
		return
	}

	partial, err := c.full.PartialResult()
	if err != nil {
		c.emitError(ctx, recognizerError("read partial result", err))
		return
	}
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return
	}
	c.emitTranscript(ctx, partial, false)

	word, ok := c.sleep.match(partial)
	if !ok {
		return
	}
	// The sleep word showed up in a partial: force the utterance to close so
	// the words leading up to it are kept.
	text, err := c.full.Result()
	if err != nil {
		c.emitError(ctx, recognizerError("force final result", err))
	} else if text = strings.TrimSpace(text); text != "" {
		c.buf.Append(text)
	}
	c.endSession(ctx, word)
}

// endSession persists the transcript, swaps the full recognizer back for a
// hot one and announces the sleep.
func (c *Controller) endSession(ctx context.Context, word string) {
	log := observe.Logger(c.sessionCtx)

	record, persistErr := c.persist(ctx)
	if persistErr != nil {
		c.emitError(ctx, persistErr)
	}
	c.buf.Reset()
	c.closeFull()
	c.endRecording(ctx)

	if err := c.Prepare(ctx); err != nil {
		c.emitError(ctx, err)
	}
	c.setState(StateIdle)

	now := c.now()
	c.metrics.Sleeps.Add(ctx, 1, metric.WithAttributes(attribute.String("word", word)))
	c.metrics.ActiveSessions.Add(ctx, -1)
	c.metrics.SessionDuration.Record(ctx, now.Sub(c.sessionStart).Seconds())
	c.span.End(now, word, record, persistErr)
	c.span = nil
	c.sessionCtx = nil

	log.Info("session: ended", "word", word, "record", record)
	c.bus.Emit(event.Event{Kind: event.KindSleep, Word: word, Timestamp: now, Record: record})
}

// Shutdown releases both recognizers and returns to Idle. A non-empty
// transcript of an unfinished session is persisted; no sleep event is
// emitted. Shutdown may be called with an already cancelled context.
func (c *Controller) Shutdown(ctx context.Context) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownPersistTimeout)
	defer cancel()

	if c.State() == StateActive {
		record, err := c.persist(pctx)
		if err != nil {
			c.emitError(pctx, err)
		} else if record != "" {
			observe.Logger(c.sessionCtx).Info("session: persisted on shutdown", "record", record)
		}
		c.metrics.ActiveSessions.Add(pctx, -1)
		c.span.End(c.now(), "", record, err)
		c.span = nil
		c.sessionCtx = nil
	}
	c.buf.Reset()
	c.closeFull()
	c.closeHot()
	c.endRecording(pctx)
	if c.vadSess != nil {
		c.vadSess.Reset()
	}
	c.setState(StateIdle)
}

// Close releases the VAD session. Call it once the controller is no longer
// used, after [Controller.Shutdown].
func (c *Controller) Close() error {
	if c.vadSess == nil {
		return nil
	}
	err := c.vadSess.Close()
	c.vadSess = nil
	return err
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (c *Controller) persist(ctx context.Context) (string, error) {
	text := c.buf.Text()
	if c.sink == nil || text == "" {
		return "", nil
	}
	start := time.Now()
	record, err := c.sink.Persist(ctx, text)
	c.metrics.PersistDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", persistError(err)
	}
	return record, nil
}

func (c *Controller) endRecording(ctx context.Context) {
	if !c.recording {
		return
	}
	c.recording = false
	path, err := c.recorder.End()
	if err != nil {
		c.emitError(ctx, persistError(fmt.Errorf("finish session audio: %w", err)))
		return
	}
	slog.Info("session: audio archived", "path", path)
}

func (c *Controller) closeHot() {
	if c.hot == nil {
		return
	}
	if err := c.hot.Close(); err != nil {
		slog.Warn("session: close hot recognizer", "error", err)
	}
	c.hot = nil
}

func (c *Controller) closeFull() {
	if c.full == nil {
		return
	}
	if err := c.full.Close(); err != nil {
		slog.Warn("session: close full recognizer", "error", err)
	}
	c.full = nil
}

func (c *Controller) emitTranscript(ctx context.Context, text string, final bool) {
	c.metrics.RecordSegment(ctx, final)
	c.bus.Emit(event.Event{
		Kind:      event.KindTranscript,
		Text:      text,
		IsFinal:   final,
		Timestamp: c.now(),
	})
}

func (c *Controller) emitError(ctx context.Context, err error) {
	kind := Classify(err)
	c.metrics.RecordError(ctx, string(kind))
	slog.Error("session: error", "kind", kind, "state", c.State(), "error", err)
	c.bus.Emit(event.Event{Kind: event.KindError, Err: err, Timestamp: c.now()})
}
