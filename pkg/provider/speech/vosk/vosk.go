// Package vosk implements speech.Engine against a Vosk server speaking the
// vosk-server WebSocket protocol.
//
// Each Recognizer owns one WebSocket connection. The first text frame carries
// the decoder configuration (sample rate and optional phrase list); every
// following binary frame carries PCM audio and is answered with exactly one
// JSON text frame, either {"partial": "..."} or {"text": "..."}. Sending
// {"eof": 1} forces the server to finalise the current utterance.
//
// The protocol is strictly request/response, so the recognizer needs no
// background goroutines: Feed writes a frame and blocks for its reply.
package vosk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/wakegate/pkg/provider/speech"
)

// Compile-time interface assertions.
var (
	_ speech.Engine     = (*Engine)(nil)
	_ speech.Recognizer = (*recognizer)(nil)
)

const (
	defaultSampleRate     = 16000
	defaultRequestTimeout = 5 * time.Second
	defaultDialTimeout    = 5 * time.Second
)

// Engine dials a Vosk server for every new Recognizer.
type Engine struct {
	url            string
	sampleRate     int
	grammar        bool
	requestTimeout time.Duration
	dialTimeout    time.Duration
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithSampleRate sets the default sample rate in Hz used when a recognizer
// Config leaves it zero. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(e *Engine) {
		if rate > 0 {
			e.sampleRate = rate
		}
	}
}

// WithGrammar controls whether the server supports phrase-list restricted
// decoding. Servers running large models reject phrase lists; when disabled
// grammar-restricted recognizers fail with [speech.ErrGrammarUnsupported].
// Defaults to true.
func WithGrammar(enabled bool) Option {
	return func(e *Engine) { e.grammar = enabled }
}

// WithRequestTimeout bounds each request/response round trip. Defaults to 5s.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.requestTimeout = d
		}
	}
}

// WithDialTimeout bounds connection establishment. Defaults to 5s.
func WithDialTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.dialTimeout = d
		}
	}
}

// New creates an Engine for the server at serverURL (ws:// or wss://) and
// verifies that the server is reachable. An invalid URL or an unreachable
// server is reported as [speech.ErrModelLoad].
func New(ctx context.Context, serverURL string, opts ...Option) (*Engine, error) {
	u, err := url.Parse(serverURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("%w: vosk: invalid server url %q", speech.ErrModelLoad, serverURL)
	}
	e := &Engine{
		url:            serverURL,
		sampleRate:     defaultSampleRate,
		grammar:        true,
		requestTimeout: defaultRequestTimeout,
		dialTimeout:    defaultDialTimeout,
	}
	for _, o := range opts {
		o(e)
	}

	conn, err := e.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: vosk: %v", speech.ErrModelLoad, err)
	}
	conn.Close(websocket.StatusNormalClosure, "probe")
	return e, nil
}

// IsURL reports whether modelPath names a Vosk server rather than a local
// model file.
func IsURL(modelPath string) bool {
	return strings.HasPrefix(modelPath, "ws://") || strings.HasPrefix(modelPath, "wss://")
}

func (e *Engine) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, e.dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, e.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", e.url, err)
	}
	return conn, nil
}

// NewRecognizer opens a connection and sends the decoder configuration.
func (e *Engine) NewRecognizer(ctx context.Context, cfg speech.Config) (speech.Recognizer, error) {
	if cfg.Restricted() && !e.grammar {
		return nil, fmt.Errorf("%w: vosk: %w", speech.ErrEngineCreation, speech.ErrGrammarUnsupported)
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = e.sampleRate
	}

	conn, err := e.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: vosk: %v", speech.ErrEngineCreation, err)
	}
	conn.SetReadLimit(1 << 20)

	msg, err := json.Marshal(configMessage{Config: decoderConfig{
		SampleRate: sr,
		PhraseList: cfg.Grammar,
	}})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "config")
		return nil, fmt.Errorf("%w: vosk: encode config: %v", speech.ErrEngineCreation, err)
	}
	wctx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, msg); err != nil {
		conn.Close(websocket.StatusInternalError, "config")
		return nil, fmt.Errorf("%w: vosk: send config: %v", speech.ErrEngineCreation, err)
	}

	return &recognizer{conn: conn, timeout: e.requestTimeout}, nil
}

// ---- wire format ---------------------------------------------------------------

type configMessage struct {
	Config decoderConfig `json:"config"`
}

type decoderConfig struct {
	SampleRate int      `json:"sample_rate"`
	PhraseList []string `json:"phrase_list,omitempty"`
}

// response is a single server reply. Text is set for finals and Partial for
// interim hypotheses.
type response struct {
	Text    *string `json:"text"`
	Partial *string `json:"partial"`
}

// parseResponse decodes a server reply. Malformed JSON is logged and treated
// as an empty partial.
func parseResponse(data []byte) response {
	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		slog.Debug("vosk: malformed response", "error", err)
		return response{}
	}
	return r
}

// ---- recognizer ------------------------------------------------------------------

type recognizer struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu         sync.Mutex
	partial    string
	final      string
	hasPending bool
	closed     bool

	// ended is set once {"eof": 1} was sent; vosk-server finishes the
	// stream after answering it.
	ended bool
}

// usable returns the error for a recognizer that can no longer decode.
func (r *recognizer) usable() error {
	switch {
	case r.closed:
		return fmt.Errorf("%w: vosk: recognizer is closed", speech.ErrRecognizer)
	case r.ended:
		return fmt.Errorf("%w: vosk: stream already finalised", speech.ErrRecognizer)
	}
	return nil
}

// roundTrip sends one frame and reads the server's single reply.
func (r *recognizer) roundTrip(typ websocket.MessageType, payload []byte) (response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.conn.Write(ctx, typ, payload); err != nil {
		return response{}, fmt.Errorf("%w: vosk: write: %v", speech.ErrRecognizer, err)
	}
	_, data, err := r.conn.Read(ctx)
	if err != nil {
		return response{}, fmt.Errorf("%w: vosk: read: %v", speech.ErrRecognizer, err)
	}
	return parseResponse(data), nil
}

func (r *recognizer) Feed(pcm []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable(); err != nil {
		return false, err
	}
	resp, err := r.roundTrip(websocket.MessageBinary, pcm)
	if err != nil {
		return false, err
	}
	if resp.Text != nil {
		r.final = *resp.Text
		r.hasPending = true
		r.partial = ""
		return true, nil
	}
	r.partial = ""
	if resp.Partial != nil {
		r.partial = *resp.Partial
	}
	return false, nil
}

// Result returns the pending final text. Without one it sends {"eof": 1};
// the recognizer is finished afterwards and only Close remains usable.
func (r *recognizer) Result() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", fmt.Errorf("%w: vosk: recognizer is closed", speech.ErrRecognizer)
	}
	if r.hasPending {
		text := r.final
		r.final, r.hasPending = "", false
		return text, nil
	}
	if err := r.usable(); err != nil {
		return "", err
	}
	r.ended = true
	resp, err := r.roundTrip(websocket.MessageText, []byte(`{"eof" : 1}`))
	if err != nil {
		return "", err
	}
	r.partial = ""
	if resp.Text == nil {
		return "", nil
	}
	return *resp.Text, nil
}

func (r *recognizer) PartialResult() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", fmt.Errorf("%w: vosk: recognizer is closed", speech.ErrRecognizer)
	}
	return r.partial, nil
}

func (r *recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.conn.Close(websocket.StatusNormalClosure, "recognizer closed"); err != nil {
		slog.Debug("vosk: close connection", "error", err)
	}
	return nil
}
