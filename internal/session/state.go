package session

import (
	"fmt"
	"strings"
	"time"
)

// State is the controller's position in the wake/sleep cycle.
type State int32

const (
	// StateIdle listens with the grammar-restricted hot recognizer for a wake
	// word. Nothing heard here is ever transcribed.
	StateIdle State = iota

	// StatePendingVoiceStart waits, after a wake word, for the first voiced
	// chunk before the full recognizer is created.
	StatePendingVoiceStart

	// StateActive transcribes with the full recognizer until a sleep word.
	StateActive
)

// String returns the lower-case state name used in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingVoiceStart:
		return "pending_voice_start"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultDebounce is the minimum interval between two accepted wake words.
const DefaultDebounce = 800 * time.Millisecond

// Config is the immutable per-controller configuration. New copies it; later
// changes by the caller have no effect.
type Config struct {
	// WakeWords open a session when recognised as an exact token.
	WakeWords []string

	// SleepWords close an active session when recognised as an exact token.
	SleepWords []string

	// SampleRate of the incoming chunks in Hz. Default: 16000.
	SampleRate int

	// DisableVAD skips voice gating: a wake goes straight from
	// PendingVoiceStart to Active on the next chunk. By default the
	// transition waits for voiced audio.
	DisableVAD bool

	// VADThreshold is the speech threshold handed to the VAD engine.
	// Default: 0.01.
	VADThreshold float64

	// Debounce suppresses wake words that follow the previous accepted wake
	// within this interval. Default: [DefaultDebounce].
	Debounce time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.VADThreshold <= 0 {
		c.VADThreshold = 0.01
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	c.WakeWords = normalizeWords(c.WakeWords)
	c.SleepWords = normalizeWords(c.SleepWords)
	return c
}

// normalizeWords lower-cases, trims and de-duplicates words, keeping their
// first-seen order.
func normalizeWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

type wordSet map[string]struct{}

func newWordSet(words []string) wordSet {
	s := make(wordSet, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// match returns the first token of text that is a member of s. Tokens are
// whitespace-separated and compared lower-cased; substrings never match.
func (s wordSet) match(text string) (string, bool) {
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		if _, ok := s[tok]; ok {
			return tok, true
		}
	}
	return "", false
}
