package energy_test

import (
	"testing"

	"github.com/MrWong99/wakegate/pkg/audio"
	"github.com/MrWong99/wakegate/pkg/provider/vad"
	"github.com/MrWong99/wakegate/pkg/provider/vad/energy"
)

func constFrame(n int, v int16) []byte {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return audio.Int16ToPCM16(s)
}

func TestSession_ClassifiesByRMS(t *testing.T) {
	t.Parallel()
	h, err := energy.New().NewSession(vad.Config{SampleRate: 16000, SpeechThreshold: 0.01})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer h.Close()

	steps := []struct {
		name  string
		frame []byte
		want  vad.VADEventType
	}{
		{"silence", constFrame(4000, 0), vad.VADSilence},
		{"quiet hiss", constFrame(4000, 100), vad.VADSilence}, // RMS ~0.003
		{"voice", constFrame(4000, 3277), vad.VADSpeechStart}, // RMS ~0.1
		{"voice again", constFrame(4000, 3277), vad.VADSpeechContinue},
		{"pause", constFrame(4000, 0), vad.VADSpeechEnd},
	}
	for _, s := range steps {
		ev, err := h.ProcessFrame(s.frame)
		if err != nil {
			t.Fatalf("%s: ProcessFrame: %v", s.name, err)
		}
		if ev.Type != s.want {
			t.Errorf("%s: got %v, want %v (p=%.4f)", s.name, ev.Type, s.want, ev.Probability)
		}
	}
}

func TestSession_ResetClosesSegment(t *testing.T) {
	t.Parallel()
	h, _ := energy.New().NewSession(vad.Config{SampleRate: 16000, SpeechThreshold: 0.01})
	if ev, _ := h.ProcessFrame(constFrame(160, 10000)); ev.Type != vad.VADSpeechStart {
		t.Fatalf("first frame = %v, want speech start", ev.Type)
	}
	h.Reset()
	if ev, _ := h.ProcessFrame(constFrame(160, 10000)); ev.Type != vad.VADSpeechStart {
		t.Errorf("after Reset = %v, want speech start", ev.Type)
	}
}

func TestSession_ClosedRejectsFrames(t *testing.T) {
	t.Parallel()
	h, _ := energy.New().NewSession(vad.Config{SampleRate: 16000, SpeechThreshold: 0.01})
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := h.ProcessFrame(constFrame(160, 0)); err == nil {
		t.Error("ProcessFrame after Close returned nil error")
	}
}

func TestNewSession_InvalidConfig(t *testing.T) {
	t.Parallel()
	if _, err := energy.New().NewSession(vad.Config{}); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
