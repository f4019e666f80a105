package vad

// Gate turns a per-frame detector score into VADEvents with hysteresis: a
// segment opens when the score reaches the speech threshold and stays open
// until the score falls below the release threshold.
//
// The zero value is a closed gate.
type Gate struct {
	speaking bool
}

// Next classifies one frame score against cfg's thresholds.
func (g *Gate) Next(score float64, cfg Config) VADEvent {
	ev := VADEvent{Probability: min(max(score, 0), 1)}
	switch {
	case score >= cfg.SpeechThreshold && !g.speaking:
		g.speaking = true
		ev.Type = VADSpeechStart
	case g.speaking && score >= cfg.Release():
		ev.Type = VADSpeechContinue
	case g.speaking:
		g.speaking = false
		ev.Type = VADSpeechEnd
	default:
		ev.Type = VADSilence
	}
	return ev
}

// Speaking reports whether a speech segment is currently open.
func (g *Gate) Speaking() bool { return g.speaking }

// Reset closes the gate.
func (g *Gate) Reset() { g.speaking = false }
