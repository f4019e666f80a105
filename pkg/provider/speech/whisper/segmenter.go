package whisper

import (
	"encoding/binary"
	"math"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// format fed to recognizers.
	bitsPerSample = 16

	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
	// units) below which a chunk is treated as silence.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
)

// segmenter splits a PCM stream into utterances using trailing silence. It
// holds no goroutines; the recognizer drives it synchronously from Feed.
type segmenter struct {
	sampleRate          int
	rmsThreshold        float64
	silenceThresholdMs  int
	maxBufferDurationMs int

	buffer    []byte
	hadSpeech bool
	silenceMs int
}

// push appends chunk to the current utterance. It returns the complete
// utterance and true once enough trailing silence has been observed, or when
// the buffer reaches its maximum duration.
func (s *segmenter) push(chunk []byte) ([]byte, bool) {
	rms := computeRMS(chunk)
	chunkMs := chunkDurationMs(chunk, s.sampleRate)

	if rms < s.rmsThreshold {
		if !s.hadSpeech {
			return nil, false
		}
		s.silenceMs += chunkMs
		s.buffer = append(s.buffer, chunk...)
		if s.silenceMs >= s.silenceThresholdMs {
			return s.take(), true
		}
		return nil, false
	}

	s.hadSpeech = true
	s.silenceMs = 0
	s.buffer = append(s.buffer, chunk...)
	if s.maxBufferDurationMs > 0 && chunkDurationMs(s.buffer, s.sampleRate) >= s.maxBufferDurationMs {
		return s.take(), true
	}
	return nil, false
}

// flush returns whatever speech has been buffered so far, or nil if the
// buffer holds only silence.
func (s *segmenter) flush() []byte {
	if !s.hadSpeech {
		s.reset()
		return nil
	}
	return s.take()
}

func (s *segmenter) take() []byte {
	pcm := s.buffer
	s.reset()
	return pcm
}

func (s *segmenter) reset() {
	s.buffer = nil
	s.hadSpeech = false
	s.silenceMs = 0
}

// computeRMS returns the root-mean-square energy of 16-bit PCM samples.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// chunkDurationMs returns the duration of mono 16-bit PCM in milliseconds.
func chunkDurationMs(chunk []byte, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * (bitsPerSample / 8)
	return len(chunk) * 1000 / bytesPerSec
}

// pcmToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. A trailing odd byte is
// ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}
