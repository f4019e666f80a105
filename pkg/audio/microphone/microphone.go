// Package microphone captures audio from the default input device through
// PortAudio and feeds it into an [audio.Queue].
//
// The PortAudio binding requires cgo and the portaudio development headers,
// so the real implementation is only compiled with the "portaudio" build tag.
// Without it, [Producer.Start] fails with [audio.ErrDevice].
package microphone

import "github.com/MrWong99/wakegate/pkg/audio"

// Default capture parameters.
const (
	DefaultSampleRate = 16000
	DefaultBlockSize  = 4000
	DefaultChannels   = 1
)

// Config describes the capture stream requested from the device.
type Config struct {
	// SampleRate in Hz. Defaults to 16000.
	SampleRate int

	// BlockSize is the number of frames per capture callback, and therefore
	// per queued chunk. Defaults to 4000 (250 ms at 16 kHz).
	BlockSize int

	// Channels requested from the device. Multi-channel input is down-mixed
	// to mono before it is queued. Defaults to 1.
	Channels int
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}
	return c
}

// Compile-time assertion that Producer satisfies audio.Producer.
var _ audio.Producer = (*Producer)(nil)
