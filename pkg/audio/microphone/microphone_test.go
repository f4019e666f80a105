//go:build !portaudio

package microphone

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/wakegate/pkg/audio"
)

func TestStub_StartReturnsDeviceError(t *testing.T) {
	t.Parallel()
	p := New(audio.NewQueue(1), Config{})
	err := p.Start(context.Background())
	if !errors.Is(err, audio.ErrDevice) {
		t.Fatalf("Start error = %v, want ErrDevice", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()
	c := Config{}.withDefaults()
	if c.SampleRate != DefaultSampleRate || c.BlockSize != DefaultBlockSize || c.Channels != DefaultChannels {
		t.Errorf("defaults = %+v", c)
	}
	c = Config{SampleRate: 8000, BlockSize: 160, Channels: 2}.withDefaults()
	if c.SampleRate != 8000 || c.BlockSize != 160 || c.Channels != 2 {
		t.Errorf("explicit values overwritten: %+v", c)
	}
}
