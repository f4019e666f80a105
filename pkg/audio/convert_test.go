package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/wakegate/pkg/audio"
)

func TestStereoToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := audio.Int16ToPCM16([]int16{100, 200, -100, -200})
	got := audio.PCM16ToInt16(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_NoOverflow(t *testing.T) {
	stereo := audio.Int16ToPCM16([]int16{32767, 32767, -32768, -32768})
	got := audio.PCM16ToInt16(audio.StereoToMono(stereo))
	if got[0] != 32767 || got[1] != -32768 {
		t.Errorf("got %v, want [32767 -32768]", got)
	}
}

func TestDownmixToMono_FourChannels(t *testing.T) {
	pcm := audio.Int16ToPCM16([]int16{100, 200, 300, 400})
	got := audio.PCM16ToInt16(audio.DownmixToMono(pcm, 4))
	if len(got) != 1 || got[0] != 250 {
		t.Errorf("got %v, want [250]", got)
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := audio.Int16ToPCM16([]int16{1, 2, 3})
	out := audio.ResampleMono16(pcm, 16000, 16000)
	if &out[0] != &pcm[0] {
		t.Error("expected input to be returned unchanged for identical rates")
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	samples := make([]int16, 480) // 10ms at 48kHz
	for i := range samples {
		samples[i] = 1000
	}
	out := audio.ResampleMono16(audio.Int16ToPCM16(samples), 48000, 16000)
	got := audio.PCM16ToInt16(out)
	if len(got) != 160 {
		t.Fatalf("len = %d, want 160", len(got))
	}
	for i, s := range got {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
}

func TestFloat32ToPCM16_ScalesAndClips(t *testing.T) {
	got := audio.PCM16ToInt16(audio.Float32ToPCM16([]float32{0, 1, -1, 2, -2, 0.5}))
	want := []int16{0, 32767, -32767, 32767, -32767, 16383}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", []int16{0, 0, 0, 0}, 0},
		{"constant half scale", []int16{16384, -16384, 16384, -16384}, 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := audio.RMS(audio.Int16ToPCM16(tc.samples))
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("RMS = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFormatConverter_PassThrough(t *testing.T) {
	c := &audio.FormatConverter{TargetRate: 16000}
	pcm := audio.Int16ToPCM16([]int16{1, 2, 3, 4})
	out := c.Convert(pcm, audio.Format{SampleRate: 16000, Channels: 1})
	if &out[0] != &pcm[0] {
		t.Error("expected zero-copy pass-through for matching format")
	}
}

func TestFormatConverter_StereoAndResample(t *testing.T) {
	c := &audio.FormatConverter{TargetRate: 16000}
	stereo := make([]int16, 0, 960)
	for range 480 { // 10ms stereo at 48kHz
		stereo = append(stereo, 200, 400)
	}
	out := audio.PCM16ToInt16(c.Convert(audio.Int16ToPCM16(stereo), audio.Format{SampleRate: 48000, Channels: 2}))
	if len(out) != 160 {
		t.Fatalf("len = %d, want 160", len(out))
	}
	if out[0] != 300 {
		t.Errorf("first sample = %d, want 300", out[0])
	}
}

func TestFormatConverter_MisalignedDropped(t *testing.T) {
	c := &audio.FormatConverter{TargetRate: 16000}
	if out := c.Convert([]byte{1, 2, 3}, audio.Format{SampleRate: 16000, Channels: 1}); out != nil {
		t.Errorf("expected nil for misaligned input, got %d bytes", len(out))
	}
}

func TestChunk_Duration(t *testing.T) {
	c := audio.Chunk{Data: make([]byte, 8000), SampleRate: 16000}
	if got := c.Duration().Milliseconds(); got != 250 {
		t.Errorf("Duration = %dms, want 250ms", got)
	}
	if (audio.Chunk{Data: make([]byte, 10)}).Duration() != 0 {
		t.Error("expected zero duration for unknown sample rate")
	}
}
