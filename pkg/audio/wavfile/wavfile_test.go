package wavfile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/MrWong99/wakegate/pkg/audio"
	"github.com/MrWong99/wakegate/pkg/audio/wavfile"
)

// writeWAV encodes samples as a 16-bit WAV file at path on fs.
func writeWAV(t *testing.T, fs afero.Fs, path string, rate, channels int, samples []int) {
	t.Helper()
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("create %q: %v", path, err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func TestProducer_UnpacedReplayQueuesEveryChunk(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	samples := make([]int, 10000)
	for i := range samples {
		samples[i] = 1000
	}
	writeWAV(t, fs, "in.wav", 16000, 1, samples)

	q := audio.NewQueue(2)
	p := wavfile.New("in.wav", q,
		wavfile.WithFs(fs),
		wavfile.WithBlockSize(4000),
		wavfile.WithPacing(false),
	)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	var got []audio.Chunk
	for len(got) < 3 {
		c, ok := q.Pop(time.Second)
		if !ok {
			t.Fatalf("timed out after %d chunks", len(got))
		}
		got = append(got, c)
	}

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after full replay")
	}

	if got[0].Samples() != 4000 || got[1].Samples() != 4000 || got[2].Samples() != 2000 {
		t.Errorf("chunk sizes = %d, %d, %d; want 4000, 4000, 2000",
			got[0].Samples(), got[1].Samples(), got[2].Samples())
	}
	if got[1].Timestamp != 250*time.Millisecond {
		t.Errorf("second chunk timestamp = %v, want 250ms", got[1].Timestamp)
	}
	if q.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", q.Dropped())
	}
	if s := audio.PCM16ToInt16(got[0].Data)[0]; s != 1000 {
		t.Errorf("first sample = %d, want 1000", s)
	}
}

func TestProducer_ConvertsStereoAndRate(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	samples := make([]int, 0, 3200*2)
	for range 3200 { // 100ms stereo at 32kHz
		samples = append(samples, 100, 300)
	}
	writeWAV(t, fs, "stereo.wav", 32000, 2, samples)

	q := audio.NewQueue(4)
	p := wavfile.New("stereo.wav", q, wavfile.WithFs(fs), wavfile.WithPacing(false))
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	c, ok := q.Pop(time.Second)
	if !ok {
		t.Fatal("no chunk queued")
	}
	if c.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", c.SampleRate)
	}
	if c.Samples() != 1600 {
		t.Errorf("Samples = %d, want 1600", c.Samples())
	}
	if s := audio.PCM16ToInt16(c.Data)[0]; s != 200 {
		t.Errorf("first sample = %d, want 200", s)
	}
}

func TestProducer_MissingFileIsDeviceError(t *testing.T) {
	t.Parallel()
	p := wavfile.New("missing.wav", audio.NewQueue(1), wavfile.WithFs(afero.NewMemMapFs()))
	err := p.Start(context.Background())
	if !errors.Is(err, audio.ErrDevice) {
		t.Fatalf("Start error = %v, want ErrDevice", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestProducer_InvalidFileIsDeviceError(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "junk.wav", []byte("not a riff file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := wavfile.New("junk.wav", audio.NewQueue(1), wavfile.WithFs(fs))
	if err := p.Start(context.Background()); !errors.Is(err, audio.ErrDevice) {
		t.Fatalf("Start error = %v, want ErrDevice", err)
	}
}

func TestProducer_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "long.wav", 16000, 1, make([]int, 16000*5))

	p := wavfile.New("long.wav", audio.NewQueue(1), wavfile.WithFs(fs))
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
