package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/wakegate/pkg/provider/speech"
	"github.com/MrWong99/wakegate/pkg/provider/speech/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNew_EmptyPath_IsModelLoadError(t *testing.T) {
	_, err := whisper.New("")
	if !errors.Is(err, speech.ErrModelLoad) {
		t.Fatalf("New(\"\") error = %v, want ErrModelLoad", err)
	}
}

func TestNew_InvalidPath_IsModelLoadError(t *testing.T) {
	_, err := whisper.New("/nonexistent/path/to/model.bin")
	if !errors.Is(err, speech.ErrModelLoad) {
		t.Fatalf("New error = %v, want ErrModelLoad", err)
	}
}

func TestRecognizer_SilenceYieldsNoText(t *testing.T) {
	e, err := whisper.New(testModelPath(t), whisper.WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	r, err := e.NewRecognizer(context.Background(), speech.Config{SampleRate: 16000, Grammar: []string{"hello"}})
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	defer r.Close()

	silence := make([]byte, 8000)
	for range 4 {
		done, err := r.Feed(silence)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if done {
			t.Fatal("silence produced an utterance boundary")
		}
	}
	text, err := r.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if text != "" {
		t.Errorf("Result = %q, want empty", text)
	}
}

func TestRecognizer_FeedAfterClose(t *testing.T) {
	e, err := whisper.New(testModelPath(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	r, err := e.NewRecognizer(context.Background(), speech.Config{})
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	_ = r.Close()
	if _, err := r.Feed(make([]byte, 320)); !errors.Is(err, speech.ErrRecognizer) {
		t.Errorf("Feed after Close = %v, want ErrRecognizer", err)
	}
}
