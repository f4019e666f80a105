package transcript

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Compile-time interface assertion.
var _ Sink = (*FileSink)(nil)

const (
	// DefaultDir is the directory transcripts are written to when none is
	// configured.
	DefaultDir = "transcripts"

	// fileTimeLayout is the timestamp layout embedded in file names.
	fileTimeLayout = "2006-01-02_15-04-05"

	// maxCollisions bounds the suffix search for files created within the
	// same second.
	maxCollisions = 1000
)

// FileOption is a functional option for configuring a FileSink.
type FileOption func(*FileSink)

// WithFs sets the filesystem transcripts are written to. Defaults to the OS
// filesystem.
func WithFs(fsys afero.Fs) FileOption {
	return func(s *FileSink) { s.fs = fsys }
}

// WithClock overrides the time source used for file names.
func WithClock(now func() time.Time) FileOption {
	return func(s *FileSink) { s.now = now }
}

// FileSink writes each transcript to its own text file named
// transcript_<YYYY-MM-DD_HH-MM-SS>.txt inside dir. Transcripts persisted
// within the same second get a _<n> suffix so no record is overwritten.
type FileSink struct {
	dir string
	fs  afero.Fs
	now func() time.Time
}

// NewFileSink returns a FileSink writing into dir, or [DefaultDir] when dir
// is empty. The directory is created on first use.
func NewFileSink(dir string, opts ...FileOption) *FileSink {
	if dir == "" {
		dir = DefaultDir
	}
	s := &FileSink{
		dir: dir,
		fs:  afero.NewOsFs(),
		now: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dir returns the directory transcripts are written to.
func (s *FileSink) Dir() string { return s.dir }

// Persist writes strings.TrimSpace(text) followed by a newline and returns
// the path of the new file.
func (s *FileSink) Persist(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersist, err)
	}

	f, path, err := createExclusive(s.fs, s.dir, "transcript_"+s.now().Format(fileTimeLayout), ".txt")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(text + "\n"); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("%w: write %s: %w", ErrPersist, path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %w", ErrPersist, path, err)
	}
	return path, nil
}

// createExclusive creates dir/<base><ext>, or dir/<base>_<n><ext> for the
// smallest n that does not exist yet. The file is opened with O_EXCL so two
// writers can never share a name.
func createExclusive(fsys afero.Fs, dir, base, ext string) (afero.File, string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("%w: create directory %s: %w", ErrPersist, dir, err)
	}
	for n := range maxCollisions {
		name := base + ext
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", base, n, ext)
		}
		path := filepath.Join(dir, name)
		f, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("%w: create %s: %w", ErrPersist, path, err)
		}
	}
	return nil, "", fmt.Errorf("%w: more than %d files named %s in %s", ErrPersist, maxCollisions, base, dir)
}
