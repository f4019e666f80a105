package transcript

import (
	"context"
	"errors"
)

// Compile-time interface assertion.
var _ Sink = (*MultiSink)(nil)

// MultiSink persists every transcript to all of its sinks in order. It
// returns the identifier of the first sink that stored the text, and the
// joined errors of every sink that failed.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink returns a MultiSink over sinks. A MultiSink with a single sink
// behaves exactly like that sink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Persist implements [Sink].
func (m *MultiSink) Persist(ctx context.Context, text string) (string, error) {
	var (
		record string
		errs   []error
	)
	for _, s := range m.sinks {
		id, err := s.Persist(ctx, text)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if record == "" {
			record = id
		}
	}
	return record, errors.Join(errs...)
}
