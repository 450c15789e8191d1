package sink

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

// Fanout hands each row to every sink in order. All sinks are attempted; the
// joined error reports which ones failed.
type Fanout struct {
	sinks []ports.Sink
}

func NewFanout(sinks ...ports.Sink) *Fanout {
	out := make([]ports.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out}
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Insert(ctx context.Context, table string, row domain.Row) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Insert(ctx, table, row); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

var _ ports.Sink = (*Fanout)(nil)
