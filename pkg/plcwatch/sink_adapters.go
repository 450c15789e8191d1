package plcwatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/plcwatch/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("plcwatch: channel sink closed")

// Record is one row delivered to a callback or channel sink.
type Record struct {
	Table string
	Row   Row
}

// RowHandler is invoked with every row the consumer persists.
type RowHandler func(Record) error

// NewCallbackSink adapts a RowHandler into a full Sink implementation so callers
// can plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn RowHandler) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes rows via a channel; it returns the sink, the read-only channel,
// and a close function that the caller should invoke during shutdown.
func NewChannelSink(name string, buffer int) (Sink, <-chan Record, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Record, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   RowHandler
}

func (s *callbackSink) Insert(_ context.Context, table string, row domain.Row) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	return s.fn(Record{Table: table, Row: copyRow(row)})
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	mu     sync.RWMutex
	ch     chan Record
	closed chan struct{}
	once   sync.Once
}

func (s *channelSink) Insert(ctx context.Context, table string, row domain.Row) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- Record{Table: table, Row: copyRow(row)}:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

// close waits for in-flight sends so the data channel is never closed under a writer.
func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

func copyRow(row domain.Row) Row {
	if row == nil {
		return nil
	}
	out := make(Row, len(row))
	copy(out, row)
	return out
}
