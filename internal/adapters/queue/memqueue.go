package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

// ErrQueueFull is returned by Push under the "drop" policy when the queue is at capacity.
var ErrQueueFull = errors.New("snapshot queue full")

// MemQueue is a bounded in-memory queue that preserves FIFO ordering.
type MemQueue struct {
	mu       sync.Mutex
	data     []*domain.Snapshot
	cap      int
	policy   string
	idle     time.Duration
	dropped  uint64
	notEmpty chan struct{}
	notFull  chan struct{}
	onDrop   func(*domain.Snapshot)
}

type Option func(*MemQueue)

// WithDropHook is called, outside the lock, with every snapshot discarded by the overflow policy.
func WithDropHook(fn func(*domain.Snapshot)) Option {
	return func(q *MemQueue) { q.onDrop = fn }
}

func NewMemQueue(capacity int, policy string, idle time.Duration, opts ...Option) (*MemQueue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be > 0")
	}
	switch policy {
	case "":
		policy = ports.OverflowBlock
	case ports.OverflowBlock, ports.OverflowDropOldest, ports.OverflowDrop:
	default:
		return nil, fmt.Errorf("unknown overflow policy %q", policy)
	}
	if idle <= 0 {
		idle = 5 * time.Millisecond
	}
	q := &MemQueue{
		data:     make([]*domain.Snapshot, 0, capacity),
		cap:      capacity,
		policy:   policy,
		idle:     idle,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q, nil
}

func (q *MemQueue) Push(ctx context.Context, s *domain.Snapshot) error {
	for {
		q.mu.Lock()
		if len(q.data) < q.cap {
			q.data = append(q.data, s)
			q.mu.Unlock()
			signal(q.notEmpty)
			return nil
		}

		switch q.policy {
		case ports.OverflowDropOldest:
			oldest := q.data[0]
			q.data[0] = nil
			q.data = append(q.data[1:], s)
			q.dropped++
			q.mu.Unlock()
			signal(q.notEmpty)
			q.drop(oldest)
			return nil
		case ports.OverflowDrop:
			q.dropped++
			q.mu.Unlock()
			q.drop(s)
			return ErrQueueFull
		}
		q.mu.Unlock()

		// block: wait for the consumer, polling in case a wake-up was coalesced.
		timer := time.NewTimer(q.idle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-q.notFull:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *MemQueue) Pop(ctx context.Context, timeout time.Duration) (*domain.Snapshot, bool, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		q.mu.Lock()
		if len(q.data) > 0 {
			s := q.data[0]
			q.data[0] = nil
			q.data = q.data[1:]
			q.mu.Unlock()
			signal(q.notFull)
			return s, true, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-deadline:
			return nil, false, nil
		case <-q.notEmpty:
		}
	}
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

// Dropped is the number of snapshots discarded by the overflow policy.
func (q *MemQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *MemQueue) drop(s *domain.Snapshot) {
	if q.onDrop != nil {
		q.onDrop(s)
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var _ ports.SnapshotQueue = (*MemQueue)(nil)
