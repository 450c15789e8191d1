package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

func snap(cycle time.Duration) *domain.Snapshot {
	return domain.NewSnapshot(cycle, time.Now(), map[string]any{"t": int64(cycle)})
}

func TestMemQueuePushPopOrder(t *testing.T) {
	q, err := NewMemQueue(4, ports.OverflowBlock, time.Millisecond)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	ctx := context.Background()

	s1, s2 := snap(1), snap(2)
	if err := q.Push(ctx, s1); err != nil {
		t.Fatalf("push s1: %v", err)
	}
	if err := q.Push(ctx, s2); err != nil {
		t.Fatalf("push s2: %v", err)
	}

	got, ok, err := q.Pop(ctx, time.Second)
	if err != nil || !ok || got != s1 {
		t.Fatalf("unexpected first pop: %v ok=%v err=%v", got, ok, err)
	}
	got, ok, err = q.Pop(ctx, time.Second)
	if err != nil || !ok || got != s2 {
		t.Fatalf("unexpected second pop: %v ok=%v err=%v", got, ok, err)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
}

func TestMemQueuePopTimeout(t *testing.T) {
	q, _ := NewMemQueue(1, ports.OverflowBlock, time.Millisecond)

	start := time.Now()
	_, ok, err := q.Pop(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if ok {
		t.Fatalf("expected timeout on empty queue")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("pop returned before timeout")
	}
}

func TestMemQueuePopCancelled(t *testing.T) {
	q, _ := NewMemQueue(1, ports.OverflowBlock, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := q.Pop(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemQueuePopWakesOnPush(t *testing.T) {
	q, _ := NewMemQueue(2, ports.OverflowBlock, time.Millisecond)
	s := snap(3)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Push(context.Background(), s)
	}()

	got, ok, err := q.Pop(context.Background(), 2*time.Second)
	if err != nil || !ok || got != s {
		t.Fatalf("expected pushed snapshot, got %v ok=%v err=%v", got, ok, err)
	}
}

func TestMemQueueBlockPolicyWaitsForSpace(t *testing.T) {
	q, _ := NewMemQueue(1, ports.OverflowBlock, time.Millisecond)
	ctx := context.Background()
	if err := q.Push(ctx, snap(1)); err != nil {
		t.Fatalf("push: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Push(ctx, snap(2)) }()

	select {
	case err := <-done:
		t.Fatalf("push should block while full, returned %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	if _, ok, _ := q.Pop(ctx, time.Second); !ok {
		t.Fatalf("expected item")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked push: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked push never completed")
	}
}

func TestMemQueueBlockPolicyCancelled(t *testing.T) {
	q, _ := NewMemQueue(1, ports.OverflowBlock, time.Millisecond)
	_ = q.Push(context.Background(), snap(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Push(ctx, snap(2)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMemQueueDropOldest(t *testing.T) {
	var dropped []*domain.Snapshot
	q, _ := NewMemQueue(2, ports.OverflowDropOldest, time.Millisecond,
		WithDropHook(func(s *domain.Snapshot) { dropped = append(dropped, s) }))
	ctx := context.Background()

	s1, s2, s3 := snap(1), snap(2), snap(3)
	for _, s := range []*domain.Snapshot{s1, s2, s3} {
		if err := q.Push(ctx, s); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	if len(dropped) != 1 || dropped[0] != s1 {
		t.Fatalf("expected oldest snapshot dropped, got %v", dropped)
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected dropped count 1, got %d", q.Dropped())
	}
	got, _, _ := q.Pop(ctx, time.Second)
	if got != s2 {
		t.Fatalf("expected s2 at head after drop")
	}
}

func TestMemQueueDropNewest(t *testing.T) {
	q, _ := NewMemQueue(1, ports.OverflowDrop, time.Millisecond)
	ctx := context.Background()
	s1 := snap(1)

	if err := q.Push(ctx, s1); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := q.Push(ctx, snap(2)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	got, _, _ := q.Pop(ctx, time.Second)
	if got != s1 {
		t.Fatalf("expected original snapshot to survive")
	}
}

func TestNewMemQueueRejectsBadConfig(t *testing.T) {
	if _, err := NewMemQueue(0, ports.OverflowBlock, 0); err == nil {
		t.Fatalf("expected error for zero capacity")
	}
	if _, err := NewMemQueue(1, "spill", 0); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
