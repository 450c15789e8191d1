package ports

import (
	"context"
	"time"

	"github.com/ghalamif/plcwatch/internal/domain"
)

type SnapshotQueue interface {
	Push(ctx context.Context, s *domain.Snapshot) error
	// Pop waits up to timeout; ok is false when nothing arrived in time.
	Pop(ctx context.Context, timeout time.Duration) (s *domain.Snapshot, ok bool, err error)
	Len() int
}
