package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

// TagReader is the part of SessionGuard a worker needs.
type TagReader interface {
	Read(ctx context.Context, tags []domain.TagDescriptor) (map[string]any, error)
}

// CycleWorker polls one cycle period's tags and queues each successful read.
type CycleWorker struct {
	period time.Duration
	tags   []domain.TagDescriptor
	names  map[string]struct{}
	reader TagReader
	queue  ports.SnapshotQueue
	obs    ports.Observability
	now    func() time.Time
}

func NewCycleWorker(period time.Duration, tags []domain.TagDescriptor, reader TagReader, q ports.SnapshotQueue, obs ports.Observability) (*CycleWorker, error) {
	if period <= 0 {
		return nil, fmt.Errorf("cycle period must be > 0")
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("cycle %s has no tags", period)
	}
	names := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		names[t.Name] = struct{}{}
	}
	return &CycleWorker{
		period: period,
		tags:   tags,
		names:  names,
		reader: reader,
		queue:  q,
		obs:    obs,
		now:    time.Now,
	}, nil
}

func (w *CycleWorker) Name() string { return "cycle-" + w.period.String() }

// Run polls until ctx is cancelled. It returns nil on cancellation and a
// wrapped ErrReconnectExhausted when the device is lost for good.
func (w *CycleWorker) Run(ctx context.Context) error {
	w.obs.LogInfo("cycle_worker_started",
		ports.Field{Key: "worker", Value: w.Name()},
		ports.Field{Key: "tags", Value: len(w.tags)})

	for {
		if ctx.Err() != nil {
			return nil
		}

		values, err := w.reader.Read(ctx, w.tags)
		switch {
		case err == nil:
			w.enqueue(ctx, values)
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrReconnectExhausted):
			w.obs.IncCounter(ports.MetricWorkerFailures, 1)
			w.obs.LogCritical("cycle_worker_failed", err, ports.Field{Key: "worker", Value: w.Name()})
			return fmt.Errorf("%s: %w", w.Name(), err)
		default:
			w.obs.LogWarn("cycle_skipped",
				ports.Field{Key: "worker", Value: w.Name()},
				ports.Field{Key: "error", Value: err.Error()})
		}

		// The session gate is already released; idle time never blocks other workers.
		if err := sleepCtx(ctx, w.period); err != nil {
			return nil
		}
	}
}

func (w *CycleWorker) enqueue(ctx context.Context, values map[string]any) {
	own := make(map[string]any, len(values))
	for name, v := range values {
		if _, ok := w.names[name]; ok {
			own[name] = v
		}
	}
	if len(own) == 0 {
		return
	}

	s := domain.NewSnapshot(w.period, w.now(), own)
	if err := w.queue.Push(ctx, s); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.obs.IncCounter(ports.MetricQueueDroppedTotal, 1)
		w.obs.LogError("snapshot_dropped", err,
			ports.Field{Key: "worker", Value: w.Name()},
			ports.Field{Key: "snapshot", Value: s.ID.String()})
		return
	}
	w.obs.IncCounter(ports.MetricSnapshotsTotal, 1)
}
