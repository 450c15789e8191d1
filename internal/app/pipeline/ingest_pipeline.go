package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

// Tables names the two log tables rows are written to.
type Tables struct {
	Data  string
	Alarm string
}

// RunIngestPipeline is the single consumer: it pops snapshots, runs them
// through the detector and hands the rows to the sink. It returns nil when ctx
// is cancelled and an error when a snapshot cannot be resolved against the
// alarm definitions.
func RunIngestPipeline(ctx context.Context, q ports.SnapshotQueue, det *ChangeDetector, sink ports.Sink, tables Tables, pol ports.Policy, obs ports.Observability) error {
	timeout := pol.DequeueTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	for {
		s, ok, err := q.Pop(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		obs.SetGauge(ports.MetricQueueLength, float64(q.Len()))
		if !ok {
			continue
		}

		if err := ProcessSnapshot(ctx, s, det, sink, tables, obs); err != nil {
			return err
		}
	}
}

// ProcessSnapshot runs one snapshot through the detector and writes the
// resulting rows. Only a detector error is returned; sink failures are
// logged, counted and the row is dropped.
func ProcessSnapshot(ctx context.Context, s *domain.Snapshot, det *ChangeDetector, sink ports.Sink, tables Tables, obs ports.Observability) error {
	start := time.Now()
	res, err := det.Process(s)
	if err != nil {
		obs.LogCritical("snapshot_rejected", err,
			ports.Field{Key: "snapshot", Value: s.ID.String()},
			ports.Field{Key: "cycle", Value: s.Cycle.String()})
		return err
	}
	if len(res.Unknown) > 0 {
		obs.IncCounter(ports.MetricUnknownTagsTotal, float64(len(res.Unknown)))
		obs.LogWarn("unknown_tags_ignored",
			ports.Field{Key: "snapshot", Value: s.ID.String()},
			ports.Field{Key: "tags", Value: res.Unknown})
	}

	for _, sample := range res.Samples {
		if insert(ctx, sink, tables.Data, sample.Row(), s, obs) {
			obs.IncCounter(ports.MetricSamplesTotal, 1)
		}
	}
	if len(res.Events) > 0 {
		obs.LogInfo("alarm_transitions_detected",
			ports.Field{Key: "snapshot", Value: s.ID.String()},
			ports.Field{Key: "events", Value: len(res.Events)})
	}
	for _, ev := range res.Events {
		if insert(ctx, sink, tables.Alarm, ev.Row(), s, obs) {
			obs.IncCounter(ports.MetricAlarmEventsTotal, 1)
		}
	}
	obs.ObserveLatency(ports.MetricSnapshotProcessing, time.Since(start).Seconds())
	return nil
}

// insert drops the row on failure; delivery is at-most-once.
func insert(ctx context.Context, sink ports.Sink, table string, row domain.Row, s *domain.Snapshot, obs ports.Observability) bool {
	if err := sink.Insert(ctx, table, row); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return false
		}
		obs.IncCounter(ports.MetricSinkFailuresTotal, 1)
		obs.LogError("sink_insert_failed", err,
			ports.Field{Key: "sink", Value: sink.Name()},
			ports.Field{Key: "table", Value: table},
			ports.Field{Key: "snapshot", Value: s.ID.String()})
		return false
	}
	return true
}
