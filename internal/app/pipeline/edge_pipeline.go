package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

// BuildCycleWorkers creates one worker per distinct cycle period in the catalog.
func BuildCycleWorkers(cat *domain.Catalog, reader TagReader, q ports.SnapshotQueue, obs ports.Observability) ([]*CycleWorker, error) {
	cycles := cat.Cycles()
	workers := make([]*CycleWorker, 0, len(cycles))
	for _, period := range cycles {
		w, err := NewCycleWorker(period, cat.TagsForCycle(period), reader, q, obs)
		if err != nil {
			return nil, fmt.Errorf("build worker for %s: %w", period, err)
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// RunEdgePipeline runs every worker until ctx is cancelled or each has failed.
// Workers share no cancellation: one worker losing the device does not stop
// its siblings. The first worker error is returned once all have exited.
func RunEdgePipeline(ctx context.Context, workers []*CycleWorker, obs ports.Observability) error {
	var g errgroup.Group
	running := int64(len(workers))
	obs.SetGauge(ports.MetricWorkersRunning, float64(running))

	done := make(chan struct{}, len(workers))
	for _, w := range workers {
		w := w
		g.Go(func() error {
			defer func() { done <- struct{}{} }()
			return w.Run(ctx)
		})
	}

	go func() {
		for remaining := running; remaining > 0; remaining-- {
			<-done
			obs.SetGauge(ports.MetricWorkersRunning, float64(remaining-1))
		}
	}()

	return g.Wait()
}
