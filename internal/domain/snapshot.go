package domain

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is one poll's worth of readings produced by a single cycle worker.
type Snapshot struct {
	ID        uuid.UUID
	Cycle     time.Duration
	SampledAt time.Time
	Values    map[string]any
}

// NewSnapshot copies values so the snapshot stays immutable after hand-off.
func NewSnapshot(cycle time.Duration, sampledAt time.Time, values map[string]any) *Snapshot {
	cp := make(map[string]any, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &Snapshot{
		ID:        uuid.New(),
		Cycle:     cycle,
		SampledAt: sampledAt,
		Values:    cp,
	}
}
