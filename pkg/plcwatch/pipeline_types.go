package plcwatch

import (
	"github.com/ghalamif/plcwatch/internal/adapters/queue"
	"github.com/ghalamif/plcwatch/internal/app/pipeline"
	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

// Snapshot is one poll result: the values read for a cycle group at one instant.
type Snapshot = domain.Snapshot

// Row is the positional tuple handed to a Sink.
type Row = domain.Row

// TagDescriptor is the validated, static description of a tag.
type TagDescriptor = domain.TagDescriptor

// DeviceClient is the session-oriented device connection polled by cycle workers.
type DeviceClient = ports.DeviceClient

// SnapshotQueue is the bounded queue between the cycle workers and the consumer.
type SnapshotQueue = ports.SnapshotQueue

// Sink receives data and alarm rows; delivery is at-most-once.
type Sink = ports.Sink

// Store is a Sink that can also create its schema, be queried and be cleared.
type Store = ports.Store

// Observability emits logs and metrics about the pipeline.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

var (
	ErrReadFailed         = pipeline.ErrReadFailed
	ErrReconnectExhausted = pipeline.ErrReconnectExhausted
	ErrNotConnected       = pipeline.ErrNotConnected
	ErrUndefinedAlarmBit  = domain.ErrUndefinedAlarmBit
	ErrQueueFull          = queue.ErrQueueFull
)
