package plcwatch

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	base "github.com/ghalamif/plcwatch/pkg/plcwatch"
)

// Re-exported errors for convenience.
var (
	ErrReadFailed         = base.ErrReadFailed
	ErrReconnectExhausted = base.ErrReconnectExhausted
	ErrNotConnected       = base.ErrNotConnected
	ErrUndefinedAlarmBit  = base.ErrUndefinedAlarmBit
	ErrQueueFull          = base.ErrQueueFull
	ErrChannelSinkClosed  = base.ErrChannelSinkClosed
	ErrPublisherClosed    = base.ErrPublisherClosed
)

const (
	DriverSQLite   = base.DriverSQLite
	DriverPostgres = base.DriverPostgres

	OverflowBlock      = base.OverflowBlock
	OverflowDropOldest = base.OverflowDropOldest
	OverflowDrop       = base.OverflowDrop
)

// Type aliases so consumers can import github.com/ghalamif/plcwatch directly.
type (
	Config          = base.Config
	Policy          = base.Policy
	Reconnect       = base.Reconnect
	DeviceConfig    = base.DeviceConfig
	TagConfig       = base.TagConfig
	AlarmConfig     = base.AlarmConfig
	StoreConfig     = base.StoreConfig
	Tables          = base.Tables
	KafkaConfig     = base.KafkaConfig
	MetricsConfig   = base.MetricsConfig
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	StreamInOption  = base.StreamInOption
	StreamOutOption = base.StreamOutOption
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	Snapshot        = base.Snapshot
	Row             = base.Row
	Record          = base.Record
	RowHandler      = base.RowHandler
	TagDescriptor   = base.TagDescriptor
	DeviceClient    = base.DeviceClient
	SnapshotQueue   = base.SnapshotQueue
	Sink            = base.Sink
	Store           = base.Store
	Observability   = base.Observability
	Field           = base.Field
	Publisher       = base.Publisher
	PublisherConfig = base.PublisherConfig
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

func OpenStore(ctx context.Context, cfg *Config) (Store, error) {
	return base.OpenStore(ctx, cfg)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInDevice(d DeviceClient) StreamInOption {
	return base.StreamInDevice(d)
}

func StreamInQueue(q SnapshotQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutStore(s Store) StreamOutOption {
	return base.StreamOutStore(s)
}

func StreamOutTables(data, alarm string) StreamOutOption {
	return base.StreamOutTables(data, alarm)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn RowHandler) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithDeviceClient(d DeviceClient) RuntimeOption {
	return base.WithDeviceClient(d)
}

func WithSink(s Sink) RuntimeOption {
	return base.WithSink(s)
}

func WithStore(s Store) RuntimeOption {
	return base.WithStore(s)
}

func WithSnapshotQueue(q SnapshotQueue) RuntimeOption {
	return base.WithSnapshotQueue(q)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithLogger(l *zap.Logger) RuntimeOption {
	return base.WithLogger(l)
}

func WithRegistry(reg *prometheus.Registry) RuntimeOption {
	return base.WithRegistry(reg)
}

func WithClearOnStart(clear bool) RuntimeOption {
	return base.WithClearOnStart(clear)
}

// Sink adapters.
func NewCallbackSink(name string, fn RowHandler) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan Record, func()) {
	return base.NewChannelSink(name, buffer)
}

// External publisher.
func NewPublisher(cfg *PublisherConfig, sink Sink) (*Publisher, error) {
	return base.NewPublisher(cfg, sink)
}
