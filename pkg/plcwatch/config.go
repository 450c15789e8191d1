package plcwatch

import (
	"github.com/ghalamif/plcwatch/internal/adapters/opcua"
	"github.com/ghalamif/plcwatch/internal/adapters/sink"
	"github.com/ghalamif/plcwatch/internal/app/config"
	"github.com/ghalamif/plcwatch/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls the snapshot queue.
	Policy = ports.Policy
	// Reconnect bounds the reconnect performed after a failed read.
	Reconnect = ports.Reconnect
	// DeviceConfig holds the OPC UA endpoint and session details.
	DeviceConfig = opcua.Config
	// TagConfig describes one polled tag.
	TagConfig = config.TagConfig
	// AlarmConfig names the bits of one alarm word.
	AlarmConfig = config.AlarmConfig
	// StoreConfig selects and configures the persistent store.
	StoreConfig = config.StoreConfig
	// Tables names the data and alarm log tables.
	Tables = sink.Tables
	// KafkaConfig enables the optional Kafka publisher.
	KafkaConfig = sink.KafkaConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
)

const (
	DriverSQLite   = config.DriverSQLite
	DriverPostgres = config.DriverPostgres

	OverflowBlock      = ports.OverflowBlock
	OverflowDropOldest = ports.OverflowDropOldest
	OverflowDrop       = ports.OverflowDrop
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig decodes an in-memory YAML document.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
