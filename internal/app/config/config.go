package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/plcwatch/internal/adapters/opcua"
	"github.com/ghalamif/plcwatch/internal/adapters/sink"
	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Device     opcua.Config           `yaml:"device"`
	Connection ports.Reconnect        `yaml:"connection"`
	Policy     ports.Policy           `yaml:"policy"`
	Tags       []TagConfig            `yaml:"tags"`
	Alarms     map[string]AlarmConfig `yaml:"alarms"`
	Store      StoreConfig            `yaml:"store"`
	Kafka      sink.KafkaConfig       `yaml:"kafka"`
	Metrics    MetricsConfig          `yaml:"metrics"`
	// Timezone is recorded verbatim on every persisted row.
	Timezone string `yaml:"timezone"`
}

type TagConfig struct {
	Name          string        `yaml:"name"`
	Cycle         time.Duration `yaml:"cycle"`
	Mode          string        `yaml:"mode"`
	DataType      string        `yaml:"data_type"`
	NodeID        string        `yaml:"node_id"`
	Area          *int          `yaml:"area"`
	Offset        int           `yaml:"offset"`
	BitIndex      *int          `yaml:"bit_index"`
	SeverityClass *int          `yaml:"severity_class"`
}

// AlarmConfig describes one alarm word; bit keys are 1-based positions.
type AlarmConfig struct {
	Class int            `yaml:"class"`
	Bits  map[int]string `yaml:"bits"`
}

type StoreConfig struct {
	Driver     string      `yaml:"driver"`
	Path       string      `yaml:"path"`
	DSN        string      `yaml:"dsn"`
	Hypertable bool        `yaml:"hypertable"`
	Tables     sink.Tables `yaml:"tables"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes a YAML document, applies defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize applies defaults and validates; use it on configs built in code.
func (c *Config) Normalize() error {
	c.applyDefaults()
	return c.validate()
}

func (c *Config) applyDefaults() {
	if c.Connection.Attempts == 0 {
		c.Connection.Attempts = 3
	}
	if c.Connection.Timeout == 0 {
		c.Connection.Timeout = 2 * time.Second
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.DequeueTimeout == 0 {
		c.Policy.DequeueTimeout = time.Second
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = ports.OverflowBlock
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		c.Store.Path = "logs.db"
	}
	c.Store.Tables.ApplyDefaults()
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Timezone == "" {
		c.Timezone = localTimezone()
	}

	c.Device.ApplyDefaults()
}

func (c *Config) validate() error {
	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device config: %w", err)
	}
	if c.Connection.Attempts < 1 {
		return fmt.Errorf("connection.reconnect_attempts must be >= 1")
	}
	if c.Connection.Timeout < 0 {
		return fmt.Errorf("connection.reconnect_timeout must be >= 0")
	}
	if c.Policy.MaxQueueLen < 1 {
		return fmt.Errorf("policy.max_queue_len must be >= 1")
	}
	switch c.Policy.OnQueueFull {
	case ports.OverflowBlock, ports.OverflowDropOldest, ports.OverflowDrop:
	default:
		return fmt.Errorf("policy.on_queue_full %q must be one of %s, %s, %s",
			c.Policy.OnQueueFull, ports.OverflowBlock, ports.OverflowDropOldest, ports.OverflowDrop)
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("store.driver %q must be %s or %s", c.Store.Driver, DriverSQLite, DriverPostgres)
	}
	if err := c.Store.Tables.Validate(); err != nil {
		return fmt.Errorf("store.tables: %w", err)
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	if _, err := c.BuildCatalog(); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	return nil
}

// BuildCatalog turns the tag and alarm sections into a validated catalog.
// Tags without a mode default to cyclic, alarm words to on_change.
func (c *Config) BuildCatalog() (*domain.Catalog, error) {
	tags := make([]domain.TagDescriptor, 0, len(c.Tags))
	for _, tc := range c.Tags {
		if tc.Mode == "" {
			tc.Mode = string(domain.Cyclic)
			if _, isAlarm := c.Alarms[tc.Name]; isAlarm {
				tc.Mode = string(domain.OnChange)
			}
		}
		mode, err := domain.ParseAcquisitionMode(tc.Mode)
		if err != nil {
			return nil, fmt.Errorf("tag %s: %w", tc.Name, err)
		}
		dt, err := domain.ParseDataType(tc.DataType)
		if err != nil {
			return nil, fmt.Errorf("tag %s: %w", tc.Name, err)
		}
		tags = append(tags, domain.TagDescriptor{
			Name:          tc.Name,
			CyclePeriod:   tc.Cycle,
			Mode:          mode,
			DataType:      dt,
			NodeID:        tc.NodeID,
			Area:          tc.Area,
			Offset:        tc.Offset,
			BitIndex:      tc.BitIndex,
			SeverityClass: tc.SeverityClass,
		})
	}

	alarms := make(domain.AlarmTable, len(c.Alarms))
	for name, ac := range c.Alarms {
		for pos := range ac.Bits {
			if pos < 1 || pos > 64 {
				return nil, fmt.Errorf("alarm %s: bit position %d outside 1..64", name, pos)
			}
		}
		alarms[name] = domain.AlarmDefinition{Class: ac.Class, Bits: ac.Bits}
	}

	return domain.NewCatalog(tags, alarms)
}

var (
	timezoneFile  = "/etc/timezone"
	localtimeLink = "/etc/localtime"
)

// localTimezone resolves an IANA zone id for rows when timezone is not set:
// TZ, then /etc/timezone, then the /etc/localtime symlink target, then the
// Go local zone name. The zone abbreviation is the last resort.
func localTimezone() string {
	if tz := strings.TrimSpace(os.Getenv("TZ")); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	if raw, err := os.ReadFile(timezoneFile); err == nil {
		if tz := strings.TrimSpace(string(raw)); tz != "" {
			return tz
		}
	}
	if tz := zoneFromLink(localtimeLink); tz != "" {
		return tz
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	abbr, _ := time.Now().Zone()
	return abbr
}

// zoneFromLink maps a symlink such as /etc/localtime -> ../usr/share/zoneinfo/Europe/Berlin
// to "Europe/Berlin".
func zoneFromLink(path string) string {
	target, err := os.Readlink(path)
	if err != nil {
		return ""
	}
	const marker = "zoneinfo/"
	i := strings.LastIndex(target, marker)
	if i < 0 {
		return ""
	}
	return strings.TrimPrefix(target[i+len(marker):], "posix/")
}
