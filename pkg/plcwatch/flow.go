package plcwatch

import (
	"context"
	"fmt"
	"time"
)

// Flow assembles a Runtime in two halves. StreamIN decides where snapshots
// come from (the device session polled by the cycle workers, and the queue
// they feed); StreamOUT decides where the consumer writes data_log and
// alarm_log rows.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption adjusts a Flow right after its config is loaded.
type FlowOption func(*Flow)

// StreamInOption overrides the acquisition half: device session, snapshot queue.
type StreamInOption func(*Flow)

// StreamOutOption overrides the persistence half: store, sinks, table names.
type StreamOutOption func(*Flow)

// Conf reads a PLCWatch YAML file and returns a builder for it.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig starts a builder from a Config assembled in code.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config exposes the tag, alarm and store settings; edits made before
// StreamOUT are picked up by the runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Cycles lists the configured cycle periods, one cycle worker each.
func (f *Flow) Cycles() []time.Duration {
	if f == nil {
		return nil
	}
	seen := make(map[time.Duration]bool)
	var out []time.Duration
	for _, t := range f.cfg.Tags {
		if !seen[t.Cycle] {
			seen[t.Cycle] = true
			out = append(out, t.Cycle)
		}
	}
	return out
}

func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT applies the persistence overrides and builds the Runtime.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run builds the Runtime and polls until ctx is cancelled or the pipeline stops.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// StreamInDevice replaces the OPC UA session, e.g. with a simulator or another
// request/response protocol. Its values are normalized before change detection.
func StreamInDevice(d DeviceClient) StreamInOption {
	return func(f *Flow) {
		if f != nil && d != nil {
			f.appendOptions(WithDeviceClient(d))
		}
	}
}

// StreamInQueue replaces the bounded in-memory snapshot queue.
func StreamInQueue(q SnapshotQueue) StreamInOption {
	return func(f *Flow) {
		if f != nil && q != nil {
			f.appendOptions(WithSnapshotQueue(q))
		}
	}
}

func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutSink sends every data and alarm row to s. Unless a store is also
// given, no database is opened.
func StreamOutSink(s Sink) StreamOutOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithSink(s))
		}
	}
}

// StreamOutStore replaces the sqlite or postgres store named in the config.
func StreamOutStore(s Store) StreamOutOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithStore(s))
		}
	}
}

// StreamOutTables renames the data and alarm log tables. Empty names keep the
// configured ones.
func StreamOutTables(data, alarm string) StreamOutOption {
	return func(f *Flow) {
		if f == nil {
			return
		}
		if data != "" {
			f.cfg.Store.Tables.Data = data
		}
		if alarm != "" {
			f.cfg.Store.Tables.Alarm = alarm
		}
	}
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutCallback hands each persisted row, tagged with its table, to fn.
func StreamOutCallback(name string, fn RowHandler) StreamOutOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithSink(NewCallbackSink(name, fn)))
		}
	}
}

func (f *Flow) appendOptions(opts ...RuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
