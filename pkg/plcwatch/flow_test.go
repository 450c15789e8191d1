package plcwatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfFromConfigAndStreamBuilder(t *testing.T) {
	cfg := testConfig(t)

	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if flow.Config() != cfg {
		t.Fatalf("expected Config to be returned verbatim")
	}

	dev := &stubDevice{}
	sink := &stubSink{}

	rt, err := flow.
		StreamIN(
			StreamInDevice(dev),
			StreamInObservability(&stubObservability{}),
		).
		StreamOUT(
			StreamOutSink(sink),
			StreamOutObservability(&stubObservability{}),
		)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	if rt.device != dev {
		t.Fatalf("expected custom device to be wired")
	}
	if rt.sink != sink {
		t.Fatalf("expected custom sink to be wired")
	}
}

func TestFlowStoreAndSinkFanOut(t *testing.T) {
	cfg := testConfig(t)
	flow, err := ConfFromConfig(cfg, WithFlowOptions(WithDeviceClient(&stubDevice{})))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}

	store, err := OpenStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	rt, err := flow.StreamOUT(
		StreamOutStore(store),
		StreamOutCallback("tap", func(Record) error { return nil }),
		StreamOutObservability(&stubObservability{}),
	)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	if rt.Store() != store {
		t.Fatalf("expected injected store")
	}
	if rt.sink.Name() != "fanout" {
		t.Fatalf("expected store and callback to be fanned out, got %s", rt.sink.Name())
	}
}

func TestFlowRunUsesStreamOutOptions(t *testing.T) {
	cfg := testConfig(t)

	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop immediately to avoid waiting on a real device.
	cancel()
	if err := flow.StreamIN(
		StreamInDevice(&stubDevice{}),
		StreamInObservability(&stubObservability{}),
	).Run(ctx,
		StreamOutSink(&stubSink{}),
		StreamOutObservability(&stubObservability{}),
	); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
}

func TestConfLoadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
device:
  endpoint: opc.tcp://plc:4840
tags:
  - name: Level
    cycle: 1s
    data_type: real
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	flow, err := Conf(path)
	if err != nil {
		t.Fatalf("Conf: %v", err)
	}
	if flow.Config().Store.Driver != DriverSQLite {
		t.Fatalf("expected sqlite default, got %q", flow.Config().Store.Driver)
	}
	if _, err := Conf(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFlowTablesAndCycles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tags = append(cfg.Tags, TagConfig{Name: "Counter", Cycle: time.Second, DataType: "dint"})

	flow, err := ConfFromConfig(cfg, WithFlowOptions(WithDeviceClient(&stubDevice{})))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if got := flow.Cycles(); len(got) != 2 || got[0] != 10*time.Millisecond || got[1] != time.Second {
		t.Fatalf("cycles = %v", got)
	}

	rec := &stubSink{}
	rt, err := flow.StreamOUT(
		StreamOutTables("plant_data", ""),
		StreamOutSink(rec),
		StreamOutObservability(&stubObservability{}),
	)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	if rt.tables.Data != "plant_data" || rt.tables.Alarm != "alarm_log" {
		t.Fatalf("tables = %+v", rt.tables)
	}
	if len(rt.workers) != 2 {
		t.Fatalf("expected one worker per cycle, got %d", len(rt.workers))
	}
}
