package plcwatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func publisherConfig() *PublisherConfig {
	return &PublisherConfig{
		Tags: []TagConfig{
			{Name: "Setpoint", DataType: "int", Mode: "on_change"},
			{Name: "ALM1", DataType: "word"},
		},
		Alarms: map[string]AlarmConfig{
			"ALM1": {Class: 9, Bits: map[int]string{1: "Overpressure", 2: "Overtemp"}},
		},
		Observability: &stubObservability{},
	}
}

func TestPublisherRunsChangeDetection(t *testing.T) {
	sink := &stubSink{}
	pub, err := NewPublisher(publisherConfig(), sink)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	ctx := context.Background()
	rounds := []map[string]any{
		{"Setpoint": 10, "ALM1": uint16(0)},
		{"Setpoint": 10, "ALM1": uint16(0)},
		{"Setpoint": 12, "ALM1": uint16(1)},
	}
	for _, values := range rounds {
		if err := pub.Publish(ctx, values); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pub.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data := sink.rowsFor("data_log")
	if len(data) != 2 || data[0][1] != int64(10) || data[1][1] != int64(12) {
		t.Fatalf("expected on-change rows for 10 and 12, got %v", data)
	}
	alarms := sink.rowsFor("alarm_log")
	if len(alarms) != 3 {
		t.Fatalf("expected 3 alarm rows, got %v", alarms)
	}
	if alarms[2][3] != "Overpressure" || alarms[2][2] != 1 {
		t.Fatalf("unexpected raise row: %v", alarms[2])
	}

	if err := pub.Publish(ctx, rounds[0]); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed after Close, got %v", err)
	}
}

func TestPublisherStopsOnUndefinedBit(t *testing.T) {
	pub, err := NewPublisher(publisherConfig(), &stubSink{})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	ctx := context.Background()
	_ = pub.Publish(ctx, map[string]any{"ALM1": 0})
	_ = pub.Publish(ctx, map[string]any{"ALM1": 8})

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pub.Close(closeCtx); !errors.Is(err, ErrUndefinedAlarmBit) {
		t.Fatalf("expected ErrUndefinedAlarmBit from Close, got %v", err)
	}
}

func TestPublisherValidation(t *testing.T) {
	if _, err := NewPublisher(nil, &stubSink{}); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := NewPublisher(publisherConfig(), nil); err == nil {
		t.Fatalf("expected error for nil sink")
	}

	pub, err := NewPublisher(publisherConfig(), &stubSink{})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer pub.Close(context.Background())
	if err := pub.Publish(context.Background(), map[string]any{"Setpoint": struct{}{}}); err == nil {
		t.Fatalf("expected unsupported value type error")
	}
}
