package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/ghalamif/plcwatch/internal/domain"
)

func process(t *testing.T, d *ChangeDetector, values map[string]any) DetectResult {
	t.Helper()
	res, err := d.Process(snapshotOf(time.Second, values))
	if err != nil {
		t.Fatalf("process %v: %v", values, err)
	}
	return res
}

func TestChangeDetectorAlarmScenario(t *testing.T) {
	d := NewChangeDetector(alarmCatalog(t), "Europe/Berlin")

	type want struct {
		desc  string
		state int
	}
	rounds := []struct {
		value uint64
		want  []want
	}{
		{0, nil}, // seeds the baseline
		{0, []want{{"Overpressure", 0}, {"Overtemp", 0}}},
		{1, []want{{"Overpressure", 1}}},
		{3, []want{{"Overtemp", 1}}},
		{1, []want{{"Overtemp", 0}}},
	}

	for i, r := range rounds {
		res := process(t, d, map[string]any{"ALM1": r.value})
		if len(res.Events) != len(r.want) {
			t.Fatalf("round %d: expected %d events, got %+v", i+1, len(r.want), res.Events)
		}
		for j, ev := range res.Events {
			if ev.Description != r.want[j].desc || ev.State != r.want[j].state {
				t.Fatalf("round %d event %d: got %s/%d, want %s/%d", i+1, j, ev.Description, ev.State, r.want[j].desc, r.want[j].state)
			}
			if ev.SeverityClass != 2 {
				t.Fatalf("round %d: expected severity class 2 from descriptor, got %d", i+1, ev.SeverityClass)
			}
			if ev.ProcedureCode != domain.ProcedureAlarmWord {
				t.Fatalf("round %d: unexpected procedure code %d", i+1, ev.ProcedureCode)
			}
			if ev.TimezoneID != "Europe/Berlin" {
				t.Fatalf("round %d: unexpected timezone %q", i+1, ev.TimezoneID)
			}
		}
	}
}

func TestChangeDetectorAggregateStateAppliesToEveryBit(t *testing.T) {
	d := NewChangeDetector(alarmCatalog(t), "UTC")

	// Seeding with 0b10 leaves the baseline at 0b01 (complement over bits 1 and 2).
	process(t, d, map[string]any{"ALM1": uint64(0b10)})
	if base, _ := d.Baseline("ALM1"); base != uint64(0b01) {
		t.Fatalf("expected seeded baseline 0b01, got %v", base)
	}

	res := process(t, d, map[string]any{"ALM1": uint64(0b10)})
	if len(res.Events) != 2 {
		t.Fatalf("expected events for both bits, got %+v", res.Events)
	}
	if res.Events[0].BitPosition != 1 || res.Events[1].BitPosition != 2 {
		t.Fatalf("expected ascending bit positions, got %d,%d", res.Events[0].BitPosition, res.Events[1].BitPosition)
	}
	for _, ev := range res.Events {
		if ev.State != 1 {
			t.Fatalf("bit %d: expected aggregate state 1, got %d", ev.BitPosition, ev.State)
		}
	}
}

func TestChangeDetectorSeedingYieldsSpuriousTransition(t *testing.T) {
	for _, first := range []uint64{0, 1, 2, 3} {
		d := NewChangeDetector(alarmCatalog(t), "UTC")
		if res := process(t, d, map[string]any{"ALM1": first}); len(res.Events) != 0 {
			t.Fatalf("first=%d: seeding round must not emit, got %+v", first, res.Events)
		}
		if res := process(t, d, map[string]any{"ALM1": first}); len(res.Events) == 0 {
			t.Fatalf("first=%d: expected spurious events on the next diff", first)
		}
	}
}

func TestChangeDetectorBaselineIsWholeValue(t *testing.T) {
	d := NewChangeDetector(alarmCatalog(t), "UTC")
	for _, v := range []uint64{0, 3, 1, 2} {
		process(t, d, map[string]any{"ALM1": v})
	}
	if base, _ := d.Baseline("ALM1"); base != uint64(2) {
		t.Fatalf("expected baseline to equal last raw value 2, got %v", base)
	}
}

func TestChangeDetectorCyclicEveryRoundOnChangeOnlyOnChange(t *testing.T) {
	d := NewChangeDetector(alarmCatalog(t), "UTC")

	counts := func(res DetectResult) (level, setpoint int) {
		for _, s := range res.Samples {
			switch s.TagName {
			case "Level":
				level++
			case "Setpoint":
				setpoint++
			}
		}
		return
	}

	seq := []struct {
		setpoint     int64
		wantSetpoint int
	}{
		{10, 1}, {10, 0}, {12, 1}, {12, 0},
	}
	for i, step := range seq {
		res := process(t, d, map[string]any{"Level": 4.5, "Setpoint": step.setpoint})
		level, setpoint := counts(res)
		if level != 1 {
			t.Fatalf("round %d: cyclic tag must be persisted every round", i+1)
		}
		if setpoint != step.wantSetpoint {
			t.Fatalf("round %d: expected %d setpoint samples, got %d", i+1, step.wantSetpoint, setpoint)
		}
	}

	res := process(t, d, map[string]any{"Level": 4.5})
	if res.Samples[0].Quality != domain.QualityGood {
		t.Fatalf("expected quality flag 1, got %d", res.Samples[0].Quality)
	}
}

func TestChangeDetectorUndefinedBitFailsLoudly(t *testing.T) {
	d := NewChangeDetector(alarmCatalog(t), "UTC")
	process(t, d, map[string]any{"ALM1": uint64(0)})
	process(t, d, map[string]any{"ALM1": uint64(0)})

	_, err := d.Process(snapshotOf(time.Second, map[string]any{"ALM1": uint64(0b100), "Level": 1.0}))
	if !errors.Is(err, domain.ErrUndefinedAlarmBit) {
		t.Fatalf("expected ErrUndefinedAlarmBit, got %v", err)
	}
	if want := "tag ALM1 bit 3: undefined alarm bit"; err.Error() != want {
		t.Fatalf("expected diagnostic %q, got %q", want, err.Error())
	}
	if base, _ := d.Baseline("ALM1"); base != uint64(0) {
		t.Fatalf("baseline must not move on error, got %v", base)
	}
}

func TestChangeDetectorUnknownTagsReported(t *testing.T) {
	d := NewChangeDetector(alarmCatalog(t), "UTC")
	res := process(t, d, map[string]any{"Ghost": int64(1), "Level": 2.0})
	if len(res.Unknown) != 1 || res.Unknown[0] != "Ghost" {
		t.Fatalf("expected Ghost reported as unknown, got %v", res.Unknown)
	}
	if len(res.Samples) != 1 {
		t.Fatalf("expected known cyclic tag to still be sampled")
	}
}

func TestChangeDetectorRejectsNonIntegerAlarmValue(t *testing.T) {
	d := NewChangeDetector(alarmCatalog(t), "UTC")
	if _, err := d.Process(snapshotOf(time.Second, map[string]any{"ALM1": "oops"})); err == nil {
		t.Fatalf("expected error for string alarm word")
	}
}

func TestChangeDetectorSeverityFallsBackToDefinitionClass(t *testing.T) {
	cat, err := domain.NewCatalog([]domain.TagDescriptor{
		{Name: "ALM2", CyclePeriod: time.Second, Mode: domain.OnChange, DataType: domain.TypeDWord},
	}, domain.AlarmTable{"ALM2": {Class: 7, Bits: map[int]string{1: "Door open"}}})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	d := NewChangeDetector(cat, "UTC")
	process(t, d, map[string]any{"ALM2": uint64(1)})
	res := process(t, d, map[string]any{"ALM2": uint64(1)})
	if len(res.Events) != 1 || res.Events[0].SeverityClass != 7 {
		t.Fatalf("expected class 7 from alarm definition, got %+v", res.Events)
	}
}

func TestChangeDetectorSeedExceptionWhenDefinedBitsFlip(t *testing.T) {
	d := NewChangeDetector(alarmCatalog(t), "UTC")
	process(t, d, map[string]any{"ALM1": uint64(0)})

	// The seed is 0 ^ 0b11 = 0b11, so a second value of 0b11 matches it exactly.
	if res := process(t, d, map[string]any{"ALM1": uint64(0b11)}); len(res.Events) != 0 {
		t.Fatalf("expected no events when the next value equals the seed, got %+v", res.Events)
	}
	if base, _ := d.Baseline("ALM1"); base != uint64(0b11) {
		t.Fatalf("baseline = %v", base)
	}
	if res := process(t, d, map[string]any{"ALM1": uint64(0b01)}); len(res.Events) != 1 || res.Events[0].Description != "Overtemp" {
		t.Fatalf("expected Overtemp clearing, got %+v", res.Events)
	}
}

func TestChangeDetectorAcceptsPlainGoValues(t *testing.T) {
	d := NewChangeDetector(alarmCatalog(t), "UTC")
	process(t, d, map[string]any{"ALM1": 3})
	res := process(t, d, map[string]any{"ALM1": 3})
	if len(res.Events) != 2 {
		t.Fatalf("expected both seeded bits to report, got %+v", res.Events)
	}

	// Uncomparable values must not panic the consumer.
	first := process(t, d, map[string]any{"Setpoint": []byte{1}})
	second := process(t, d, map[string]any{"Setpoint": []byte{1}})
	if len(first.Samples) != 1 || len(second.Samples) != 0 {
		t.Fatalf("expected one sample then none, got %d and %d", len(first.Samples), len(second.Samples))
	}
}
