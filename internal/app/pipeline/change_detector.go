package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/ghalamif/plcwatch/internal/domain"
)

// DetectResult is everything one snapshot produced.
type DetectResult struct {
	Samples []domain.CyclicSample
	Events  []domain.AlarmEvent
	Unknown []string
}

// ChangeDetector turns snapshots into persisted samples and alarm transitions.
// It owns the baseline and is not safe for concurrent use; the single
// consumer goroutine drives it.
type ChangeDetector struct {
	catalog  *domain.Catalog
	timezone string
	baseline map[string]any
}

func NewChangeDetector(cat *domain.Catalog, timezone string) *ChangeDetector {
	return &ChangeDetector{
		catalog:  cat,
		timezone: timezone,
		baseline: make(map[string]any),
	}
}

// Baseline returns the last processed value of an on-change tag. Alarm words
// are stored as their unsigned bit word.
func (d *ChangeDetector) Baseline(tag string) (any, bool) {
	v, ok := d.baseline[tag]
	return v, ok
}

// Process diffs one snapshot against the baseline. On error nothing is
// emitted and the baseline is left as it was.
func (d *ChangeDetector) Process(s *domain.Snapshot) (DetectResult, error) {
	var res DetectResult
	if s == nil {
		return res, nil
	}

	names := make([]string, 0, len(s.Values))
	for name := range s.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	updates := make(map[string]any)
	for _, name := range names {
		value := s.Values[name]
		tag, ok := d.catalog.Lookup(name)
		if !ok {
			res.Unknown = append(res.Unknown, name)
			continue
		}

		switch tag.Mode {
		case domain.Cyclic:
			res.Samples = append(res.Samples, d.sample(name, value, s.SampledAt))

		case domain.OnChange:
			def, isAlarm := d.catalog.Alarm(name)
			if !isAlarm {
				prev, seen := d.baseline[name]
				if seen && domain.Equal(prev, value) {
					continue
				}
				res.Samples = append(res.Samples, d.sample(name, value, s.SampledAt))
				updates[name] = value
				continue
			}

			current, ok := domain.Word(value, tag.DataType)
			if !ok {
				return DetectResult{}, fmt.Errorf("tag %s: alarm word value %v (%T) is not an integer", name, value, value)
			}
			prevRaw, seen := d.baseline[name]
			if !seen {
				// First sight: seed with the complement over the defined bits so the
				// next diff reports every defined condition.
				updates[name] = current ^ def.Mask()
				continue
			}
			previous := prevRaw.(uint64)
			if previous == current {
				continue
			}
			events, err := d.diff(tag, def, previous, current, s.SampledAt)
			if err != nil {
				return DetectResult{}, err
			}
			res.Events = append(res.Events, events...)
			updates[name] = current
		}
	}

	for name, v := range updates {
		d.baseline[name] = v
	}
	return res, nil
}

// diff emits one event per changed bit. The state is computed once for the
// whole change set (changed & current) and shared by every event of the tag,
// so a bit that cleared alongside one that set is also reported with state 1.
func (d *ChangeDetector) diff(tag domain.TagDescriptor, def domain.AlarmDefinition, previous, current uint64, at time.Time) ([]domain.AlarmEvent, error) {
	changed := current ^ previous

	state := 0
	if changed&current != 0 {
		state = 1
	}
	class := def.Class
	if tag.SeverityClass != nil {
		class = *tag.SeverityClass
	}

	isolated := IsolateBits(changed)
	events := make([]domain.AlarmEvent, 0, len(isolated))
	for _, b := range isolated {
		pos := BitPosition(b)
		desc, err := def.Description(tag.Name, pos)
		if err != nil {
			return nil, err
		}
		events = append(events, domain.AlarmEvent{
			ProcedureCode: domain.ProcedureAlarmWord,
			SeverityClass: class,
			State:         state,
			Description:   desc,
			Tag:           tag.Name,
			BitPosition:   pos,
			Timestamp:     at,
			TimezoneID:    d.timezone,
		})
	}
	return events, nil
}

func (d *ChangeDetector) sample(name string, value any, at time.Time) domain.CyclicSample {
	return domain.CyclicSample{
		TagName:    name,
		Value:      value,
		Timestamp:  at,
		Quality:    domain.QualityGood,
		TimezoneID: d.timezone,
	}
}
