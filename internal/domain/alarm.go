package domain

import (
	"errors"
	"fmt"
	"sort"
)

// ProcedureAlarmWord is the procedure code recorded for events derived from alarm words.
const ProcedureAlarmWord = 2

// ErrUndefinedAlarmBit is returned when a changed bit has no description.
var ErrUndefinedAlarmBit = errors.New("undefined alarm bit")

// AlarmDefinition names the individual bits of one alarm word.
// Bit positions are 1-based: position 1 is the least significant bit.
type AlarmDefinition struct {
	Class int
	Bits  map[int]string
}

// Description returns the condition name for a 1-based bit position.
func (a AlarmDefinition) Description(tag string, position int) (string, error) {
	desc, ok := a.Bits[position]
	if !ok {
		return "", fmt.Errorf("tag %s bit %d: %w", tag, position, ErrUndefinedAlarmBit)
	}
	return desc, nil
}

// Mask has one bit set for every defined position.
func (a AlarmDefinition) Mask() uint64 {
	var m uint64
	for pos := range a.Bits {
		if pos >= 1 && pos <= 64 {
			m |= 1 << uint(pos-1)
		}
	}
	return m
}

func (a AlarmDefinition) Positions() []int {
	out := make([]int, 0, len(a.Bits))
	for pos := range a.Bits {
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}

// AlarmTable maps alarm-word tag names to their bit definitions.
type AlarmTable map[string]AlarmDefinition

func (t AlarmTable) Lookup(tag string) (AlarmDefinition, bool) {
	def, ok := t[tag]
	return def, ok
}
