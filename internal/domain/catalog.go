package domain

import (
	"fmt"
	"sort"
	"time"
)

// Catalog is the read-only tag table shared by workers and the change detector.
type Catalog struct {
	tags    map[string]TagDescriptor
	byCycle map[time.Duration][]TagDescriptor
	byMode  map[AcquisitionMode][]string
	cycles  []time.Duration
	alarms  AlarmTable
}

// NewCatalog validates the descriptors and builds the cycle and mode groupings.
// Tags keep their declaration order inside each group.
func NewCatalog(tags []TagDescriptor, alarms AlarmTable) (*Catalog, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("at least one tag must be configured")
	}
	c := &Catalog{
		tags:    make(map[string]TagDescriptor, len(tags)),
		byCycle: make(map[time.Duration][]TagDescriptor),
		byMode:  make(map[AcquisitionMode][]string),
		alarms:  alarms,
	}
	if c.alarms == nil {
		c.alarms = AlarmTable{}
	}
	for _, t := range tags {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.tags[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tag %q", t.Name)
		}
		if def, isAlarm := c.alarms[t.Name]; isAlarm {
			if t.Mode != OnChange {
				return nil, fmt.Errorf("tag %s: alarm words must use %s acquisition", t.Name, OnChange)
			}
			if !t.DataType.IsInteger() || t.BitIndex != nil {
				return nil, fmt.Errorf("tag %s: alarm words must be whole integer words", t.Name)
			}
			width := t.DataType.Bits()
			for _, pos := range def.Positions() {
				if pos < 1 || pos > width {
					return nil, fmt.Errorf("tag %s: alarm bit %d outside 1..%d for %s", t.Name, pos, width, t.DataType)
				}
			}
		}
		c.tags[t.Name] = t
		if _, seen := c.byCycle[t.CyclePeriod]; !seen {
			c.cycles = append(c.cycles, t.CyclePeriod)
		}
		c.byCycle[t.CyclePeriod] = append(c.byCycle[t.CyclePeriod], t)
		c.byMode[t.Mode] = append(c.byMode[t.Mode], t.Name)
	}
	for name := range c.alarms {
		if _, ok := c.tags[name]; !ok {
			return nil, fmt.Errorf("alarm definition for unknown tag %q", name)
		}
	}
	sort.Slice(c.cycles, func(i, j int) bool { return c.cycles[i] < c.cycles[j] })
	return c, nil
}

// Cycles returns the distinct cycle periods in ascending order.
func (c *Catalog) Cycles() []time.Duration {
	return append([]time.Duration(nil), c.cycles...)
}

func (c *Catalog) TagsForCycle(period time.Duration) []TagDescriptor {
	return append([]TagDescriptor(nil), c.byCycle[period]...)
}

func (c *Catalog) TagsForMode(mode AcquisitionMode) []string {
	return append([]string(nil), c.byMode[mode]...)
}

func (c *Catalog) Lookup(name string) (TagDescriptor, bool) {
	t, ok := c.tags[name]
	return t, ok
}

// Alarm returns the bit definitions of an alarm word.
func (c *Catalog) Alarm(name string) (AlarmDefinition, bool) {
	return c.alarms.Lookup(name)
}

func (c *Catalog) Len() int { return len(c.tags) }
