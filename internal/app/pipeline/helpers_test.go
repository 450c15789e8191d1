package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

type mockObs struct {
	mu        sync.Mutex
	counters  map[string]float64
	gauges    map[string]float64
	warnings  []string
	errors    []error
	criticals []error
}

func newMockObs() *mockObs {
	return &mockObs{counters: map[string]float64{}, gauges: map[string]float64{}}
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}
func (m *mockObs) LogWarn(msg string, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, msg)
}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}
func (m *mockObs) LogCritical(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.criticals = append(m.criticals, err)
}
func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += v
}
func (m *mockObs) ObserveLatency(string, float64) {}
func (m *mockObs) SetGauge(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = v
}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *mockObs) criticalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.criticals)
}

// fakeDevice is a scripted DeviceClient. Reads pop from reads; when the
// script is exhausted the last entry repeats.
type fakeDevice struct {
	mu           sync.Mutex
	connected    bool
	connectErrs  []error
	reads        []readResult
	readCalls    int
	connectCalls int
	disconnects  int
	inflight     int
	maxInflight  int
	readDelay    time.Duration
}

type readResult struct {
	values map[string]any
	err    error
}

var errDeviceTimeout = errors.New("device timeout")

func (f *fakeDevice) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		if len(f.connectErrs) > 1 {
			f.connectErrs = f.connectErrs[1:]
		}
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeDevice) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeDevice) Read(_ context.Context, tags []domain.TagDescriptor) (map[string]any, error) {
	f.mu.Lock()
	f.readCalls++
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	var res readResult
	if len(f.reads) > 0 {
		res = f.reads[0]
		if len(f.reads) > 1 {
			f.reads = f.reads[1:]
		}
	} else {
		res.values = make(map[string]any, len(tags))
		for _, t := range tags {
			res.values[t.Name] = int64(1)
		}
	}
	delay := f.readDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()
	return res.values, res.err
}

func (f *fakeDevice) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	return nil
}

func (f *fakeDevice) stats() (reads, connects, disconnects, maxInflight int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls, f.connectCalls, f.disconnects, f.maxInflight
}

type recordingSink struct {
	mu      sync.Mutex
	rows    map[string][]domain.Row
	failFor string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{rows: map[string][]domain.Row{}}
}

func (s *recordingSink) Insert(_ context.Context, table string, row domain.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if table == s.failFor {
		return errors.New("write rejected")
	}
	s.rows[table] = append(s.rows[table], row)
	return nil
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[table])
}

func intPtr(v int) *int { return &v }

func alarmCatalog(t interface{ Fatalf(string, ...any) }) *domain.Catalog {
	cat, err := domain.NewCatalog([]domain.TagDescriptor{
		{Name: "ALM1", CyclePeriod: time.Second, Mode: domain.OnChange, DataType: domain.TypeWord, SeverityClass: intPtr(2)},
		{Name: "Level", CyclePeriod: time.Second, Mode: domain.Cyclic, DataType: domain.TypeReal},
		{Name: "Setpoint", CyclePeriod: 5 * time.Second, Mode: domain.OnChange, DataType: domain.TypeInt},
	}, domain.AlarmTable{
		"ALM1": {Class: 9, Bits: map[int]string{1: "Overpressure", 2: "Overtemp"}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func snapshotOf(cycle time.Duration, values map[string]any) *domain.Snapshot {
	return domain.NewSnapshot(cycle, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), values)
}
