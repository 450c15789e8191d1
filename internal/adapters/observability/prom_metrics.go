package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ghalamif/plcwatch/internal/ports"
)

// PromObs implements ports.Observability with Prometheus collectors and a zap logger.
type PromObs struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

type Option func(*promOptions)

type promOptions struct {
	registerer prometheus.Registerer
	logger     *zap.Logger
}

// WithRegisterer registers the collectors somewhere other than the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *promOptions) {
		if reg != nil {
			o.registerer = reg
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *promOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func NewPromObs(opts ...Option) *PromObs {
	o := promOptions{
		registerer: prometheus.DefaultRegisterer,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	counters := map[string]prometheus.Counter{
		ports.MetricSnapshotsTotal:    counter(ports.MetricSnapshotsTotal, "Snapshots enqueued by cycle workers."),
		ports.MetricReadFailuresTotal: counter(ports.MetricReadFailuresTotal, "Device reads that failed or returned nothing."),
		ports.MetricReconnectsTotal:   counter(ports.MetricReconnectsTotal, "Device reconnect attempts."),
		ports.MetricWorkerFailures:    counter(ports.MetricWorkerFailures, "Cycle workers stopped after reconnect exhaustion."),
		ports.MetricQueueDroppedTotal: counter(ports.MetricQueueDroppedTotal, "Snapshots lost to queue overflow policies."),
		ports.MetricSamplesTotal:      counter(ports.MetricSamplesTotal, "Tag samples written to the data table."),
		ports.MetricAlarmEventsTotal:  counter(ports.MetricAlarmEventsTotal, "Alarm bit transitions written to the alarm table."),
		ports.MetricSinkFailuresTotal: counter(ports.MetricSinkFailuresTotal, "Rows dropped because the sink rejected them."),
		ports.MetricUnknownTagsTotal:  counter(ports.MetricUnknownTagsTotal, "Snapshot values for tags missing from the catalog."),
	}
	gauges := map[string]prometheus.Gauge{
		ports.MetricQueueLength:    gauge(ports.MetricQueueLength, "Snapshots waiting in the queue."),
		ports.MetricWorkersRunning: gauge(ports.MetricWorkersRunning, "Cycle workers currently running."),
	}
	readLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricReadLatency,
		Help:    "Duration of a guarded device read, retries included.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	processing := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricSnapshotProcessing,
		Help:    "Time from dequeue to the last row of a snapshot handed to the sink.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	for _, c := range counters {
		o.registerer.MustRegister(c)
	}
	for _, g := range gauges {
		o.registerer.MustRegister(g)
	}
	o.registerer.MustRegister(readLatency, processing)

	return &PromObs{
		log:      o.logger,
		counters: counters,
		gauges:   gauges,
		histos: map[string]prometheus.Observer{
			ports.MetricReadLatency:        readLatency,
			ports.MetricSnapshotProcessing: processing,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.log.Warn(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

// LogCritical logs at error level with a critical marker; the caller decides
// whether to stop, so DPanic and Fatal are avoided.
func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err), zap.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+2)
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
