package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)
}

type Field struct {
	Key   string
	Value any
}

// Metric names shared by the pipeline and the Prometheus adapter.
const (
	MetricSnapshotsTotal     = "plcwatch_snapshots_total"
	MetricReadFailuresTotal  = "plcwatch_read_failures_total"
	MetricReconnectsTotal    = "plcwatch_reconnects_total"
	MetricWorkerFailures     = "plcwatch_worker_failures_total"
	MetricQueueDroppedTotal  = "plcwatch_queue_dropped_total"
	MetricSamplesTotal       = "plcwatch_samples_persisted_total"
	MetricAlarmEventsTotal   = "plcwatch_alarm_events_total"
	MetricSinkFailuresTotal  = "plcwatch_sink_failures_total"
	MetricUnknownTagsTotal   = "plcwatch_unknown_tags_total"
	MetricQueueLength        = "plcwatch_queue_length"
	MetricWorkersRunning     = "plcwatch_workers_running"
	MetricReadLatency        = "plcwatch_device_read_seconds"
	MetricSnapshotProcessing = "plcwatch_snapshot_processing_seconds"
)
