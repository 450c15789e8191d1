package plcwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ghalamif/plcwatch/internal/adapters/observability"
	"github.com/ghalamif/plcwatch/internal/adapters/opcua"
	"github.com/ghalamif/plcwatch/internal/adapters/queue"
	"github.com/ghalamif/plcwatch/internal/adapters/sink"
	"github.com/ghalamif/plcwatch/internal/app/pipeline"
	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

var errRuntimeClosed = errors.New("runtime already shut down")

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	device        DeviceClient
	sink          Sink
	store         Store
	queue         SnapshotQueue
	observability Observability
	logger        *zap.Logger
	registry      *prometheus.Registry
	clear         bool
}

// WithDeviceClient injects a custom device connection (simulators, other protocols).
func WithDeviceClient(d DeviceClient) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.device = d
	}
}

// WithSink injects a custom sink. Without WithStore no store is opened and
// the sink receives every row on its own.
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithStore replaces the store built from the store config section.
func WithStore(s Store) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.store = s
	}
}

// WithSnapshotQueue injects a custom queue implementation.
func WithSnapshotQueue(q SnapshotQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom logging and metrics backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithLogger sets the zap logger used by the default observability backend.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithRegistry registers the default metrics on reg and serves reg on /metrics.
func WithRegistry(reg *prometheus.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// WithClearOnStart truncates both log tables before polling begins.
func WithClearOnStart(clear bool) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.clear = clear
	}
}

// Runtime wires the cycle workers, the snapshot queue, the change detector
// and the sinks, and exposes lifecycle hooks for embedding inside any Go service.
type Runtime struct {
	cfg      *Config
	catalog  *domain.Catalog
	obs      ports.Observability
	registry *prometheus.Registry
	device   ports.DeviceClient
	guard    *pipeline.SessionGuard
	queue    ports.SnapshotQueue
	workers  []*pipeline.CycleWorker
	detector *pipeline.ChangeDetector
	store    ports.Store
	sink     ports.Sink
	tables   pipeline.Tables
	owned    []io.Closer
	clear    bool

	metricsSrv   *http.Server
	gaugeStopCh  chan struct{}
	cancel       context.CancelFunc
	done         chan struct{}
	runErr       error
	closed       bool
	mu           sync.Mutex
	shutdownOnce sync.Once
}

// NewRuntime bootstraps the default adapters (OPC UA client, in-memory queue,
// SQLite or Postgres store, optional Kafka publisher, Prometheus metrics).
// RuntimeOption values override any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	cat, err := cfg.BuildCatalog()
	if err != nil {
		return nil, err
	}

	logger := overrides.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := overrides.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs(
			observability.WithRegisterer(reg),
			observability.WithLogger(logger),
		)
	}

	q := overrides.queue
	if q == nil {
		var qopts []queue.Option
		if cfg.Policy.OnQueueFull == ports.OverflowDropOldest {
			qopts = append(qopts, queue.WithDropHook(func(s *domain.Snapshot) {
				obs.IncCounter(ports.MetricQueueDroppedTotal, 1)
				obs.LogWarn("snapshot_evicted",
					ports.Field{Key: "snapshot", Value: s.ID.String()},
					ports.Field{Key: "cycle", Value: s.Cycle.String()})
			}))
		}
		q, err = queue.NewMemQueue(cfg.Policy.MaxQueueLen, cfg.Policy.OnQueueFull, cfg.Policy.IdleSleep, qopts...)
		if err != nil {
			return nil, err
		}
	}

	device := overrides.device
	if device == nil {
		device, err = opcua.NewClient(cfg.Device)
		if err != nil {
			return nil, err
		}
	}

	guard, err := pipeline.NewSessionGuard(device, cfg.Connection, obs)
	if err != nil {
		return nil, err
	}
	workers, err := pipeline.BuildCycleWorkers(cat, guard, q, obs)
	if err != nil {
		return nil, err
	}

	var owned []io.Closer
	closeOwned := func() {
		for _, c := range owned {
			_ = c.Close()
		}
	}

	store := overrides.store
	if store == nil && overrides.sink == nil {
		store, err = OpenStore(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		owned = append(owned, store)
	}

	var sinks []ports.Sink
	if store != nil {
		sinks = append(sinks, store)
	}
	if overrides.sink != nil {
		sinks = append(sinks, overrides.sink)
	}
	if cfg.Kafka.Enabled() {
		k, err := sink.NewKafkaSink(cfg.Kafka, cfg.Store.Tables)
		if err != nil {
			closeOwned()
			return nil, err
		}
		sinks = append(sinks, k)
		owned = append(owned, k)
	}

	var snk ports.Sink
	if len(sinks) == 1 {
		snk = sinks[0]
	} else {
		snk = sink.NewFanout(sinks...)
	}

	return &Runtime{
		cfg:      cfg,
		catalog:  cat,
		obs:      obs,
		registry: reg,
		device:   device,
		guard:    guard,
		queue:    q,
		workers:  workers,
		detector: pipeline.NewChangeDetector(cat, cfg.Timezone),
		store:    store,
		sink:     snk,
		tables:   pipeline.Tables{Data: cfg.Store.Tables.Data, Alarm: cfg.Store.Tables.Alarm},
		owned:    owned,
		clear:    overrides.clear,
	}, nil
}

// Start prepares the store, connects to the device and launches one worker
// per cycle period plus the consumer. It returns once everything is running;
// use Wait or Run to block.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errRuntimeClosed
	}
	if r.done != nil {
		r.mu.Unlock()
		return fmt.Errorf("runtime already started")
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		if r.clear {
			if err := r.Clear(ctx); err != nil {
				return err
			}
		}
	}

	if err := r.guard.Connect(ctx); err != nil {
		return fmt.Errorf("connect device: %w", err)
	}
	r.obs.LogInfo("runtime_started",
		ports.Field{Key: "tags", Value: r.catalog.Len()},
		ports.Field{Key: "workers", Value: len(r.workers)})

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		// Shutdown ran while connecting; it may have closed the guard before Connect.
		_ = r.guard.Close(ctx)
		return errRuntimeClosed
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	var (
		wg                 sync.WaitGroup
		edgeErr, ingestErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		edgeErr = pipeline.RunEdgePipeline(runCtx, r.workers, r.obs)
		if runCtx.Err() == nil {
			// Every worker has given up; nothing will feed the queue again.
			r.obs.LogCritical("all_cycle_workers_stopped", edgeErr)
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		ingestErr = pipeline.RunIngestPipeline(runCtx, r.queue, r.detector, r.sink, r.tables, r.cfg.Policy, r.obs)
		if ingestErr != nil {
			cancel()
		}
	}()
	go func() {
		wg.Wait()
		r.runErr = errors.Join(edgeErr, ingestErr)
		close(done)
	}()

	r.cancel = cancel
	r.done = done
	r.metricsSrv, r.gaugeStopCh = r.startMetrics()
	return nil
}

// Wait blocks until the pipeline stops and returns the worker and consumer errors.
func (r *Runtime) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return fmt.Errorf("runtime not started")
	}
	<-done
	return r.runErr
}

// Run starts the runtime and blocks until ctx is cancelled or the pipeline
// stops on its own, then shuts down gracefully.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(err, r.Shutdown(shutdownCtx))
	}
	runErr := r.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, r.Shutdown(shutdownCtx))
}

// Shutdown stops the pipeline, the metrics server, the device session and
// every sink the runtime opened itself.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	r.shutdownOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		cancel, done := r.cancel, r.done
		srv, gaugeStop := r.metricsSrv, r.gaugeStopCh
		r.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if done != nil {
			select {
			case <-done:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("waiting for pipeline: %w", ctx.Err()))
			}
		}

		if gaugeStop != nil {
			close(gaugeStop)
		}
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}
		if err := r.guard.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		for _, c := range r.owned {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Clear truncates the data and alarm tables of the store.
func (r *Runtime) Clear(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("no store configured")
	}
	for _, table := range []string{r.tables.Data, r.tables.Alarm} {
		if err := r.store.Truncate(ctx, table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	r.obs.LogInfo("log_tables_cleared",
		ports.Field{Key: "data", Value: r.tables.Data},
		ports.Field{Key: "alarm", Value: r.tables.Alarm})
	return nil
}

// Catalog exposes the validated tag table.
func (r *Runtime) Catalog() *domain.Catalog { return r.catalog }

// Store returns the store rows are persisted to, or nil when only custom sinks are used.
func (r *Runtime) Store() Store { return r.store }

// startMetrics is called with r.mu held.
func (r *Runtime) startMetrics() (*http.Server, chan struct{}) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !r.device.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("device disconnected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              r.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics_server_exited", err, ports.Field{Key: "addr", Value: r.cfg.Metrics.Addr})
		}
	}()

	stop := make(chan struct{})
	go r.recordQueueGauge(stop, time.Second)
	return srv, stop
}

func (r *Runtime) recordQueueGauge(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge(ports.MetricQueueLength, float64(r.queue.Len()))
		}
	}
}
