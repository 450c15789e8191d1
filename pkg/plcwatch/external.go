package plcwatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/plcwatch/internal/adapters/observability"
	"github.com/ghalamif/plcwatch/internal/adapters/queue"
	"github.com/ghalamif/plcwatch/internal/app/config"
	"github.com/ghalamif/plcwatch/internal/app/pipeline"
	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

// ErrPublisherClosed is returned by Publish after Close or after the consumer stopped.
var ErrPublisherClosed = errors.New("plcwatch: publisher closed")

// PublisherConfig configures a Publisher. Only the tag, alarm and table
// sections matter since no device is polled.
type PublisherConfig struct {
	Policy   Policy
	Tags     []TagConfig
	Alarms   map[string]AlarmConfig
	Tables   Tables
	Timezone string
	// Observability defaults to a Prometheus backend on a private registry.
	Observability Observability
}

// applyDefaults fills in sane thresholds so callers only override what they need.
func (c *PublisherConfig) applyDefaults() {
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 1_000
	}
	if c.Policy.DequeueTimeout == 0 {
		c.Policy.DequeueTimeout = 50 * time.Millisecond
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = ports.OverflowBlock
	}
	for i := range c.Tags {
		if c.Tags[i].Cycle == 0 {
			c.Tags[i].Cycle = time.Second
		}
	}
	c.Tables.ApplyDefaults()
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
}

// Publisher pushes tag values produced outside the runtime (simulators, other
// protocols, replayed files) through the same change detection and sinks.
type Publisher struct {
	queue    ports.SnapshotQueue
	detector *pipeline.ChangeDetector
	sink     Sink
	tables   pipeline.Tables
	obs      ports.Observability
	idle     time.Duration

	cancel   context.CancelFunc
	closing  chan struct{}
	done     chan struct{}
	err      error
	stopOnce sync.Once
}

// NewPublisher validates the tag table and starts the background consumer.
func NewPublisher(cfg *PublisherConfig, s Sink) (*Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if s == nil {
		return nil, fmt.Errorf("sink is required")
	}
	cfg.applyDefaults()
	if err := cfg.Tables.Validate(); err != nil {
		return nil, err
	}

	cat, err := (&config.Config{Tags: cfg.Tags, Alarms: cfg.Alarms}).BuildCatalog()
	if err != nil {
		return nil, err
	}
	q, err := queue.NewMemQueue(cfg.Policy.MaxQueueLen, cfg.Policy.OnQueueFull, cfg.Policy.IdleSleep)
	if err != nil {
		return nil, err
	}
	obs := cfg.Observability
	if obs == nil {
		obs = observability.NewPromObs(observability.WithRegisterer(prometheus.NewRegistry()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		queue:    q,
		detector: pipeline.NewChangeDetector(cat, cfg.Timezone),
		sink:     s,
		tables:   pipeline.Tables{Data: cfg.Tables.Data, Alarm: cfg.Tables.Alarm},
		obs:      obs,
		idle:     cfg.Policy.DequeueTimeout,
		cancel:   cancel,
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.runIngest(ctx)
	return p, nil
}

// Publish snapshots values at the current time and enqueues them according
// to the overflow policy. It must not race with Close.
func (p *Publisher) Publish(ctx context.Context, values map[string]any) error {
	select {
	case <-p.closing:
		return ErrPublisherClosed
	case <-p.done:
		if p.err != nil {
			return fmt.Errorf("%w: %v", ErrPublisherClosed, p.err)
		}
		return ErrPublisherClosed
	default:
	}

	normalized := make(map[string]any, len(values))
	for name, v := range values {
		nv, ok := domain.Normalize(v)
		if !ok {
			return fmt.Errorf("tag %s: unsupported value type %T", name, v)
		}
		normalized[name] = nv
	}
	return p.queue.Push(ctx, domain.NewSnapshot(0, time.Now(), normalized))
}

// Close drains what was already published, then stops the consumer. It
// returns the error that stopped the consumer early, if any.
func (p *Publisher) Close(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.closing)
	})

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		p.cancel()
		<-p.done
		return ctx.Err()
	}
}

func (p *Publisher) runIngest(ctx context.Context) {
	defer close(p.done)
	defer p.cancel()

	for {
		s, ok, err := p.queue.Pop(ctx, p.idle)
		if err != nil {
			return
		}
		if !ok {
			select {
			case <-p.closing:
				return
			default:
				continue
			}
		}
		if err := pipeline.ProcessSnapshot(ctx, s, p.detector, p.sink, p.tables, p.obs); err != nil {
			p.err = err
			return
		}
	}
}
