package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

var (
	// ErrReadFailed means the read failed again after a successful reconnect.
	// The calling cycle simply produces no snapshot.
	ErrReadFailed = errors.New("device read failed")

	// ErrReconnectExhausted means the device could not be reached within the
	// configured number of attempts. It is fatal to the calling worker.
	ErrReconnectExhausted = errors.New("device reconnect attempts exhausted")

	ErrNotConnected = errors.New("device not connected")

	errEmptyRead = errors.New("device returned no values")

	errUnsupportedValue = errors.New("unsupported value type")
)

// SessionGuard owns the single device session. Every device call goes through
// a one-slot gate, so callers never touch the client concurrently.
type SessionGuard struct {
	client    ports.DeviceClient
	reconnect ports.Reconnect
	obs       ports.Observability
	gate      chan struct{}
}

func NewSessionGuard(client ports.DeviceClient, rc ports.Reconnect, obs ports.Observability) (*SessionGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("device client is required")
	}
	if obs == nil {
		return nil, fmt.Errorf("observability is required")
	}
	if rc.Attempts <= 0 {
		return nil, fmt.Errorf("reconnect attempts must be > 0")
	}
	if rc.Timeout < 0 {
		return nil, fmt.Errorf("reconnect timeout must be >= 0")
	}
	return &SessionGuard{
		client:    client,
		reconnect: rc,
		obs:       obs,
		gate:      make(chan struct{}, 1),
	}, nil
}

// Connect opens the session, retrying up to the configured attempts.
func (g *SessionGuard) Connect(ctx context.Context) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()

	if g.client.IsConnected() {
		return nil
	}
	return g.connectWithRetry(ctx)
}

// Read reads tags while holding the gate. A failed or empty read triggers a
// blocking reconnect followed by exactly one more read.
func (g *SessionGuard) Read(ctx context.Context, tags []domain.TagDescriptor) (map[string]any, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	start := time.Now()
	values, err := g.readOnce(ctx, tags)
	if err == nil {
		g.obs.ObserveLatency(ports.MetricReadLatency, time.Since(start).Seconds())
		return values, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, errUnsupportedValue) {
		// A type mismatch is not a session fault: no reconnect.
		g.obs.IncCounter(ports.MetricReadFailuresTotal, 1)
		g.obs.LogWarn("device_value_rejected", ports.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	g.obs.IncCounter(ports.MetricReadFailuresTotal, 1)
	g.obs.LogWarn("device_read_failed",
		ports.Field{Key: "tags", Value: len(tags)},
		ports.Field{Key: "error", Value: err.Error()})

	if err := g.resetConnection(ctx); err != nil {
		return nil, err
	}

	values, err = g.readOnce(ctx, tags)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.obs.IncCounter(ports.MetricReadFailuresTotal, 1)
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return values, nil
}

// Close disconnects the session once any in-flight read has finished.
func (g *SessionGuard) Close(ctx context.Context) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()
	return g.client.Disconnect(ctx)
}

func (g *SessionGuard) readOnce(ctx context.Context, tags []domain.TagDescriptor) (map[string]any, error) {
	if !g.client.IsConnected() {
		return nil, ErrNotConnected
	}
	values, err := g.client.Read(ctx, tags)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errEmptyRead
	}
	return normalizeValues(values)
}

// normalizeValues folds driver values into the kinds the detector compares.
func normalizeValues(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for name, v := range values {
		nv, ok := domain.Normalize(v)
		if !ok {
			return nil, fmt.Errorf("tag %s: %w %T", name, errUnsupportedValue, v)
		}
		out[name] = nv
	}
	return out, nil
}

func (g *SessionGuard) resetConnection(ctx context.Context) error {
	g.obs.LogInfo("device_connection_reset")
	if err := g.client.Disconnect(ctx); err != nil {
		g.obs.LogWarn("device_disconnect_failed", ports.Field{Key: "error", Value: err.Error()})
	}
	return g.connectWithRetry(ctx)
}

func (g *SessionGuard) connectWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= g.reconnect.Attempts; attempt++ {
		err := g.client.Connect(ctx)
		if err == nil && g.client.IsConnected() {
			g.obs.IncCounter(ports.MetricReconnectsTotal, 1)
			g.obs.LogInfo("device_connected", ports.Field{Key: "attempt", Value: attempt})
			return nil
		}
		if err == nil {
			err = ErrNotConnected
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}

		g.obs.LogWarn("device_connect_failed",
			ports.Field{Key: "attempt", Value: attempt},
			ports.Field{Key: "max_attempts", Value: g.reconnect.Attempts},
			ports.Field{Key: "retry_in", Value: g.reconnect.Timeout.String()},
			ports.Field{Key: "error", Value: err.Error()})

		if attempt == g.reconnect.Attempts {
			break
		}
		if err := sleepCtx(ctx, g.reconnect.Timeout); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, g.reconnect.Attempts, lastErr)
}

func (g *SessionGuard) acquire(ctx context.Context) error {
	select {
	case g.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *SessionGuard) release() { <-g.gate }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
