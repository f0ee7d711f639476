package broker

import (
	"context"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-bfa/internal/port"

	"go.uber.org/zap"
)

const drainTimeout = 3 * time.Second

// Dispatcher decouples coordinators from the broker: Enqueue never blocks,
// and a single goroutine in Run publishes in order.
type Dispatcher struct {
	pub     port.EventPublisher
	queue   chan domain.SnapshotEvent
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher holding up to buffer pending events.
func NewDispatcher(pub port.EventPublisher, buffer int, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		pub:     pub,
		queue:   make(chan domain.SnapshotEvent, buffer),
		metrics: metrics,
		logger:  logger,
	}
}

// Publishable reports whether ev is an outcome worth broadcasting. Loading
// transitions stay local to the session's subscribers.
func Publishable(ev domain.SnapshotEvent) bool {
	return ev.Type == domain.EventPublished || ev.Type == domain.EventFailed
}

// Enqueue hands ev to the publishing goroutine. When the queue is full the
// event is dropped and counted as a failed publish.
func (d *Dispatcher) Enqueue(ev domain.SnapshotEvent) {
	if !Publishable(ev) {
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.metrics.IncrEventPublished(false)
		d.logger.Warn("event queue full, dropping event",
			zap.String("session_id", ev.SessionID),
			zap.String("type", string(ev.Type)),
			zap.Uint64("seq", ev.Seq),
		)
	}
}

// Run publishes queued events until ctx is cancelled, then drains what is
// already queued within a short grace period.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.queue:
			d.publish(ctx, ev)
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.publish(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, ev domain.SnapshotEvent) {
	err := d.pub.Publish(ctx, ev)
	d.metrics.IncrEventPublished(err == nil)
	if err != nil {
		d.logger.Error("event publish failed",
			zap.String("session_id", ev.SessionID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
