package app

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/domain"
	"github.com/fd1az/orderbook-aggregator/internal/logger"
)

// DefaultEgressCapacity is the per-subscriber channel buffer. Latest-is-best:
// a full buffer means the subscriber is behind and newer summaries matter
// more than queue depth.
const DefaultEgressCapacity = 4

// SubscriberHandle identifies a registered subscriber.
type SubscriberHandle uint64

type subscriber struct {
	egress chan domain.Summary
	drops  uint64
}

// registryMetrics holds OTEL metric instruments.
type registryMetrics struct {
	subscribers       metric.Int64UpDownCounter
	summariesFanned   metric.Int64Counter
	summariesDropped  metric.Int64Counter
}

// Registry is the subscription registry: the fan-out tail of the pipeline.
// Publish never blocks; a slow subscriber only ever loses its own updates.
type Registry struct {
	logger logger.LoggerInterface

	mu       sync.Mutex
	subs     map[SubscriberHandle]*subscriber
	nextID   SubscriberHandle
	capacity int

	metrics *registryMetrics
}

// NewRegistry creates an empty registry. capacity bounds each subscriber's
// egress channel; values < 1 fall back to DefaultEgressCapacity.
func NewRegistry(capacity int, log logger.LoggerInterface) *Registry {
	if capacity < 1 {
		capacity = DefaultEgressCapacity
	}

	r := &Registry{
		logger:   log,
		subs:     make(map[SubscriberHandle]*subscriber),
		capacity: capacity,
	}

	if err := r.initMetrics(); err != nil {
		log.Error(context.Background(), "failed to initialize registry metrics", "error", err)
	}

	return r
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &registryMetrics{}

	r.metrics.subscribers, err = meter.Int64UpDownCounter(
		"orderbook_subscribers",
		metric.WithDescription("Currently registered summary subscribers"),
		metric.WithUnit("{subscriber}"),
	)
	if err != nil {
		return err
	}

	r.metrics.summariesFanned, err = meter.Int64Counter(
		"orderbook_summaries_fanned_total",
		metric.WithDescription("Summaries delivered to subscriber channels"),
		metric.WithUnit("{summary}"),
	)
	if err != nil {
		return err
	}

	r.metrics.summariesDropped, err = meter.Int64Counter(
		"orderbook_summaries_dropped_total",
		metric.WithDescription("Summaries dropped because a subscriber channel was full"),
		metric.WithUnit("{summary}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Subscribe registers a new subscriber and returns its handle and egress
// channel. The registry owns the channel: it is closed by Unsubscribe.
func (r *Registry) Subscribe() (SubscriberHandle, <-chan domain.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	handle := r.nextID
	sub := &subscriber{egress: make(chan domain.Summary, r.capacity)}
	r.subs[handle] = sub

	if r.metrics != nil {
		r.metrics.subscribers.Add(context.Background(), 1)
	}

	return handle, sub.egress
}

// Unsubscribe removes a subscriber and closes its egress channel. Safe to
// call with an unknown or already-removed handle.
func (r *Registry) Unsubscribe(handle SubscriberHandle) {
	r.mu.Lock()
	sub, ok := r.subs[handle]
	if ok {
		delete(r.subs, handle)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	close(sub.egress)

	if r.metrics != nil {
		r.metrics.subscribers.Add(context.Background(), -1)
	}

	if sub.drops > 0 {
		r.logger.Debug(context.Background(), "subscriber removed",
			"handle", uint64(handle), "dropped", sub.drops)
	}
}

// Publish attempts a non-blocking send of s to every subscriber. A full
// egress drops this summary for that subscriber only; the send never waits.
// Unsubscribe and Close remove a subscriber under the same lock as Publish
// and close its channel only after removal, so a send on a closed channel
// cannot occur.
func (r *Registry) Publish(ctx context.Context, s domain.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for handle, sub := range r.subs {
		select {
		case sub.egress <- s:
			if r.metrics != nil {
				r.metrics.summariesFanned.Add(ctx, 1)
			}
		default:
			sub.drops++
			if r.metrics != nil {
				r.metrics.summariesDropped.Add(ctx, 1,
					metric.WithAttributes(attribute.Int64("subscriber", int64(handle))))
			}
		}
	}
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Drops returns the drop counter for a subscriber, 0 if unknown.
func (r *Registry) Drops(handle SubscriberHandle) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subs[handle]; ok {
		return sub.drops
	}
	return 0
}

// Close unsubscribes everyone. Used on shutdown so per-client stream
// handlers observe channel closure and exit.
func (r *Registry) Close() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[SubscriberHandle]*subscriber)
	r.mu.Unlock()

	for _, sub := range subs {
		close(sub.egress)
	}

	if r.metrics != nil {
		r.metrics.subscribers.Add(context.Background(), -int64(len(subs)))
	}
}
