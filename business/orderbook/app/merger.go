package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/domain"
	"github.com/fd1az/orderbook-aggregator/internal/logger"
)

const (
	tracerName = "github.com/fd1az/orderbook-aggregator/business/orderbook/app"
	meterName  = "github.com/fd1az/orderbook-aggregator/business/orderbook/app"
)

// DefaultIngressCapacity buffers the multi-producer ingress channel so a
// momentary merger stall does not backpressure the websocket read loops.
const DefaultIngressCapacity = 128

// MergerConfig holds configuration for the merger task.
type MergerConfig struct {
	Depth           int // per-side levels retained and published
	IngressCapacity int
}

// mergerMetrics holds OTEL metric instruments.
type mergerMetrics struct {
	slicesIngested     metric.Int64Counter
	slicesRejected     metric.Int64Counter
	summariesPublished metric.Int64Counter
	mergeLatency       metric.Float64Histogram
}

// Merger consolidates per-exchange book slices into a global top-N view.
// It is the single owner of all retained book state: only the Run goroutine
// touches the domain.Book, so no lock is needed on it. It exits only when
// the ingress channel closes or the context is cancelled.
type Merger struct {
	config    MergerConfig
	book      *domain.Book
	ingress   chan domain.BookSlice
	publisher Publisher
	logger    logger.LoggerInterface

	tracer  trace.Tracer
	metrics *mergerMetrics
}

// NewMerger creates a merger publishing to pub.
func NewMerger(cfg MergerConfig, pub Publisher, log logger.LoggerInterface) *Merger {
	capacity := cfg.IngressCapacity
	if capacity < 1 {
		capacity = DefaultIngressCapacity
	}

	m := &Merger{
		config:    cfg,
		book:      domain.NewBook(cfg.Depth),
		ingress:   make(chan domain.BookSlice, capacity),
		publisher: pub,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}

	if err := m.initMetrics(); err != nil {
		log.Error(context.Background(), "failed to initialize merger metrics", "error", err)
	}

	return m
}

func (m *Merger) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	m.metrics = &mergerMetrics{}

	m.metrics.slicesIngested, err = meter.Int64Counter(
		"orderbook_slices_ingested_total",
		metric.WithDescription("Book slices installed by the merger"),
		metric.WithUnit("{slice}"),
	)
	if err != nil {
		return err
	}

	m.metrics.slicesRejected, err = meter.Int64Counter(
		"orderbook_slices_rejected_total",
		metric.WithDescription("Book slices rejected for violating ingress invariants"),
		metric.WithUnit("{slice}"),
	)
	if err != nil {
		return err
	}

	m.metrics.summariesPublished, err = meter.Int64Counter(
		"orderbook_summaries_published_total",
		metric.WithDescription("Consolidated summaries handed to the registry"),
		metric.WithUnit("{summary}"),
	)
	if err != nil {
		return err
	}

	m.metrics.mergeLatency, err = meter.Float64Histogram(
		"orderbook_merge_latency_ms",
		metric.WithDescription("Time to install a slice and recompute the summary"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return err
	}

	return nil
}

// Ingress returns the channel feed adapters push slices into.
func (m *Merger) Ingress() chan<- domain.BookSlice {
	return m.ingress
}

// CloseIngress closes the ingress channel, moving Run into drain-and-exit.
// Callers must guarantee no adapter will send afterwards.
func (m *Merger) CloseIngress() {
	close(m.ingress)
}

// Run is the merger main loop. Two states only: running (consume, install,
// publish) and draining (context cancelled or ingress closed; finish the
// in-flight slice, then return).
func (m *Merger) Run(ctx context.Context) error {
	m.logger.Info(ctx, "merger started",
		"depth", m.book.Depth(),
		"ingress_capacity", cap(m.ingress),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info(ctx, "merger draining", "reason", ctx.Err())
			return nil
		case s, ok := <-m.ingress:
			if !ok {
				m.logger.Info(ctx, "merger draining", "reason", "ingress closed")
				return nil
			}
			m.ingest(ctx, s)
		}
	}
}

// ingest installs one slice and publishes the recomputed summary. Exactly
// one summary is produced per successfully installed slice.
func (m *Merger) ingest(ctx context.Context, s domain.BookSlice) {
	start := time.Now()

	ctx, span := m.tracer.Start(ctx, "merger.ingest",
		trace.WithAttributes(
			attribute.String("exchange", s.Exchange.String()),
			attribute.Int("bids", len(s.Bids)),
			attribute.Int("asks", len(s.Asks)),
		),
	)
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("exchange", s.Exchange.String()))

	if err := s.Validate(); err != nil {
		if m.metrics != nil {
			m.metrics.slicesRejected.Add(ctx, 1, attrs)
		}
		span.RecordError(err)
		m.logger.Warn(ctx, "rejected book slice",
			"exchange", s.Exchange.String(), "error", err)
		return
	}

	m.book.Install(s)
	summary := m.book.Summarize()
	m.publisher.Publish(ctx, summary)

	if m.metrics != nil {
		m.metrics.slicesIngested.Add(ctx, 1, attrs)
		m.metrics.summariesPublished.Add(ctx, 1)
		m.metrics.mergeLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, attrs)
	}

	m.logger.Debug(ctx, "slice merged",
		"exchange", s.Exchange.String(),
		"bids", len(summary.Bids),
		"asks", len(summary.Asks),
		"spread", summary.Spread.String(),
	)
}
