package bitstamp

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/app"
	"github.com/fd1az/orderbook-aggregator/business/orderbook/domain"
	"github.com/fd1az/orderbook-aggregator/internal/apperror"
	"github.com/fd1az/orderbook-aggregator/internal/logger"
	"github.com/fd1az/orderbook-aggregator/internal/symbol"
	"github.com/fd1az/orderbook-aggregator/internal/wsconn"
)

const (
	tracerName = "github.com/fd1az/orderbook-aggregator/business/orderbook/infra/bitstamp"
	meterName  = "github.com/fd1az/orderbook-aggregator/business/orderbook/infra/bitstamp"

	// Bitstamp WebSocket endpoint
	BaseWSURL = "wss://ws.bitstamp.net"
)

// Ensure interface compliance.
var _ app.FeedAdapter = (*Adapter)(nil)

// AdapterConfig holds configuration for the Bitstamp feed adapter.
type AdapterConfig struct {
	WebSocketURL string // empty = BaseWSURL
	Pair         symbol.Pair
	Depth        int
}

// DefaultAdapterConfig returns sensible defaults for a pair.
func DefaultAdapterConfig(pair symbol.Pair) AdapterConfig {
	return AdapterConfig{
		Pair:  pair,
		Depth: domain.DefaultDepth,
	}
}

// adapterMetrics holds OTEL metric instruments.
type adapterMetrics struct {
	bookUpdates metric.Int64Counter
	parseErrors metric.Int64Counter
}

// Adapter streams the Bitstamp live order book for one pair and pushes
// sorted top-N slices into the merger's ingress channel. Bitstamp requires
// an explicit subscribe frame after the handshake; the frame is re-sent on
// every reconnect.
type Adapter struct {
	config  AdapterConfig
	channel string
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *adapterMetrics
}

// NewAdapter creates a Bitstamp feed adapter.
func NewAdapter(cfg AdapterConfig, log logger.LoggerInterface) (*Adapter, error) {
	if cfg.Depth <= 0 {
		cfg.Depth = domain.DefaultDepth
	}

	a := &Adapter{
		config:  cfg,
		channel: OrderBookChannel(cfg.Pair.Lower()),
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}

	if err := a.initMetrics(); err != nil {
		log.Error(context.Background(), "failed to initialize bitstamp adapter metrics", "error", err)
	}

	return a, nil
}

func (a *Adapter) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &adapterMetrics{}

	a.metrics.bookUpdates, err = meter.Int64Counter(
		"bitstamp_book_updates_total",
		metric.WithDescription("Order book events pushed to the merger"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	a.metrics.parseErrors, err = meter.Int64Counter(
		"bitstamp_parse_errors_total",
		metric.WithDescription("Feed frames skipped for parse errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Exchange identifies this adapter's feed source.
func (a *Adapter) Exchange() domain.Exchange {
	return domain.ExchangeBitstamp
}

// Run connects, subscribes and pushes slices until ctx is cancelled or the
// feed dies. An unknown channel surfaces as a fatal unsupported-pair error.
func (a *Adapter) Run(ctx context.Context, ingress chan<- domain.BookSlice) error {
	ctx, span := a.tracer.Start(ctx, "bitstamp.run",
		trace.WithAttributes(
			attribute.String("pair", a.config.Pair.String()),
			attribute.String("channel", a.channel),
		),
	)
	defer span.End()

	base := a.config.WebSocketURL
	if base == "" {
		base = BaseWSURL
	}

	subscribe := func(ctx context.Context, c *wsconn.Client) error {
		return c.SendJSON(ctx, NewSubscribeRequest(a.channel))
	}

	wsCfg := wsconn.DefaultConfig(base, "bitstamp")
	client, err := wsconn.New(wsCfg, subscribe)
	if err != nil {
		return apperror.New(apperror.CodeFeedConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("bitstamp"),
			apperror.Fatal())
	}
	defer client.Close()

	runDone := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(runDone)
	}()

	a.logger.Info(ctx, "bitstamp feed started",
		"url", base, "channel", a.channel, "depth", a.config.Depth)

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-client.Messages():
			if !ok {
				<-runDone
				if err := client.Err(); err != nil {
					return apperror.New(apperror.CodeFeedTerminated,
						apperror.WithCause(err),
						apperror.WithContext("bitstamp"))
				}
				return nil
			}
			if err := a.handleMessage(ctx, msg, ingress); err != nil {
				span.RecordError(err)
				return err
			}
		}
	}
}

// handleMessage routes one frame. A non-nil return is fatal for the feed;
// parse errors log, count and continue.
func (a *Adapter) handleMessage(ctx context.Context, data []byte, ingress chan<- domain.BookSlice) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		a.metrics.parseErrors.Add(ctx, 1)
		a.logger.Warn(ctx, "failed to parse bitstamp frame",
			"error", err, "data", string(data[:min(len(data), 200)]))
		return nil
	}

	switch env.Event {
	case EventData:
		a.handleBook(ctx, env.Data, ingress)

	case EventSubscriptionSucceeded:
		a.logger.Info(ctx, "bitstamp subscription confirmed", "channel", env.Channel)

	case EventRequestReconnect:
		// The server closes the connection shortly after this frame;
		// the read loop fails and wsconn redials and re-subscribes.
		a.logger.Info(ctx, "bitstamp requested reconnect")

	case EventError:
		var errData ErrorData
		_ = json.Unmarshal(env.Data, &errData)
		// A rejected subscription means the pair is not listed.
		return apperror.New(apperror.CodeUnsupportedPair,
			apperror.WithContext(errData.Message),
			apperror.Fatal())

	default:
		a.logger.Debug(ctx, "ignoring bitstamp event", "event", env.Event)
	}

	return nil
}

func (a *Adapter) handleBook(ctx context.Context, data json.RawMessage, ingress chan<- domain.BookSlice) {
	var book OrderBookData
	if err := json.Unmarshal(data, &book); err != nil {
		a.metrics.parseErrors.Add(ctx, 1)
		a.logger.Warn(ctx, "failed to parse bitstamp book", "error", err)
		return
	}

	s, err := book.ToBookSlice(a.config.Depth)
	if err != nil {
		a.metrics.parseErrors.Add(ctx, 1)
		a.logger.Warn(ctx, "failed to convert bitstamp book", "error", err)
		return
	}

	select {
	case ingress <- s:
		a.metrics.bookUpdates.Add(ctx, 1)
	case <-ctx.Done():
	}
}
