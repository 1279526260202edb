package binance

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

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
	tracerName = "github.com/fd1az/orderbook-aggregator/business/orderbook/infra/binance"
	meterName  = "github.com/fd1az/orderbook-aggregator/business/orderbook/infra/binance"

	// Binance WebSocket endpoints
	BaseWSURL = "wss://stream.binance.com:9443"

	// The partial-book stream ships 20 levels at most.
	streamLevels = 20
)

// Ensure interface compliance.
var _ app.FeedAdapter = (*Adapter)(nil)

// AdapterConfig holds configuration for the Binance feed adapter.
type AdapterConfig struct {
	WebSocketURL string // empty = BaseWSURL
	HTTPURL      string // empty = BaseAPIURL
	Pair         symbol.Pair
	Depth        int           // levels per side pushed to the merger
	SpeedMs      int           // depth update speed (100 or 1000)
	StaleTimeout time.Duration // stream silence before a snapshot refresh
	Snapshot     bool          // fetch a REST snapshot before the stream warms up
}

// DefaultAdapterConfig returns sensible defaults for a pair.
func DefaultAdapterConfig(pair symbol.Pair) AdapterConfig {
	return AdapterConfig{
		Pair:         pair,
		Depth:        domain.DefaultDepth,
		SpeedMs:      100,
		StaleTimeout: 5 * time.Second,
		Snapshot:     true,
	}
}

// adapterMetrics holds OTEL metric instruments.
type adapterMetrics struct {
	depthUpdates  metric.Int64Counter
	parseErrors   metric.Int64Counter
	snapshotsUsed metric.Int64Counter
}

// Adapter streams the Binance partial book for one pair and pushes sorted
// top-N slices into the merger's ingress channel.
type Adapter struct {
	config AdapterConfig
	logger logger.LoggerInterface

	httpClient *HTTPClient

	tracer  trace.Tracer
	metrics *adapterMetrics
}

// NewAdapter creates a Binance feed adapter.
func NewAdapter(cfg AdapterConfig, log logger.LoggerInterface) (*Adapter, error) {
	if cfg.Depth <= 0 {
		cfg.Depth = domain.DefaultDepth
	}
	if cfg.Depth > streamLevels {
		cfg.Depth = streamLevels
	}
	if cfg.SpeedMs != 100 && cfg.SpeedMs != 1000 {
		cfg.SpeedMs = 100
	}

	a := &Adapter{
		config: cfg,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}

	if cfg.Snapshot {
		httpClient, err := NewHTTPClient(cfg.HTTPURL, log)
		if err != nil {
			log.Warn(context.Background(), "snapshot client unavailable, continuing stream-only", "error", err)
		} else {
			a.httpClient = httpClient
		}
	}

	if err := a.initMetrics(); err != nil {
		log.Error(context.Background(), "failed to initialize binance adapter metrics", "error", err)
	}

	return a, nil
}

func (a *Adapter) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &adapterMetrics{}

	a.metrics.depthUpdates, err = meter.Int64Counter(
		"binance_depth_updates_total",
		metric.WithDescription("Depth events pushed to the merger"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	a.metrics.parseErrors, err = meter.Int64Counter(
		"binance_parse_errors_total",
		metric.WithDescription("Feed frames skipped for parse errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	a.metrics.snapshotsUsed, err = meter.Int64Counter(
		"binance_snapshots_total",
		metric.WithDescription("REST depth snapshots injected"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Exchange identifies this adapter's feed source.
func (a *Adapter) Exchange() domain.Exchange {
	return domain.ExchangeBinance
}

// Run connects and pushes slices until ctx is cancelled or the feed dies.
func (a *Adapter) Run(ctx context.Context, ingress chan<- domain.BookSlice) error {
	ctx, span := a.tracer.Start(ctx, "binance.run",
		trace.WithAttributes(attribute.String("pair", a.config.Pair.String())),
	)
	defer span.End()

	// Seed the merger from a REST snapshot so subscribers see a book
	// before the first stream frame lands. A fatal error here means the
	// pair is not listed; anything else is a warm-up nicety we skip.
	if a.httpClient != nil {
		if err := a.injectSnapshot(ctx, ingress); err != nil {
			if apperror.IsFatal(err) {
				span.RecordError(err)
				return err
			}
			a.logger.Warn(ctx, "initial snapshot failed, waiting for stream",
				"pair", a.config.Pair.String(), "error", err)
		}
	}

	wsURL, err := a.buildStreamURL()
	if err != nil {
		return err
	}

	wsCfg := wsconn.DefaultConfig(wsURL, "binance")
	client, err := wsconn.New(wsCfg, nil)
	if err != nil {
		return apperror.New(apperror.CodeFeedConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("binance"),
			apperror.Fatal())
	}
	defer client.Close()

	runDone := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(runDone)
	}()

	a.logger.Info(ctx, "binance feed started",
		"url", wsURL, "pair", a.config.Pair.String(), "depth", a.config.Depth)

	stale := time.NewTimer(a.config.StaleTimeout)
	defer stale.Stop()

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
						apperror.WithContext("binance"))
				}
				return nil
			}
			a.handleMessage(ctx, msg, ingress)
			a.resetStale(stale)

		case <-stale.C:
			// Stream has gone quiet past the staleness window; refresh
			// from REST so the merger is not stuck on old levels.
			if a.httpClient != nil {
				if err := a.injectSnapshot(ctx, ingress); err != nil && apperror.IsFatal(err) {
					return err
				}
			}
			a.resetStale(stale)
		}
	}
}

func (a *Adapter) resetStale(t *time.Timer) {
	if a.config.StaleTimeout <= 0 {
		return
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(a.config.StaleTimeout)
}

// buildStreamURL constructs the combined-streams URL for the pair's
// partial-book depth stream.
func (a *Adapter) buildStreamURL() (string, error) {
	base := a.config.WebSocketURL
	if base == "" {
		base = BaseWSURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("binance websocket url"),
			apperror.Fatal())
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + DepthStream(a.config.Pair.Lower(), streamLevels, a.config.SpeedMs)

	return u.String(), nil
}

// handleMessage parses one stream frame and pushes the slice. Parse errors
// skip the frame and keep the feed alive.
func (a *Adapter) handleMessage(ctx context.Context, data []byte, ingress chan<- domain.BookSlice) {
	var event StreamEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Data == nil {
		// Subscription acks arrive outside the stream wrapper.
		var resp WSResponse
		if json.Unmarshal(data, &resp) == nil && resp.ID != 0 {
			return
		}
		a.metrics.parseErrors.Add(ctx, 1)
		a.logger.Warn(ctx, "failed to parse binance frame",
			"error", err, "data", string(data[:min(len(data), 200)]))
		return
	}

	var depth PartialDepthEvent
	if err := json.Unmarshal(event.Data, &depth); err != nil {
		a.metrics.parseErrors.Add(ctx, 1)
		a.logger.Warn(ctx, "failed to parse binance depth", "error", err)
		return
	}

	a.pushEvent(ctx, &depth, ingress, "stream")
}

// injectSnapshot fetches a REST snapshot and pushes it as a slice.
func (a *Adapter) injectSnapshot(ctx context.Context, ingress chan<- domain.BookSlice) error {
	depth, err := a.httpClient.GetDepth(ctx, a.config.Pair.Upper(), a.config.Depth)
	if err != nil {
		return err
	}
	a.metrics.snapshotsUsed.Add(ctx, 1)
	a.pushEvent(ctx, depth.ToPartialDepthEvent(), ingress, "snapshot")
	return nil
}

func (a *Adapter) pushEvent(ctx context.Context, event *PartialDepthEvent, ingress chan<- domain.BookSlice, source string) {
	s, err := event.ToBookSlice(a.config.Depth)
	if err != nil {
		a.metrics.parseErrors.Add(ctx, 1)
		a.logger.Warn(ctx, "failed to convert binance depth",
			"source", source, "error", err)
		return
	}

	select {
	case ingress <- s:
		a.metrics.depthUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	case <-ctx.Done():
	}
}
