// Package wsconn provides the exchange-facing WebSocket client: automatic
// reconnection with jittered exponential backoff, bounded message buffering,
// and OTEL instrumentation. Terminal failure is signalled by closing the
// message channel, so consumers observe feed death as channel closure.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/fd1az/orderbook-aggregator/internal/wsconn"
	meterName  = "github.com/fd1az/orderbook-aggregator/internal/wsconn"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("wsconn: client closed")

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string // identifier for metrics/tracing
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64 // 0 = no limit
}

// DefaultConfig returns sensible defaults for an exchange depth stream.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0,
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		BufferSize:     1024,
		MaxMessageSize: 10 * 1024 * 1024,
	}
}

// metrics holds OTEL metric instruments.
type clientMetrics struct {
	connectionState  metric.Int64Gauge
	messagesReceived metric.Int64Counter
	messagesSent     metric.Int64Counter
	reconnectsTotal  metric.Int64Counter
	droppedMessages  metric.Int64Counter
	pingsFailed      metric.Int64Counter
}

// OnConnectFn runs after every (re)connect, before the read loop starts.
// Exchanges that require a subscribe frame send it here so the frame is
// re-sent on every reconnect.
type OnConnectFn func(ctx context.Context, c *Client) error

// Client is a reconnecting WebSocket client. Received frames are delivered
// on Messages(); the channel closes when the client is closed or reconnects
// are exhausted.
type Client struct {
	config    Config
	onConnect OnConnectFn

	conn   *websocket.Conn
	connMu sync.RWMutex

	state   State
	stateMu sync.RWMutex

	messages  chan []byte
	closeOnce sync.Once
	closed    atomic.Bool

	lastErr   error
	lastErrMu sync.Mutex

	tracer  trace.Tracer
	metrics *clientMetrics
}

// New creates a client. The connection is established by Run.
func New(config Config, onConnect OnConnectFn) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("wsconn: empty URL")
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}

	c := &Client{
		config:    config,
		onConnect: onConnect,
		state:     StateDisconnected,
		messages:  make(chan []byte, config.BufferSize),
		tracer:    otel.Tracer(tracerName),
	}

	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &clientMetrics{}

	c.metrics.connectionState, err = meter.Int64Gauge(
		"ws_connection_state",
		metric.WithDescription("WebSocket connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=closed)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	c.metrics.messagesReceived, err = meter.Int64Counter(
		"ws_messages_received_total",
		metric.WithDescription("Total WebSocket messages received"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	c.metrics.messagesSent, err = meter.Int64Counter(
		"ws_messages_sent_total",
		metric.WithDescription("Total WebSocket messages sent"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	c.metrics.reconnectsTotal, err = meter.Int64Counter(
		"ws_reconnects_total",
		metric.WithDescription("Total WebSocket reconnection attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	c.metrics.droppedMessages, err = meter.Int64Counter(
		"ws_messages_dropped_total",
		metric.WithDescription("Messages dropped because the buffer was full"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	c.metrics.pingsFailed, err = meter.Int64Counter(
		"ws_pings_failed_total",
		metric.WithDescription("Total WebSocket ping failures"),
		metric.WithUnit("{ping}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Run connects and keeps reading until ctx is cancelled, the client is
// closed, or reconnects are exhausted. It always closes Messages() before
// returning; Err() holds the terminal error, nil on clean shutdown.
func (c *Client) Run(ctx context.Context) error {
	defer c.shutdown()

	backoff := c.config.InitialBackoff
	attempts := 0

	for {
		if ctx.Err() != nil || c.closed.Load() {
			return nil
		}

		err := c.connect(ctx)
		if err == nil {
			attempts = 0
			backoff = c.config.InitialBackoff

			err = c.readLoop(ctx)
			if err == nil || ctx.Err() != nil || c.closed.Load() {
				return nil
			}
			c.setState(StateReconnecting)
		}

		attempts++
		c.metrics.reconnectsTotal.Add(ctx, 1, c.attrs())

		if c.config.MaxReconnects > 0 && attempts >= c.config.MaxReconnects {
			err = fmt.Errorf("max reconnects (%d) exceeded: %w", c.config.MaxReconnects, err)
			c.setErr(err)
			return err
		}

		// Jittered exponential backoff before the next attempt.
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
		backoff *= 2
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}
	}
}

// connect dials once and runs the onConnect hook.
func (c *Client) connect(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "ws.connect",
		trace.WithAttributes(
			attribute.String("ws.url", c.config.URL),
			attribute.String("ws.name", c.config.Name),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	c.setState(StateConnecting)

	conn, _, err := websocket.Dial(ctx, c.config.URL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		c.setState(StateDisconnected)
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.setState(StateConnected)

	if c.onConnect != nil {
		if err := c.onConnect(ctx, c); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "on-connect hook failed")
			c.dropConn(websocket.StatusPolicyViolation, "subscribe failed")
			return err
		}
	}

	span.SetStatus(codes.Ok, "connected")
	return nil
}

// readLoop reads frames until the connection fails or ctx is cancelled.
// A nil return means a clean, caller-initiated stop.
func (c *Client) readLoop(ctx context.Context) error {
	pingStop := make(chan struct{})
	defer close(pingStop)
	go c.pingLoop(ctx, pingStop)

	for {
		if ctx.Err() != nil || c.closed.Load() {
			return nil
		}

		conn := c.currentConn()
		if conn == nil {
			return errors.New("connection lost")
		}

		readCtx := ctx
		var cancel context.CancelFunc
		if c.config.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, c.config.ReadTimeout)
		}

		msgType, data, err := conn.Read(readCtx)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			if ctx.Err() != nil || c.closed.Load() {
				return nil
			}
			c.dropConn(websocket.StatusGoingAway, "read failed")
			return fmt.Errorf("websocket read failed: %w", err)
		}

		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}

		c.metrics.messagesReceived.Add(ctx, 1, c.attrs())

		// Non-blocking hand-off so a stalled consumer cannot stall the
		// read loop; when the buffer is full the incoming frame is
		// dropped and counted.
		select {
		case c.messages <- data:
		default:
			c.metrics.droppedMessages.Add(ctx, 1, c.attrs())
		}
	}
}

// pingLoop sends periodic pings to detect half-open connections. A failed
// ping tears the connection down so the read loop fails fast.
func (c *Client) pingLoop(ctx context.Context, stop <-chan struct{}) {
	if c.config.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn := c.currentConn()
			if conn == nil {
				return
			}

			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()

			if err != nil {
				c.metrics.pingsFailed.Add(ctx, 1, c.attrs())
				c.dropConn(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}

// Send sends a text message on the current connection.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrClosed
	}

	writeCtx := ctx
	if c.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, c.config.WriteTimeout)
		defer cancel()
	}

	if err := conn.Write(writeCtx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("websocket write failed: %w", err)
	}

	c.metrics.messagesSent.Add(ctx, 1, c.attrs())
	return nil
}

// SendJSON marshals v and sends it as a text message.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.Send(ctx, data)
}

// Messages returns the receive channel. It is closed when Run returns.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected returns true while a connection is established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Err returns the terminal error after Messages() closed, nil if the client
// stopped cleanly.
func (c *Client) Err() error {
	c.lastErrMu.Lock()
	defer c.lastErrMu.Unlock()
	return c.lastErr
}

// Close stops the client. Run unblocks and Messages() closes.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.dropConn(websocket.StatusNormalClosure, "client closing")
	return nil
}

func (c *Client) shutdown() {
	c.closed.Store(true)
	c.dropConn(websocket.StatusNormalClosure, "client closing")
	c.closeOnce.Do(func() { close(c.messages) })
	c.setState(StateClosed)
}

func (c *Client) currentConn() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *Client) dropConn(status websocket.StatusCode, reason string) {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		conn.Close(status, reason)
	}
}

func (c *Client) setErr(err error) {
	c.lastErrMu.Lock()
	c.lastErr = err
	c.lastErrMu.Unlock()
}

func (c *Client) attrs() metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("ws.name", c.config.Name))
}

func (c *Client) setState(state State) {
	c.stateMu.Lock()
	old := c.state
	c.state = state
	c.stateMu.Unlock()

	if old == state {
		return
	}

	var v int64
	switch state {
	case StateConnecting:
		v = 1
	case StateConnected:
		v = 2
	case StateReconnecting:
		v = 3
	case StateClosed:
		v = 4
	}
	c.metrics.connectionState.Record(context.Background(), v, c.attrs())
}
