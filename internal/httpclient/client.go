// Package httpclient provides a small instrumented REST client used for
// exchange snapshot endpoints: per-request tracing, rate limiting and a
// circuit breaker in front of the transport.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/orderbook-aggregator/internal/circuitbreaker"
	"github.com/fd1az/orderbook-aggregator/internal/ratelimit"
)

const tracerName = "github.com/fd1az/orderbook-aggregator/internal/httpclient"

// Config holds client configuration.
type Config struct {
	Name           string // provider name for tracing/breaker
	BaseURL        string
	RequestTimeout time.Duration
	Headers        map[string]string
	Limiter        *ratelimit.Limiter // nil = unlimited
}

// Client is an instrumented HTTP client bound to one provider base URL.
type Client struct {
	config  Config
	http    *http.Client
	breaker *circuitbreaker.Breaker[[]byte]
	tracer  trace.Tracer
}

// New creates a Client. The circuit breaker opens after repeated failures
// (transport errors or any HTTP status >= 400), shedding load from a
// struggling provider.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("httpclient: empty base URL")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("httpclient: invalid base URL: %w", err)
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	return &Client{
		config:  cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		breaker: circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig(cfg.Name)),
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// GetJSON issues a GET to path with query params and unmarshals the JSON
// response body into result.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, result any) error {
	ctx, span := c.tracer.Start(ctx, "http.get",
		trace.WithAttributes(
			attribute.String("http.provider", c.config.Name),
			attribute.String("http.path", path),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	if c.config.Limiter != nil {
		if err := c.config.Limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return err
		}
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, path, query)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return fmt.Errorf("decode response: %w", err)
	}

	span.SetStatus(codes.Ok, "ok")
	return nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u, err := url.Parse(c.config.BaseURL + path)
	if err != nil {
		return nil, err
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 200))
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
