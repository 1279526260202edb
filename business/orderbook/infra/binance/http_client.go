package binance

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fd1az/orderbook-aggregator/internal/apperror"
	"github.com/fd1az/orderbook-aggregator/internal/httpclient"
	"github.com/fd1az/orderbook-aggregator/internal/logger"
	"github.com/fd1az/orderbook-aggregator/internal/ratelimit"
)

const (
	// Binance REST API endpoints
	BaseAPIURL = "https://api.binance.com"

	depthEndpoint = "/api/v3/depth"

	httpTimeout = 10 * time.Second
)

// HTTPClient provides REST access to the depth snapshot endpoint, used
// before the stream delivers its first frame and while it is stale.
type HTTPClient struct {
	client *httpclient.Client
	logger logger.LoggerInterface
}

// NewHTTPClient creates a snapshot client. Requests run through a circuit
// breaker and are capped at a polite refresh rate.
func NewHTTPClient(baseURL string, log logger.LoggerInterface) (*HTTPClient, error) {
	if baseURL == "" {
		baseURL = BaseAPIURL
	}

	client, err := httpclient.New(httpclient.Config{
		Name:           "binance-rest",
		BaseURL:        baseURL,
		RequestTimeout: httpTimeout,
		Limiter:        ratelimit.NewWithBurst(1, 2), // snapshots, not polling
	})
	if err != nil {
		return nil, err
	}

	return &HTTPClient{client: client, logger: log}, nil
}

// DepthResponse is the REST depth snapshot payload.
type DepthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// GetDepth fetches the orderbook snapshot for a symbol. An "invalid symbol"
// rejection means the configured pair is not listed on Binance, which is
// fatal for this source.
func (c *HTTPClient) GetDepth(ctx context.Context, symbol string, limit int) (*DepthResponse, error) {
	// Binance accepts specific limit values only.
	validLimits := []int{5, 10, 20, 50, 100, 500, 1000, 5000}
	chosen := validLimits[len(validLimits)-1]
	for _, v := range validLimits {
		if limit <= v {
			chosen = v
			break
		}
	}

	query := url.Values{}
	query.Set("symbol", strings.ToUpper(symbol))
	query.Set("limit", strconv.Itoa(chosen))

	var result DepthResponse
	if err := c.client.GetJSON(ctx, depthEndpoint, query, &result); err != nil {
		if strings.Contains(err.Error(), "-1121") || strings.Contains(err.Error(), "Invalid symbol") {
			return nil, apperror.New(apperror.CodeUnsupportedPair,
				apperror.WithCause(err),
				apperror.WithContext(symbol),
				apperror.Fatal())
		}
		return nil, apperror.New(apperror.CodeSnapshotFetchFailed,
			apperror.WithCause(err),
			apperror.WithContext(symbol))
	}

	c.logger.Debug(ctx, "fetched depth snapshot",
		"symbol", symbol,
		"bids", len(result.Bids),
		"asks", len(result.Asks))

	return &result, nil
}

// ToPartialDepthEvent converts the snapshot into the stream event shape so
// both paths feed the same parser.
func (d *DepthResponse) ToPartialDepthEvent() *PartialDepthEvent {
	return &PartialDepthEvent{
		LastUpdateID: d.LastUpdateID,
		Bids:         d.Bids,
		Asks:         d.Asks,
	}
}
