// Package binance implements the FeedAdapter contract for the Binance
// partial-book depth stream.
package binance

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/domain"
)

// StreamEvent is the combined-streams wrapper for all stream messages.
type StreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// PartialDepthEvent is a partial book depth snapshot from a
// <symbol>@depth<levels>@<speed> stream: the full top of the book, not a
// diff, so each event replaces the previous one wholesale.
type PartialDepthEvent struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"` // [[price, qty], ...]
	Asks         [][]string `json:"asks"`
}

// WSResponse is a WebSocket subscription/keep-alive response.
type WSResponse struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
}

// DepthStream returns the partial book depth stream name for a symbol.
func DepthStream(symbol string, levels, speedMs int) string {
	return symbol + "@depth" + strconv.Itoa(levels) + "@" + strconv.Itoa(speedMs) + "ms"
}

// parseLevels converts raw [price, qty] string pairs into sorted domain
// levels tagged with the Binance exchange. Zero-quantity levels (removed
// from the book) are elided; depth caps the output.
func parseLevels(raw [][]string, depth int) ([]domain.Level, error) {
	levels := make([]domain.Level, 0, min(len(raw), depth))
	for _, r := range raw {
		if len(levels) == depth {
			break
		}
		if len(r) < 2 {
			continue
		}
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, err
		}
		if qty.IsZero() {
			continue
		}
		levels = append(levels, domain.Level{
			Price:    price,
			Amount:   qty,
			Exchange: domain.ExchangeBinance,
		})
	}
	return levels, nil
}

// ToBookSlice converts the event into the merger's ingress type.
func (e *PartialDepthEvent) ToBookSlice(depth int) (domain.BookSlice, error) {
	bids, err := parseLevels(e.Bids, depth)
	if err != nil {
		return domain.BookSlice{}, err
	}
	asks, err := parseLevels(e.Asks, depth)
	if err != nil {
		return domain.BookSlice{}, err
	}
	return domain.BookSlice{
		Exchange: domain.ExchangeBinance,
		Bids:     bids,
		Asks:     asks,
	}, nil
}
