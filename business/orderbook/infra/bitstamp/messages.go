// Package bitstamp implements the FeedAdapter contract for the Bitstamp
// live order book channel.
package bitstamp

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/domain"
)

// Bitstamp event names.
const (
	EventSubscribe             = "bts:subscribe"
	EventSubscriptionSucceeded = "bts:subscription_succeeded"
	EventRequestReconnect      = "bts:request_reconnect"
	EventError                 = "bts:error"
	EventData                  = "data"
)

// SubscribeRequest is the explicit subscribe frame Bitstamp requires after
// the handshake.
type SubscribeRequest struct {
	Event string        `json:"event"`
	Data  SubscribeData `json:"data"`
}

// SubscribeData names the channel to subscribe to.
type SubscribeData struct {
	Channel string `json:"channel"`
}

// NewSubscribeRequest builds the subscribe frame for a channel.
func NewSubscribeRequest(channel string) SubscribeRequest {
	return SubscribeRequest{
		Event: EventSubscribe,
		Data:  SubscribeData{Channel: channel},
	}
}

// OrderBookChannel returns the live order book channel for a lower-case
// pair encoding (e.g. "order_book_ethbtc").
func OrderBookChannel(pair string) string {
	return "order_book_" + pair
}

// Envelope is the wrapper around every Bitstamp frame.
type Envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// OrderBookData is the payload of an order_book data event: the top of the
// book, full replacement on every tick.
type OrderBookData struct {
	Timestamp      string     `json:"timestamp"`
	Microtimestamp string     `json:"microtimestamp"`
	Bids           [][]string `json:"bids"` // [[price, amount], ...]
	Asks           [][]string `json:"asks"`
}

// ErrorData is the payload of a bts:error event.
type ErrorData struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
}

// parseLevels converts raw [price, amount] pairs into domain levels tagged
// with the Bitstamp exchange, eliding zero amounts and capping at depth.
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
		amount, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, err
		}
		if amount.IsZero() {
			continue
		}
		levels = append(levels, domain.Level{
			Price:    price,
			Amount:   amount,
			Exchange: domain.ExchangeBitstamp,
		})
	}
	return levels, nil
}

// ToBookSlice converts the payload into the merger's ingress type.
func (d *OrderBookData) ToBookSlice(depth int) (domain.BookSlice, error) {
	bids, err := parseLevels(d.Bids, depth)
	if err != nil {
		return domain.BookSlice{}, err
	}
	asks, err := parseLevels(d.Asks, depth)
	if err != nil {
		return domain.BookSlice{}, err
	}
	return domain.BookSlice{
		Exchange: domain.ExchangeBitstamp,
		Bids:     bids,
		Asks:     asks,
	}, nil
}
