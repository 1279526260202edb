package domain

import "github.com/shopspring/decimal"

// Summary is the consolidated top-N across all exchanges. Bids are
// non-increasing and asks non-decreasing in price. Spread is
// asks[0].price - bids[0].price, and 0 when either side is empty; use
// SpreadDefined to distinguish a genuine zero spread from the sentinel.
// A Summary is immutable once produced: the merger hands the same value
// to every subscriber.
type Summary struct {
	Spread decimal.Decimal
	Bids   []Level
	Asks   []Level
}

// SpreadDefined reports whether both sides are populated, i.e. whether
// Spread carries a real value rather than the empty-side sentinel.
func (s Summary) SpreadDefined() bool {
	return len(s.Bids) > 0 && len(s.Asks) > 0
}

// BestBid returns the best (highest) bid, or false when the side is empty.
func (s Summary) BestBid() (Level, bool) {
	if len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the best (lowest) ask, or false when the side is empty.
func (s Summary) BestAsk() (Level, bool) {
	if len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}
