package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultDepth is the per-side level count retained and published when no
// explicit depth is configured.
const DefaultDepth = 10

// Side distinguishes the two halves of a book.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

// String returns the side name.
func (s Side) String() string {
	if s == SideBid {
		return "bid"
	}
	return "ask"
}

// Level is one (price, amount, exchange) triple in a book. Prices and
// amounts are exact decimals: comparisons never go through binary floats.
type Level struct {
	Price    decimal.Decimal
	Amount   decimal.Decimal
	Exchange Exchange
}

// Better reports whether l beats other for the given side: higher price
// wins for bids, lower for asks, and price ties go to the lower rank.
func (l Level) Better(other Level, side Side) bool {
	cmp := l.Price.Cmp(other.Price)
	if cmp == 0 {
		return l.Exchange.Rank() < other.Exchange.Rank()
	}
	if side == SideBid {
		return cmp > 0
	}
	return cmp < 0
}

// BookSlice is one exchange's sorted top-N view of both sides. Bids are
// non-increasing and asks non-decreasing in price; every level carries the
// slice's exchange and a positive amount.
type BookSlice struct {
	Exchange Exchange
	Bids     []Level
	Asks     []Level
}

// Validate checks the ingress invariants. Feed adapters are expected to
// uphold them; the merger rejects slices that do not.
func (s BookSlice) Validate() error {
	for i, l := range s.Bids {
		if l.Exchange != s.Exchange {
			return fmt.Errorf("bid %d carries exchange %s, slice is %s", i, l.Exchange, s.Exchange)
		}
		if l.Amount.Sign() <= 0 {
			return fmt.Errorf("bid %d has non-positive amount %s", i, l.Amount)
		}
		if i > 0 && s.Bids[i-1].Price.LessThan(l.Price) {
			return fmt.Errorf("bids not sorted at %d: %s < %s", i, s.Bids[i-1].Price, l.Price)
		}
	}
	for i, l := range s.Asks {
		if l.Exchange != s.Exchange {
			return fmt.Errorf("ask %d carries exchange %s, slice is %s", i, l.Exchange, s.Exchange)
		}
		if l.Amount.Sign() <= 0 {
			return fmt.Errorf("ask %d has non-positive amount %s", i, l.Amount)
		}
		if i > 0 && s.Asks[i-1].Price.GreaterThan(l.Price) {
			return fmt.Errorf("asks not sorted at %d: %s > %s", i, s.Asks[i-1].Price, l.Price)
		}
	}
	return nil
}

// side returns the requested side of the slice.
func (s *BookSlice) side(side Side) []Level {
	if side == SideBid {
		return s.Bids
	}
	return s.Asks
}
