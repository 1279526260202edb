package domain

import "github.com/shopspring/decimal"

// Book holds the most recent BookSlice from each exchange and produces the
// consolidated Summary. It has a single owner (the merger task); nothing
// here is safe for concurrent use.
type Book struct {
	slices [exchangeCount]*BookSlice
	depth  int
}

// NewBook creates an empty consolidated book with the given per-side depth.
func NewBook(depth int) *Book {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Book{depth: depth}
}

// Depth returns the configured per-side level count.
func (b *Book) Depth() int {
	return b.depth
}

// Install replaces the retained slice for the slice's exchange. The previous
// slice from that exchange, if any, no longer contributes to summaries.
func (b *Book) Install(s BookSlice) {
	if len(s.Bids) > b.depth {
		s.Bids = s.Bids[:b.depth]
	}
	if len(s.Asks) > b.depth {
		s.Asks = s.Asks[:b.depth]
	}
	b.slices[s.Exchange] = &s
}

// Summarize runs the k-way merge over the retained slices and returns the
// consolidated top-N for both sides. Work is O(e*depth) with e the number
// of exchanges; retained slices are read in place, never copied.
func (b *Book) Summarize() Summary {
	bids := b.mergeSide(SideBid)
	asks := b.mergeSide(SideAsk)

	spread := decimal.Zero
	if len(bids) > 0 && len(asks) > 0 {
		spread = asks[0].Price.Sub(bids[0].Price)
	}

	return Summary{
		Spread: spread,
		Bids:   bids,
		Asks:   asks,
	}
}

// mergeSide merges one side of every retained slice. A linear scan across
// the per-exchange cursors beats a heap at this k: the cursor whose current
// level has the best price is selected each round, ties broken by exchange
// rank, which makes the merge total and the output deterministic.
func (b *Book) mergeSide(side Side) []Level {
	var cursors [exchangeCount]int

	out := make([]Level, 0, b.depth)
	for len(out) < b.depth {
		best := -1
		var bestLevel Level

		for e := Exchange(0); e < exchangeCount; e++ {
			s := b.slices[e]
			if s == nil {
				continue
			}
			levels := s.side(side)
			if cursors[e] >= len(levels) {
				continue
			}
			l := levels[cursors[e]]
			if best == -1 || l.Better(bestLevel, side) {
				best = int(e)
				bestLevel = l
			}
		}

		if best == -1 {
			break // all cursors exhausted
		}

		out = append(out, bestLevel)
		cursors[best]++
	}

	return out
}
