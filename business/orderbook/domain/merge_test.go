package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

// lvl builds a Level from string fixtures to keep comparisons exact.
func lvl(t *testing.T, price, amount string, e Exchange) Level {
	t.Helper()
	p, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatalf("bad price fixture %q: %v", price, err)
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("bad amount fixture %q: %v", amount, err)
	}
	return Level{Price: p, Amount: a, Exchange: e}
}

func slice(e Exchange, bids, asks []Level) BookSlice {
	return BookSlice{Exchange: e, Bids: bids, Asks: asks}
}

func requireLevels(t *testing.T, got, want []Level, side string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %d levels, want %d (%v)", side, len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Price.Equal(want[i].Price) ||
			!got[i].Amount.Equal(want[i].Amount) ||
			got[i].Exchange != want[i].Exchange {
			t.Errorf("%s[%d] = (%s, %s, %s), want (%s, %s, %s)",
				side, i,
				got[i].Price, got[i].Amount, got[i].Exchange,
				want[i].Price, want[i].Amount, want[i].Exchange)
		}
	}
}

func TestBookEmptyThenOneSide(t *testing.T) {
	b := NewBook(10)

	b.Install(slice(ExchangeBinance,
		[]Level{lvl(t, "100", "1", ExchangeBinance)},
		nil,
	))
	sum := b.Summarize()

	requireLevels(t, sum.Bids, []Level{lvl(t, "100", "1", ExchangeBinance)}, "bids")
	requireLevels(t, sum.Asks, nil, "asks")
	if !sum.Spread.IsZero() {
		t.Errorf("spread = %s, want 0 sentinel", sum.Spread)
	}
	if sum.SpreadDefined() {
		t.Error("SpreadDefined() = true for one-sided book")
	}
}

func TestBookAddSecondExchange(t *testing.T) {
	b := NewBook(10)

	b.Install(slice(ExchangeBinance,
		[]Level{lvl(t, "100", "1", ExchangeBinance)},
		nil,
	))
	b.Install(slice(ExchangeBitstamp,
		[]Level{lvl(t, "101", "2", ExchangeBitstamp)},
		[]Level{lvl(t, "102", "1", ExchangeBitstamp)},
	))
	sum := b.Summarize()

	requireLevels(t, sum.Bids, []Level{
		lvl(t, "101", "2", ExchangeBitstamp),
		lvl(t, "100", "1", ExchangeBinance),
	}, "bids")
	requireLevels(t, sum.Asks, []Level{
		lvl(t, "102", "1", ExchangeBitstamp),
	}, "asks")
	if want := decimal.NewFromInt(1); !sum.Spread.Equal(want) {
		t.Errorf("spread = %s, want %s", sum.Spread, want)
	}
	if !sum.SpreadDefined() {
		t.Error("SpreadDefined() = false with both sides populated")
	}
}

func TestBookReplacesStaleSlice(t *testing.T) {
	b := NewBook(10)

	b.Install(slice(ExchangeBinance,
		[]Level{lvl(t, "100", "1", ExchangeBinance)},
		nil,
	))
	b.Install(slice(ExchangeBitstamp,
		[]Level{lvl(t, "101", "2", ExchangeBitstamp)},
		[]Level{lvl(t, "102", "1", ExchangeBitstamp)},
	))

	// A fresh Binance slice fully replaces the old one: the 100 bid is gone.
	b.Install(slice(ExchangeBinance,
		[]Level{lvl(t, "99", "5", ExchangeBinance)},
		[]Level{lvl(t, "103", "4", ExchangeBinance)},
	))
	sum := b.Summarize()

	requireLevels(t, sum.Bids, []Level{
		lvl(t, "101", "2", ExchangeBitstamp),
		lvl(t, "99", "5", ExchangeBinance),
	}, "bids")
	requireLevels(t, sum.Asks, []Level{
		lvl(t, "102", "1", ExchangeBitstamp),
		lvl(t, "103", "4", ExchangeBinance),
	}, "asks")
	if want := decimal.NewFromInt(1); !sum.Spread.Equal(want) {
		t.Errorf("spread = %s, want %s", sum.Spread, want)
	}
}

func TestBookTieBreakByRank(t *testing.T) {
	b := NewBook(10)

	// Bitstamp's equal-priced bid arrives first; Binance (lower rank)
	// must still come out ahead.
	b.Install(slice(ExchangeBitstamp,
		[]Level{lvl(t, "100", "2", ExchangeBitstamp)},
		nil,
	))
	b.Install(slice(ExchangeBinance,
		[]Level{lvl(t, "100", "1", ExchangeBinance)},
		nil,
	))
	sum := b.Summarize()

	requireLevels(t, sum.Bids, []Level{
		lvl(t, "100", "1", ExchangeBinance),
		lvl(t, "100", "2", ExchangeBitstamp),
	}, "bids")
}

func TestBookDepthCap(t *testing.T) {
	b := NewBook(2)

	bids := func(e Exchange) []Level {
		return []Level{
			lvl(t, "5", "1", e),
			lvl(t, "4", "1", e),
			lvl(t, "3", "1", e),
		}
	}
	b.Install(slice(ExchangeBinance, bids(ExchangeBinance), nil))
	b.Install(slice(ExchangeBitstamp, bids(ExchangeBitstamp), nil))
	sum := b.Summarize()

	requireLevels(t, sum.Bids, []Level{
		lvl(t, "5", "1", ExchangeBinance),
		lvl(t, "5", "1", ExchangeBitstamp),
	}, "bids")
}

func TestBookDepthCapSingleFive(t *testing.T) {
	b := NewBook(2)

	b.Install(slice(ExchangeBinance, []Level{
		lvl(t, "5", "1", ExchangeBinance),
		lvl(t, "4", "1", ExchangeBinance),
	}, nil))
	b.Install(slice(ExchangeBitstamp, []Level{
		lvl(t, "3", "1", ExchangeBitstamp),
	}, nil))
	sum := b.Summarize()

	// Only one exchange quotes 5, so the second slot is the next-best 4.
	requireLevels(t, sum.Bids, []Level{
		lvl(t, "5", "1", ExchangeBinance),
		lvl(t, "4", "1", ExchangeBinance),
	}, "bids")
}

func TestBookDeterminism(t *testing.T) {
	run := func() []Summary {
		b := NewBook(3)
		var out []Summary

		b.Install(slice(ExchangeBitstamp,
			[]Level{lvl(t, "100.5", "2", ExchangeBitstamp), lvl(t, "100.1", "1", ExchangeBitstamp)},
			[]Level{lvl(t, "100.9", "3", ExchangeBitstamp)},
		))
		out = append(out, b.Summarize())

		b.Install(slice(ExchangeBinance,
			[]Level{lvl(t, "100.5", "4", ExchangeBinance)},
			[]Level{lvl(t, "100.7", "1", ExchangeBinance), lvl(t, "100.9", "2", ExchangeBinance)},
		))
		out = append(out, b.Summarize())

		b.Install(slice(ExchangeBitstamp,
			[]Level{lvl(t, "100.6", "1", ExchangeBitstamp)},
			[]Level{lvl(t, "100.8", "1", ExchangeBitstamp)},
		))
		out = append(out, b.Summarize())

		return out
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatal("runs produced different summary counts")
	}
	for i := range first {
		requireLevels(t, second[i].Bids, first[i].Bids, "bids")
		requireLevels(t, second[i].Asks, first[i].Asks, "asks")
		if !first[i].Spread.Equal(second[i].Spread) {
			t.Errorf("summary %d spread differs: %s vs %s", i, first[i].Spread, second[i].Spread)
		}
	}
}

func TestBookSortednessAndProvenance(t *testing.T) {
	b := NewBook(4)

	slices := []BookSlice{
		slice(ExchangeBinance,
			[]Level{lvl(t, "99.9", "1", ExchangeBinance), lvl(t, "99.5", "2", ExchangeBinance), lvl(t, "99.1", "3", ExchangeBinance)},
			[]Level{lvl(t, "100.1", "1", ExchangeBinance), lvl(t, "100.4", "2", ExchangeBinance)},
		),
		slice(ExchangeBitstamp,
			[]Level{lvl(t, "99.8", "5", ExchangeBitstamp), lvl(t, "99.5", "1", ExchangeBitstamp)},
			[]Level{lvl(t, "100.2", "4", ExchangeBitstamp), lvl(t, "100.4", "1", ExchangeBitstamp), lvl(t, "100.6", "2", ExchangeBitstamp)},
		),
	}

	inputs := make(map[string]bool)
	for _, s := range slices {
		b.Install(s)
		for _, l := range append(append([]Level{}, s.Bids...), s.Asks...) {
			inputs[l.Price.String()+"|"+l.Amount.String()+"|"+l.Exchange.String()] = true
		}
	}

	sum := b.Summarize()

	if len(sum.Bids) > 4 || len(sum.Asks) > 4 {
		t.Fatalf("depth cap violated: %d bids, %d asks", len(sum.Bids), len(sum.Asks))
	}
	for i := 1; i < len(sum.Bids); i++ {
		if sum.Bids[i-1].Price.LessThan(sum.Bids[i].Price) {
			t.Errorf("bids not non-increasing at %d", i)
		}
	}
	for i := 1; i < len(sum.Asks); i++ {
		if sum.Asks[i-1].Price.GreaterThan(sum.Asks[i].Price) {
			t.Errorf("asks not non-decreasing at %d", i)
		}
	}
	for _, l := range append(append([]Level{}, sum.Bids...), sum.Asks...) {
		key := l.Price.String() + "|" + l.Amount.String() + "|" + l.Exchange.String()
		if !inputs[key] {
			t.Errorf("level %s not drawn verbatim from any input slice", key)
		}
	}
}

func TestBookSliceValidate(t *testing.T) {
	tests := []struct {
		name    string
		slice   BookSlice
		wantErr bool
	}{
		{
			name: "valid",
			slice: slice(ExchangeBinance,
				[]Level{lvl(t, "2", "1", ExchangeBinance), lvl(t, "1", "1", ExchangeBinance)},
				[]Level{lvl(t, "3", "1", ExchangeBinance), lvl(t, "4", "1", ExchangeBinance)},
			),
		},
		{
			name: "duplicate_price_same_exchange_tolerated",
			slice: slice(ExchangeBinance,
				[]Level{lvl(t, "2", "1", ExchangeBinance), lvl(t, "2", "3", ExchangeBinance)},
				nil,
			),
		},
		{
			name: "bids_ascending",
			slice: slice(ExchangeBinance,
				[]Level{lvl(t, "1", "1", ExchangeBinance), lvl(t, "2", "1", ExchangeBinance)},
				nil,
			),
			wantErr: true,
		},
		{
			name: "asks_descending",
			slice: slice(ExchangeBinance,
				nil,
				[]Level{lvl(t, "4", "1", ExchangeBinance), lvl(t, "3", "1", ExchangeBinance)},
			),
			wantErr: true,
		},
		{
			name: "zero_amount",
			slice: slice(ExchangeBinance,
				[]Level{lvl(t, "2", "0", ExchangeBinance)},
				nil,
			),
			wantErr: true,
		},
		{
			name: "foreign_exchange_level",
			slice: slice(ExchangeBinance,
				[]Level{lvl(t, "2", "1", ExchangeBitstamp)},
				nil,
			),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.slice.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBookInstallTruncatesToDepth(t *testing.T) {
	b := NewBook(2)
	b.Install(slice(ExchangeBinance,
		[]Level{
			lvl(t, "5", "1", ExchangeBinance),
			lvl(t, "4", "1", ExchangeBinance),
			lvl(t, "3", "1", ExchangeBinance),
			lvl(t, "2", "1", ExchangeBinance),
		},
		nil,
	))
	sum := b.Summarize()
	if len(sum.Bids) != 2 {
		t.Fatalf("got %d bids, want 2", len(sum.Bids))
	}
}
