// Package symbol provides the type-safe asset and trading-pair model.
// Assets are a closed set: strings outside it are rejected at
// configuration time, never at runtime.
package symbol

import (
	"strings"

	"github.com/fd1az/orderbook-aggregator/internal/apperror"
)

// Asset is a recognized asset symbol code.
type Asset string

// The closed set of recognized assets.
const (
	BTC  Asset = "BTC"
	ETH  Asset = "ETH"
	XRP  Asset = "XRP"
	LTC  Asset = "LTC"
	ADA  Asset = "ADA"
	SOL  Asset = "SOL"
	USDT Asset = "USDT"
	USDC Asset = "USDC"
	USD  Asset = "USD"
	EUR  Asset = "EUR"
)

// knownAssets is the membership index for ParseAsset.
var knownAssets = map[Asset]struct{}{
	BTC: {}, ETH: {}, XRP: {}, LTC: {}, ADA: {},
	SOL: {}, USDT: {}, USDC: {}, USD: {}, EUR: {},
}

// ParseAsset converts a user string into an Asset. Case-insensitive.
func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownAssets[a]; !ok {
		return "", apperror.New(apperror.CodeUnknownAsset,
			apperror.WithContext(s))
	}
	return a, nil
}

// String returns the canonical upper-case symbol code.
func (a Asset) String() string {
	return string(a)
}

// Pair is an ordered (base, quote) tuple with base != quote.
type Pair struct {
	Base  Asset
	Quote Asset
}

// ParsePair parses a "base/quote" string, case-insensitive.
// Examples: "eth/btc", "BTC/USDT".
func ParsePair(s string) (Pair, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok {
		return Pair{}, apperror.New(apperror.CodeInvalidPair,
			apperror.WithContext(s))
	}

	b, err := ParseAsset(base)
	if err != nil {
		return Pair{}, err
	}
	q, err := ParseAsset(quote)
	if err != nil {
		return Pair{}, err
	}
	if b == q {
		return Pair{}, apperror.New(apperror.CodeInvalidPair,
			apperror.WithContext("base and quote must differ: "+s))
	}

	return Pair{Base: b, Quote: q}, nil
}

// String returns the canonical "BASE/QUOTE" form.
func (p Pair) String() string {
	return p.Base.String() + "/" + p.Quote.String()
}

// Lower returns the concatenated lower-case form used by most exchange
// stream names (e.g. "ethbtc").
func (p Pair) Lower() string {
	return strings.ToLower(p.Base.String() + p.Quote.String())
}

// Upper returns the concatenated upper-case form (e.g. "ETHBTC").
func (p Pair) Upper() string {
	return p.Base.String() + p.Quote.String()
}
