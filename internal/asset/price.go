package asset

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Price is an observed exchange rate between two assets: quote units
// per base unit, with the time of observation.
type Price struct {
	base  *Asset
	quote *Asset
	rate  decimal.Decimal
	at    time.Time
}

// NewPrice builds a price observed at the given time. Panics on nil
// assets or a negative rate.
func NewPrice(base, quote *Asset, rate decimal.Decimal, at time.Time) Price {
	if base == nil || quote == nil {
		panic(ErrNilAsset)
	}
	if rate.IsNegative() {
		panic(ErrNegativeAmount)
	}
	return Price{base: base, quote: quote, rate: rate, at: at}
}

// NewPriceNow builds a price observed now.
func NewPriceNow(base, quote *Asset, rate decimal.Decimal) Price {
	return NewPrice(base, quote, rate, time.Now())
}

// Rate returns quote units per base unit.
func (p Price) Rate() decimal.Decimal {
	return p.rate
}

// Base returns the asset being priced.
func (p Price) Base() *Asset {
	return p.base
}

// Quote returns the asset the price is stated in.
func (p Price) Quote() *Asset {
	return p.quote
}

// Timestamp returns when the price was observed.
func (p Price) Timestamp() time.Time {
	return p.at
}

// Pair renders e.g. "WETH/DAI".
func (p Price) Pair() string {
	if p.base == nil || p.quote == nil {
		return "?/?"
	}
	return fmt.Sprintf("%s/%s", p.base.Symbol(), p.quote.Symbol())
}

// IsZero reports whether the rate is zero.
func (p Price) IsZero() bool {
	return p.rate.IsZero()
}

// Invert restates the price with base and quote swapped. The inverse
// of a zero price is zero.
func (p Price) Invert() Price {
	inv := Price{base: p.quote, quote: p.base, at: p.at}
	if !p.rate.IsZero() {
		inv.rate = decimal.NewFromInt(1).Div(p.rate)
	}
	return inv
}

// Convert values an amount of the base asset in the quote asset,
// truncated to the quote asset's decimals.
func (p Price) Convert(amount Amount) (Amount, error) {
	if amount.Asset() == nil {
		return Amount{}, ErrNilAsset
	}
	if !amount.Asset().ID().Equals(p.base.ID()) {
		return Amount{}, fmt.Errorf("%w: priced in %s, got %s",
			ErrAssetMismatch, p.base.Symbol(), amount.Asset().Symbol())
	}
	value := amount.ToDecimal().Mul(p.rate).Truncate(int32(p.quote.Decimals()))
	return ParseDecimal(p.quote, value)
}

func (p Price) String() string {
	return fmt.Sprintf("%s %s", p.rate.String(), p.Pair())
}
