// Package domain contains the order band policy for the market-making
// context: per (pair, side) price corridors and the reconciliation rule
// that keeps resting orders inside them.
package domain

import (
	"github.com/shopspring/decimal"

	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
)

var one = decimal.NewFromInt(1)

// Band is the price-and-inventory policy for one side of one pair.
// Margins are stated relative to the reference price; amounts are
// denominated in the offered asset: base when selling, quote when
// buying.
type Band struct {
	Pair marketDomain.Pair
	Side marketDomain.Side

	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal

	MinMargin decimal.Decimal
	AvgMargin decimal.Decimal
	MaxMargin decimal.Decimal
}

// NewBand validates the policy: amounts positive and ordered, margins
// ordered min <= avg <= max.
func NewBand(pair marketDomain.Pair, side marketDomain.Side, minAmount, maxAmount, minMargin, avgMargin, maxMargin decimal.Decimal) (Band, error) {
	if !minAmount.IsPositive() || maxAmount.LessThan(minAmount) {
		return Band{}, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("band amounts must satisfy 0 < min <= max"),
			apperror.WithContext("maker"))
	}
	if minMargin.GreaterThan(avgMargin) || avgMargin.GreaterThan(maxMargin) {
		return Band{}, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("band margins must satisfy min <= avg <= max"),
			apperror.WithContext("maker"))
	}

	return Band{
		Pair:      pair,
		Side:      side,
		MinAmount: minAmount,
		MaxAmount: maxAmount,
		MinMargin: minMargin,
		AvgMargin: avgMargin,
		MaxMargin: maxMargin,
	}, nil
}

// Key identifies the band as "BASE-QUOTE/side".
func (b Band) Key() string {
	return b.Pair.String() + "/" + string(b.Side)
}

// OfferedAsset is what the keeper pays into this band's orders.
func (b Band) OfferedAsset() *asset.Asset {
	if b.Side == marketDomain.SideSell {
		return b.Pair.Base()
	}
	return b.Pair.Quote()
}

// Margin is the price's distance from ref in the direction that favors
// the maker: sell orders above ref and buy orders below ref carry
// positive margin.
func (b Band) Margin(price, ref decimal.Decimal) decimal.Decimal {
	if b.Side == marketDomain.SideSell {
		return price.Div(ref).Sub(one)
	}
	return one.Sub(price.Div(ref))
}

// Within reports whether the price's margin falls inside the band.
func (b Band) Within(price, ref decimal.Decimal) bool {
	m := b.Margin(price, ref)
	return m.GreaterThanOrEqual(b.MinMargin) && m.LessThanOrEqual(b.MaxMargin)
}

// TargetPrice is where replenishing orders are priced.
func (b Band) TargetPrice(ref decimal.Decimal, places int32) decimal.Decimal {
	var p decimal.Decimal
	if b.Side == marketDomain.SideSell {
		p = ref.Mul(one.Add(b.AvgMargin))
	} else {
		p = ref.Mul(one.Sub(b.AvgMargin))
	}
	return p.Round(places)
}
