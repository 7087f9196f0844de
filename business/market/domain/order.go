package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dexkeep/keeperbot/internal/asset"
)

// Order is a resting order on the on-chain order book, stated from the
// maker's perspective: the maker gives Sell and asks Buy in return.
type Order struct {
	ID    uint64
	Owner common.Address
	Sell  asset.Amount // what the maker offers to the book
	Buy   asset.Amount // what the maker wants from the book
}

// SideFor returns the side of the order relative to pair.
// Orders sell-side offer the base asset, buy-side offer the quote asset.
func (o Order) SideFor(p Pair) (Side, error) {
	sellAsset := o.Sell.Asset()
	buyAsset := o.Buy.Asset()
	if sellAsset == nil || buyAsset == nil {
		return "", fmt.Errorf("market: order %d has no assets", o.ID)
	}

	switch {
	case sellAsset.Equals(p.Base()) && buyAsset.Equals(p.Quote()):
		return SideSell, nil
	case sellAsset.Equals(p.Quote()) && buyAsset.Equals(p.Base()):
		return SideBuy, nil
	}
	return "", fmt.Errorf("market: order %d (%s/%s) does not belong to pair %s",
		o.ID, sellAsset.Symbol(), buyAsset.Symbol(), p)
}

// PriceFor returns the order price in quote units per base unit.
func (o Order) PriceFor(p Pair) (decimal.Decimal, error) {
	side, err := o.SideFor(p)
	if err != nil {
		return decimal.Zero, err
	}

	switch side {
	case SideSell:
		// maker gives base, asks quote: price = buy / sell
		if o.Sell.IsZero() {
			return decimal.Zero, fmt.Errorf("market: order %d offers zero base", o.ID)
		}
		return o.Buy.ToDecimal().Div(o.Sell.ToDecimal()), nil
	default:
		// maker gives quote, asks base: price = sell / buy
		if o.Buy.IsZero() {
			return decimal.Zero, fmt.Errorf("market: order %d asks zero base", o.ID)
		}
		return o.Sell.ToDecimal().Div(o.Buy.ToDecimal()), nil
	}
}

// BaseAmountFor returns the base quantity the order would move if fully filled.
func (o Order) BaseAmountFor(p Pair) (asset.Amount, error) {
	side, err := o.SideFor(p)
	if err != nil {
		return asset.Amount{}, err
	}
	if side == SideSell {
		return o.Sell, nil
	}
	return o.Buy, nil
}

// QuoteAmountFor returns the quote quantity the order would move if fully filled.
func (o Order) QuoteAmountFor(p Pair) (asset.Amount, error) {
	side, err := o.SideFor(p)
	if err != nil {
		return asset.Amount{}, err
	}
	if side == SideSell {
		return o.Buy, nil
	}
	return o.Sell, nil
}

// NewOrder describes an order to be placed on the book.
type NewOrder struct {
	Pair Pair
	Side Side
	Sell asset.Amount // given to the book
	Buy  asset.Amount // asked from the book
}

// Validate checks that the amounts match the declared pair and side.
func (n NewOrder) Validate() error {
	if n.Sell.IsZero() || n.Buy.IsZero() {
		return fmt.Errorf("market: new order amounts must be positive")
	}

	order := Order{Sell: n.Sell, Buy: n.Buy}
	side, err := order.SideFor(n.Pair)
	if err != nil {
		return err
	}
	if side != n.Side {
		return fmt.Errorf("market: new order declares %s but amounts imply %s", n.Side, side)
	}
	return nil
}

// Price returns the price of the prospective order in quote per base.
func (n NewOrder) Price() (decimal.Decimal, error) {
	return Order{Sell: n.Sell, Buy: n.Buy}.PriceFor(n.Pair)
}
