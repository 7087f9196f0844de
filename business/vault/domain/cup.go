// Package domain contains the core domain types for the vault context.
package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dexkeep/keeperbot/internal/asset"
)

// Cup is a collateralized position in the vault engine: locked collateral
// backing drawn stablecoin debt.
type Cup struct {
	ID    uint64
	Owner common.Address
	Ink   asset.Amount // locked collateral
	Tab   asset.Amount // outstanding debt, fees included
	Safe  bool         // safety flag as reported by the engine at snapshot time
}

// HasDebt reports whether the cup has any outstanding debt.
func (c Cup) HasDebt() bool {
	return c.Tab.IsPositive()
}

// CollateralizationRatio returns ink*price/tab, the cup's current ratio.
// price is the collateral price in debt units. The second return is false
// when the cup has no debt and the ratio is undefined.
func (c Cup) CollateralizationRatio(price decimal.Decimal) (decimal.Decimal, bool) {
	if !c.HasDebt() {
		return decimal.Zero, false
	}
	value := c.Ink.ToDecimal().Mul(price)
	return value.Div(c.Tab.ToDecimal()), true
}

// RequiredTopUp returns the collateral amount needed to raise the cup's
// ratio back to targetRatio, or false when the cup is above minRatio or
// has no debt.
//
//	topUp = tab * (targetRatio - currentRatio) / price
func (c Cup) RequiredTopUp(price, minRatio, targetRatio decimal.Decimal) (asset.Amount, bool) {
	current, ok := c.CollateralizationRatio(price)
	if !ok {
		return asset.Zero(c.Ink.Asset()), false
	}
	if current.GreaterThanOrEqual(minRatio) {
		return asset.Zero(c.Ink.Asset()), false
	}

	needed := c.Tab.ToDecimal().Mul(targetRatio.Sub(current)).Div(price)
	amount, err := asset.ParseDecimal(c.Ink.Asset(),
		needed.Truncate(int32(c.Ink.Asset().Decimals())))
	if err != nil {
		return asset.Zero(c.Ink.Asset()), false
	}
	return amount, amount.IsPositive()
}

// IsUndercollateralized recomputes the engine's safety condition locally:
// a cup is unsafe when ink*price < tab*liquidationRatio.
func (c Cup) IsUndercollateralized(price, liquidationRatio decimal.Decimal) bool {
	if !c.HasDebt() {
		return false
	}
	value := c.Ink.ToDecimal().Mul(price)
	floor := c.Tab.ToDecimal().Mul(liquidationRatio)
	return value.LessThan(floor)
}
