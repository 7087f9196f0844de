// Package domain contains the core domain types for the arbitrage context:
// conversion edges, candidate paths, evaluated quotes, and execution plans.
package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// GasCost is the estimated gas cost of executing one plan, stated in the
// base asset so it subtracts directly from gross profit.
type GasCost struct {
	Limit    uint64
	PriceWei *big.Int
	TotalWei *big.Int        // Limit * PriceWei
	Native   decimal.Decimal // total in native currency units
	Base     decimal.Decimal // total in base-asset units
}

// NewGasCost computes a GasCost from a gas limit and price. nativeBase
// converts native currency into base-asset units (1 when the base asset
// is the wrapped native token).
func NewGasCost(limit uint64, priceWei *big.Int, nativeBase decimal.Decimal) GasCost {
	totalWei := new(big.Int).Mul(priceWei, new(big.Int).SetUint64(limit))
	native := decimal.NewFromBigInt(totalWei, -18)

	return GasCost{
		Limit:    limit,
		PriceWei: priceWei,
		TotalWei: totalWei,
		Native:   native,
		Base:     native.Mul(nativeBase),
	}
}
