// Package domain contains the core domain types for the chain context.
package domain

import (
	"math/big"
	"time"
)

// GasPrice represents observed gas price information.
type GasPrice struct {
	Wei       *big.Int
	Gwei      float64
	Timestamp time.Time
}

// NewGasPrice creates a GasPrice from wei.
func NewGasPrice(wei *big.Int) *GasPrice {
	gwei := new(big.Float).SetInt(wei)
	gwei.Quo(gwei, big.NewFloat(1e9))
	gweiFloat, _ := gwei.Float64()

	return &GasPrice{
		Wei:       wei,
		Gwei:      gweiFloat,
		Timestamp: time.Now(),
	}
}

// GasEstimate represents estimated gas costs for an operation.
type GasEstimate struct {
	GasLimit  uint64
	GasPrice  *GasPrice
	TotalWei  *big.Int
	TotalGwei float64
}

// CalculateGasEstimate computes the total gas cost.
func CalculateGasEstimate(gasLimit uint64, gasPrice *GasPrice) *GasEstimate {
	totalWei := new(big.Int).Mul(gasPrice.Wei, big.NewInt(int64(gasLimit)))
	totalGwei := gasPrice.Gwei * float64(gasLimit)

	return &GasEstimate{
		GasLimit:  gasLimit,
		GasPrice:  gasPrice,
		TotalWei:  totalWei,
		TotalGwei: totalGwei,
	}
}

// GasStrategy decides the gas price for a transaction. elapsed is the time
// since the first submission attempt, so strategies can escalate stuck
// transactions. A nil result defers the decision to the node.
type GasStrategy interface {
	Price(elapsed time.Duration) *big.Int
}

// NodeGas defers every pricing decision to the connected node.
type NodeGas struct{}

func (NodeGas) Price(time.Duration) *big.Int { return nil }

// FixedGas always returns the same price.
type FixedGas struct {
	Wei *big.Int
}

// NewFixedGas creates a fixed gas strategy from a wei value.
func NewFixedGas(wei int64) FixedGas {
	return FixedGas{Wei: big.NewInt(wei)}
}

func (g FixedGas) Price(time.Duration) *big.Int {
	return new(big.Int).Set(g.Wei)
}

// IncreasingGas starts at InitialWei and adds IncreaseWei for every full
// Every interval elapsed. There is no upper bound here; callers clamp.
type IncreasingGas struct {
	InitialWei  *big.Int
	IncreaseWei *big.Int
	Every       time.Duration
}

// NewIncreasingGas creates an escalating gas strategy.
func NewIncreasingGas(initialWei, increaseWei int64, every time.Duration) IncreasingGas {
	return IncreasingGas{
		InitialWei:  big.NewInt(initialWei),
		IncreaseWei: big.NewInt(increaseWei),
		Every:       every,
	}
}

func (g IncreasingGas) Price(elapsed time.Duration) *big.Int {
	steps := int64(0)
	if g.Every > 0 && elapsed > 0 {
		steps = int64(elapsed / g.Every)
	}
	increase := new(big.Int).Mul(g.IncreaseWei, big.NewInt(steps))
	return increase.Add(increase, g.InitialWei)
}
