// Package asset models the tokens a keeper handles and exact
// quantities of them. Quantities are raw smallest-unit integers;
// decimals only appear at the edges (config, price feeds, logs).
package asset

import "github.com/ethereum/go-ethereum/common"

// Asset carries the metadata needed to move and display one asset.
// Identity is the AssetID; the symbol is display metadata only.
type Asset struct {
	id       AssetID
	symbol   string
	name     string
	decimals uint8
}

// NewAsset builds an asset. Panics on an empty symbol or decimals
// above 30; registries are assembled during boot and stop the process
// on bad metadata.
func NewAsset(id AssetID, symbol, name string, decimals uint8) *Asset {
	if symbol == "" {
		panic("asset: empty symbol")
	}
	if decimals > 30 {
		panic("asset: decimals out of range")
	}
	return &Asset{id: id, symbol: symbol, name: name, decimals: decimals}
}

// ID returns the asset's identity.
func (a *Asset) ID() AssetID {
	return a.id
}

// Symbol returns the ticker symbol, e.g. "DAI".
func (a *Asset) Symbol() string {
	return a.symbol
}

// Name returns the display name, falling back to the symbol.
func (a *Asset) Name() string {
	if a.name == "" {
		return a.symbol
	}
	return a.name
}

// Decimals returns the number of decimal places of the smallest unit.
func (a *Asset) Decimals() uint8 {
	return a.decimals
}

// ChainID returns the chain the asset lives on.
func (a *Asset) ChainID() uint64 {
	return a.id.ChainID()
}

// Address returns the contract address, zero for the native coin.
func (a *Asset) Address() common.Address {
	return a.id.Address()
}

// IsNative reports whether this is the chain's native coin.
func (a *Asset) IsNative() bool {
	return a.id.IsNative()
}

// IsToken reports whether this is a contract token.
func (a *Asset) IsToken() bool {
	return a.id.IsToken()
}

// Equals compares identity, not metadata.
func (a *Asset) Equals(other *Asset) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.id.Equals(other.id)
}

func (a *Asset) String() string {
	return a.symbol
}
