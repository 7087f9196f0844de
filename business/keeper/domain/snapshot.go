// Package domain contains the types shared by every keeper strategy: the
// per-cycle state snapshot and the actions strategies emit against it.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	chainDomain "github.com/dexkeep/keeperbot/business/chain/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	vaultDomain "github.com/dexkeep/keeperbot/business/vault/domain"
	"github.com/dexkeep/keeperbot/internal/asset"
)

// PoolState is the mint/redeem pool as read in one cycle. Rates are target
// units received per source unit paid.
type PoolState struct {
	MintRate       decimal.Decimal
	RedeemRate     decimal.Decimal
	MintCapacity   asset.Amount
	RedeemCapacity asset.Amount
}

// Snapshot is the chain state one strategy cycle acts on. It is built fresh
// at the start of every cycle and discarded at the end; nothing in it
// survives into the next cycle.
//
// Sections a keeper does not need are left nil. Books and Prices are keyed
// by pair string ("WETH-DAI"), Balances by asset symbol.
type Snapshot struct {
	BlockNumber uint64
	TakenAt     time.Time
	Account     common.Address

	Balances map[string]asset.Amount
	Books    map[string]*marketDomain.OrderBook
	Prices   map[string]marketDomain.ReferencePrice

	GasPrice *chainDomain.GasPrice

	// NativeBase converts native-currency amounts into base-asset units:
	// base = native * NativeBase. It is 1 when the base asset is the
	// wrapped native token.
	NativeBase decimal.Decimal

	Pool *PoolState

	Cups             []vaultDomain.Cup
	LiquidationRatio decimal.Decimal
	CollateralPrice  decimal.Decimal
}

// Balance returns the account's balance of a, or a zero amount when the
// snapshot does not track it.
func (s *Snapshot) Balance(a *asset.Asset) asset.Amount {
	if amt, ok := s.Balances[a.Symbol()]; ok {
		return amt
	}
	return asset.Zero(a)
}

// Book returns the order book for pair, if the snapshot carries one.
func (s *Snapshot) Book(pair marketDomain.Pair) (*marketDomain.OrderBook, bool) {
	book, ok := s.Books[pair.String()]
	return book, ok
}

// Price returns the reference price for pair, if the snapshot carries one.
func (s *Snapshot) Price(pair marketDomain.Pair) (marketDomain.ReferencePrice, bool) {
	price, ok := s.Prices[pair.String()]
	return price, ok
}

// OwnOrders returns the account's resting orders on pair, oldest first.
// It returns nil when the snapshot has no book for the pair.
func (s *Snapshot) OwnOrders(pair marketDomain.Pair) []marketDomain.Order {
	book, ok := s.Book(pair)
	if !ok {
		return nil
	}
	return book.OwnOrders(s.Account)
}
