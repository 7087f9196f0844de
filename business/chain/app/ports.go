// Package app contains application services and port definitions for the chain context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dexkeep/keeperbot/business/chain/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	vaultDomain "github.com/dexkeep/keeperbot/business/vault/domain"
	"github.com/dexkeep/keeperbot/internal/asset"
)

// NodeReader reads basic chain state.
type NodeReader interface {
	// BlockNumber returns the current block height.
	BlockNumber(ctx context.Context) (uint64, error)

	// ChainID returns the connected chain's ID.
	ChainID(ctx context.Context) (*big.Int, error)

	// IsSynced reports whether the node has finished syncing.
	IsSynced(ctx context.Context) (bool, error)

	// Balance returns the owner's balance of a single asset.
	Balance(ctx context.Context, a *asset.Asset, owner common.Address) (asset.Amount, error)
}

// TokenGateway manages ERC20 allowances for the operating account.
type TokenGateway interface {
	// Allowance returns how much spender may move on behalf of owner.
	Allowance(ctx context.Context, a *asset.Asset, owner, spender common.Address) (asset.Amount, error)

	// Approve grants spender an effectively unlimited allowance.
	Approve(ctx context.Context, a *asset.Asset, spender common.Address) (domain.TxHandle, error)
}

// ExchangeGateway is the on-chain order book.
type ExchangeGateway interface {
	// AllOrders returns every live order on the exchange, across all
	// pairs. One scan per cycle feeds all per-pair books.
	AllOrders(ctx context.Context) ([]marketDomain.Order, error)

	// OrderBook returns all live orders for the pair.
	OrderBook(ctx context.Context, pair marketDomain.Pair) (*marketDomain.OrderBook, error)

	// Order returns a single order by ID. The second return is false when
	// the order no longer exists on the book.
	Order(ctx context.Context, id uint64) (marketDomain.Order, bool, error)

	// MakeOrder places a new resting order.
	MakeOrder(ctx context.Context, order marketDomain.NewOrder) (domain.TxHandle, error)

	// CancelOrder removes one of the account's own orders.
	CancelOrder(ctx context.Context, id uint64) (domain.TxHandle, error)

	// TakeOrder fills a resting order. fill is denominated in the maker's
	// sell asset and may be less than the full order.
	TakeOrder(ctx context.Context, id uint64, fill asset.Amount) (domain.TxHandle, error)

	// PackTake encodes a take as a raw call for batch execution.
	PackTake(id uint64, fill asset.Amount) (domain.Call, error)
}

// PoolGateway is the fixed-rate mint/redeem pool of the stablecoin system.
// Rates are stated as target units received per source unit paid.
type PoolGateway interface {
	// MintRate is the stablecoin received per collateral token paid.
	MintRate(ctx context.Context) (decimal.Decimal, error)

	// RedeemRate is the collateral token received per stablecoin paid.
	RedeemRate(ctx context.Context) (decimal.Decimal, error)

	// MintCapacity is the maximum collateral token the pool accepts right now.
	MintCapacity(ctx context.Context) (asset.Amount, error)

	// RedeemCapacity is the maximum stablecoin the pool accepts right now.
	RedeemCapacity(ctx context.Context) (asset.Amount, error)

	// Mint pays collateral tokens into the pool for freshly minted stablecoin.
	Mint(ctx context.Context, pay asset.Amount) (domain.TxHandle, error)

	// Redeem pays stablecoin into the pool for collateral tokens.
	Redeem(ctx context.Context, pay asset.Amount) (domain.TxHandle, error)

	// PackMint and PackRedeem encode pool calls for batch execution.
	PackMint(pay asset.Amount) (domain.Call, error)
	PackRedeem(pay asset.Amount) (domain.Call, error)
}

// OracleReader reads the on-chain reference price oracle.
type OracleReader interface {
	// ReferencePrice returns the collateral price in stablecoin units per
	// collateral unit.
	ReferencePrice(ctx context.Context) (asset.Price, error)
}

// VaultGateway is the collateral vault engine.
type VaultGateway interface {
	// CupCount returns the number of cups ever opened.
	CupCount(ctx context.Context) (uint64, error)

	// Cup reads one cup's state, including its engine-reported safety.
	Cup(ctx context.Context, id uint64) (vaultDomain.Cup, error)

	// LiquidationRatio returns the engine's minimum collateralization ratio.
	LiquidationRatio(ctx context.Context) (decimal.Decimal, error)

	// CollateralPrice returns the engine's collateral valuation in debt
	// units per collateral unit.
	CollateralPrice(ctx context.Context) (decimal.Decimal, error)

	// Bite liquidates an unsafe cup. Any account may call it.
	Bite(ctx context.Context, id uint64) (domain.TxHandle, error)

	// LockCollateral adds collateral to one of the account's own cups.
	LockCollateral(ctx context.Context, id uint64, amount asset.Amount) (domain.TxHandle, error)
}

// BatchGateway executes multiple calls in a single transaction through the
// batching executor contract. The whole batch reverts if any call fails.
type BatchGateway interface {
	// Owner returns the executor contract's owner. Keepers verify at
	// startup that they control the executor before using atomic mode.
	Owner(ctx context.Context) (common.Address, error)

	// ExecuteBatch submits all calls as one transaction.
	ExecuteBatch(ctx context.Context, calls []domain.Call) (domain.TxHandle, error)
}

// Gateway aggregates every contract-facing capability a single node
// connection provides. Infra satisfies it with one client; keepers
// still bind only the narrow capabilities they need.
type Gateway interface {
	NodeReader
	TokenGateway
	ExchangeGateway
	PoolGateway
	OracleReader
	VaultGateway
	BatchGateway
	TxConfirmer
}

// TxConfirmer waits for submitted transactions to be mined.
type TxConfirmer interface {
	// WaitForReceipt polls for the receipt until the configured
	// confirmation timeout. A timeout is a result, not an error.
	WaitForReceipt(ctx context.Context, handle domain.TxHandle) (domain.ConfirmationResult, error)
}

// BlockWatcher streams new blocks from the node.
type BlockWatcher interface {
	// Subscribe starts listening for new blocks and returns a channel.
	Subscribe(ctx context.Context) (<-chan *domain.Block, error)

	// LatestBlock retrieves the most recent block.
	LatestBlock(ctx context.Context) (*domain.Block, error)

	// State returns the current connection state.
	State() domain.ConnectionState
}

// GasPricer reads network gas prices and estimates call gas.
type GasPricer interface {
	// GetGasPrice retrieves the current suggested gas price.
	GetGasPrice(ctx context.Context) (*domain.GasPrice, error)

	// EstimateGas estimates the gas needed for a request.
	EstimateGas(ctx context.Context, req domain.TxRequest) (uint64, error)
}
