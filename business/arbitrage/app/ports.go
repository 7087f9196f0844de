// Package app contains application services and port definitions for the arbitrage context.
package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dexkeep/keeperbot/business/arbitrage/domain"
	chainDomain "github.com/dexkeep/keeperbot/business/chain/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/asset"
)

// ChainGateway is the slice of the chain gateway plan execution uses:
// fresh reads for pre-submission re-validation, the submission
// primitives, and confirmation waiting. The chain context's gateway
// satisfies it.
type ChainGateway interface {
	// Order returns a single order by ID. The second return is false
	// when the order no longer exists on the book.
	Order(ctx context.Context, id uint64) (marketDomain.Order, bool, error)

	// Balance returns the owner's balance of a single asset.
	Balance(ctx context.Context, a *asset.Asset, owner common.Address) (asset.Amount, error)

	// MintRate, RedeemRate, MintCapacity and RedeemCapacity read the
	// pool's current conversion terms.
	MintRate(ctx context.Context) (decimal.Decimal, error)
	RedeemRate(ctx context.Context) (decimal.Decimal, error)
	MintCapacity(ctx context.Context) (asset.Amount, error)
	RedeemCapacity(ctx context.Context) (asset.Amount, error)

	// TakeOrder fills a resting order. fill is denominated in the
	// maker's sell asset.
	TakeOrder(ctx context.Context, id uint64, fill asset.Amount) (chainDomain.TxHandle, error)

	// Mint and Redeem convert through the pool.
	Mint(ctx context.Context, pay asset.Amount) (chainDomain.TxHandle, error)
	Redeem(ctx context.Context, pay asset.Amount) (chainDomain.TxHandle, error)

	// PackTake, PackMint and PackRedeem encode calls for batch execution.
	PackTake(id uint64, fill asset.Amount) (chainDomain.Call, error)
	PackMint(pay asset.Amount) (chainDomain.Call, error)
	PackRedeem(pay asset.Amount) (chainDomain.Call, error)

	// ExecuteBatch submits all calls as one all-or-nothing transaction.
	ExecuteBatch(ctx context.Context, calls []chainDomain.Call) (chainDomain.TxHandle, error)

	// WaitForReceipt waits for a submitted transaction within the
	// confirmation budget. A timeout is a result, not an error.
	WaitForReceipt(ctx context.Context, handle chainDomain.TxHandle) (chainDomain.ConfirmationResult, error)
}

// Reporter renders committed plans and their outcomes.
type Reporter interface {
	// Start initializes the reporter.
	Start(ctx context.Context) error

	// ReportPlan announces a plan the strategy just committed.
	ReportPlan(plan *domain.Plan)

	// ReportOutcome announces a plan that reached a terminal state.
	ReportOutcome(plan *domain.Plan)

	// Stop gracefully shuts down the reporter.
	Stop() error
}

// Journal persists finished plans for later analysis. Record must not
// block plan execution; implementations buffer and write behind.
type Journal interface {
	Record(ctx context.Context, plan *domain.Plan)
}
