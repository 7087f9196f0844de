package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
)

// CreateOrder asks the actuator to place one resting order. Amount is
// in offered-asset units; Price in quote per base.
type CreateOrder struct {
	Pair   marketDomain.Pair
	Side   marketDomain.Side
	Price  decimal.Decimal
	Amount decimal.Decimal
}

func (a *CreateOrder) Kind() keeperDomain.ActionKind { return keeperDomain.ActionCreateOrder }

func (a *CreateOrder) Describe() string {
	return fmt.Sprintf("create %s order on %s: %s offered at %s",
		a.Side, a.Pair, a.Amount, a.Price)
}

// CancelOrder asks the actuator to remove one of the keeper's own orders.
type CancelOrder struct {
	Pair    marketDomain.Pair
	OrderID uint64
}

func (a *CancelOrder) Kind() keeperDomain.ActionKind { return keeperDomain.ActionCancelOrder }

func (a *CancelOrder) Describe() string {
	return fmt.Sprintf("cancel order %d on %s", a.OrderID, a.Pair)
}
