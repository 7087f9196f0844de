package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
)

// NewOrderSpec sizes one replenishing order in offered-asset units.
type NewOrderSpec struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// Reconciliation is the outcome of one band pass: cancels first, then
// at most one replenishing order.
type Reconciliation struct {
	Cancels []marketDomain.Order
	Create  *NewOrderSpec
}

// Empty reports whether the pass decided to do nothing.
func (r Reconciliation) Empty() bool {
	return len(r.Cancels) == 0 && r.Create == nil
}

// Reconcile runs the band policy against the keeper's own orders on
// the band's pair. Orders on the other side are ignored. Out-of-band
// orders are cancelled; if the surviving total stays below MinAmount,
// one order sized to reach MaxAmount (capped by balance) is created at
// the avg-margin price. Cancels settle before the new order is placed,
// so their escrowed amounts count as available again.
func (b Band) Reconcile(own []marketDomain.Order, ref, available decimal.Decimal, places int32) (Reconciliation, error) {
	if !ref.IsPositive() {
		return Reconciliation{}, fmt.Errorf("maker: reference price for %s must be positive, got %s", b.Pair, ref)
	}

	var rec Reconciliation
	total := decimal.Zero
	freed := decimal.Zero

	for _, o := range own {
		side, err := o.SideFor(b.Pair)
		if err != nil {
			return Reconciliation{}, err
		}
		if side != b.Side {
			continue
		}

		price, err := o.PriceFor(b.Pair)
		if err != nil {
			return Reconciliation{}, err
		}

		if !b.Within(price, ref) {
			rec.Cancels = append(rec.Cancels, o)
			freed = freed.Add(o.Sell.ToDecimal())
			continue
		}
		total = total.Add(o.Sell.ToDecimal())
	}

	if total.GreaterThanOrEqual(b.MinAmount) {
		return rec, nil
	}

	amount := decimal.Min(b.MaxAmount.Sub(total), available.Add(freed))
	if !amount.IsPositive() {
		return rec, nil
	}

	rec.Create = &NewOrderSpec{
		Price:  b.TargetPrice(ref, places),
		Amount: amount,
	}
	return rec, nil
}
