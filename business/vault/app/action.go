package app

import (
	"fmt"

	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	"github.com/dexkeep/keeperbot/internal/asset"
)

// BiteCup asks the actuator to liquidate an unsafe cup.
type BiteCup struct {
	CupID uint64
}

func (a *BiteCup) Kind() keeperDomain.ActionKind { return keeperDomain.ActionBite }

func (a *BiteCup) Describe() string {
	return fmt.Sprintf("bite cup %d", a.CupID)
}

// TopUpCup asks the actuator to lock additional collateral into one of
// the keeper's own cups.
type TopUpCup struct {
	CupID  uint64
	Amount asset.Amount
}

func (a *TopUpCup) Kind() keeperDomain.ActionKind { return keeperDomain.ActionTopUp }

func (a *TopUpCup) Describe() string {
	return fmt.Sprintf("lock %s into cup %d", a.Amount, a.CupID)
}
