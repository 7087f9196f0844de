package domain

import (
	"fmt"

	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
)

// ExecutePlan asks the actuator to carry out a committed plan.
type ExecutePlan struct {
	Plan *Plan
}

// Kind implements keeper/domain.Action.
func (a *ExecutePlan) Kind() keeperDomain.ActionKind {
	return keeperDomain.ActionExecutePlan
}

// Describe implements keeper/domain.Action.
func (a *ExecutePlan) Describe() string {
	p := a.Plan
	return fmt.Sprintf("execute plan %s (%s, %s): %s %s expected",
		p.ID, p.Mode, p.Quote.Path, p.Quote.NetProfit, p.Quote.Path.Start().Symbol())
}
