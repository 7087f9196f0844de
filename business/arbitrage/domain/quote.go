package domain

import (
	"github.com/shopspring/decimal"
)

// Step is one evaluated conversion: pay Source into the edge, receive
// Target out of it.
type Step struct {
	Edge   Edge
	Source decimal.Decimal
	Target decimal.Decimal
}

// EvaluateSteps propagates entry through the edge chain. When an edge
// cannot absorb what the previous steps produce, the input clamps to the
// edge's limit and every earlier step shrinks so the chain still connects
// exactly. Rates must be positive; edge construction guarantees it.
func EvaluateSteps(edges []Edge, entry decimal.Decimal) []Step {
	steps := make([]Step, len(edges))
	amount := entry
	for i, e := range edges {
		if amount.GreaterThan(e.MaxSource) {
			amount = e.MaxSource
			for j := i - 1; j >= 0; j-- {
				steps[j].Target = amount
				amount = amount.Div(steps[j].Edge.Rate)
				steps[j].Source = amount
			}
			amount = e.MaxSource
		}
		steps[i] = Step{Edge: e, Source: amount, Target: amount.Mul(e.Rate)}
		amount = steps[i].Target
	}
	return steps
}

// Quote is an evaluated path: the amounts flowing through each step at
// the snapshot's rates, and the profit left after gas.
type Quote struct {
	Path   Path
	Steps  []Step
	Input  decimal.Decimal // base paid into the first edge, after clamping
	Output decimal.Decimal // base received from the last edge
	Gas    GasCost

	// NetProfit is Output - Input - Gas.Base.
	NetProfit decimal.Decimal
}

// EvaluatePath quotes a path for an entry amount. entry is the most base
// the caller is willing to commit; clamping may reduce the actual input.
func EvaluatePath(path Path, entry decimal.Decimal, gas GasCost) Quote {
	steps := EvaluateSteps(path.Edges, entry)
	input := steps[0].Source
	output := steps[len(steps)-1].Target

	return Quote{
		Path:      path,
		Steps:     steps,
		Input:     input,
		Output:    output,
		Gas:       gas,
		NetProfit: output.Sub(input).Sub(gas.Base),
	}
}

// Profitable reports whether the quote clears the minimum profit
// threshold. A quote at exactly the threshold does not.
func (q Quote) Profitable(minProfit decimal.Decimal) bool {
	return q.NetProfit.GreaterThan(minProfit)
}

// Preferable reports whether q should be chosen over other: higher net
// profit wins, then the shorter path, then the smaller path key. The last
// rule makes selection a total order, so the same snapshot always selects
// the same quote.
func (q Quote) Preferable(other Quote) bool {
	if !q.NetProfit.Equal(other.NetProfit) {
		return q.NetProfit.GreaterThan(other.NetProfit)
	}
	if q.Path.Len() != other.Path.Len() {
		return q.Path.Len() < other.Path.Len()
	}
	return q.Path.Key() < other.Path.Key()
}

// BestQuote selects the preferable quote among those clearing minProfit.
// The second return is false when none does.
func BestQuote(quotes []Quote, minProfit decimal.Decimal) (Quote, bool) {
	var best Quote
	found := false
	for _, q := range quotes {
		if !q.Profitable(minProfit) {
			continue
		}
		if !found || q.Preferable(best) {
			best = q
			found = true
		}
	}
	return best, found
}
