package domain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/asset"
)

// EdgeKind names the on-chain primitive behind a conversion edge.
type EdgeKind string

const (
	// EdgeTrade fills a resting exchange order.
	EdgeTrade EdgeKind = "trade"

	// EdgeMint pays collateral into the pool for stablecoin.
	EdgeMint EdgeKind = "mint"

	// EdgeRedeem pays stablecoin into the pool for collateral.
	EdgeRedeem EdgeKind = "redeem"
)

// Edge is one conversion the chain offers this cycle: pay Source, receive
// Target at Rate, up to MaxSource. A resting order is one edge; the pool
// contributes one mint and one redeem edge.
type Edge struct {
	Kind      EdgeKind
	Source    *asset.Asset
	Target    *asset.Asset
	Rate      decimal.Decimal // target units per source unit
	MaxSource decimal.Decimal // most Source the edge absorbs
	OrderID   uint64          // set for trade edges only
}

// TradeEdge builds the edge a resting order offers to a taker: pay what the
// maker buys, receive what the maker sells. The second return is false for
// degenerate orders that cannot form a usable edge.
func TradeEdge(o marketDomain.Order) (Edge, bool) {
	buy := o.Buy.ToDecimal()
	sell := o.Sell.ToDecimal()
	if !buy.IsPositive() || !sell.IsPositive() {
		return Edge{}, false
	}

	return Edge{
		Kind:      EdgeTrade,
		Source:    o.Buy.Asset(),
		Target:    o.Sell.Asset(),
		Rate:      sell.Div(buy),
		MaxSource: buy,
		OrderID:   o.ID,
	}, true
}

// MintEdge builds the pool's collateral-to-stablecoin edge.
func MintEdge(collateral, stablecoin *asset.Asset, rate, capacity decimal.Decimal) (Edge, bool) {
	if !rate.IsPositive() {
		return Edge{}, false
	}

	return Edge{
		Kind:      EdgeMint,
		Source:    collateral,
		Target:    stablecoin,
		Rate:      rate,
		MaxSource: capacity,
	}, true
}

// RedeemEdge builds the pool's stablecoin-to-collateral edge.
func RedeemEdge(stablecoin, collateral *asset.Asset, rate, capacity decimal.Decimal) (Edge, bool) {
	if !rate.IsPositive() {
		return Edge{}, false
	}

	return Edge{
		Kind:      EdgeRedeem,
		Source:    stablecoin,
		Target:    collateral,
		Rate:      rate,
		MaxSource: capacity,
	}, true
}

// Key identifies the edge within one cycle. Trade edges are keyed by order
// ID, pool edges by kind.
func (e Edge) Key() string {
	if e.Kind == EdgeTrade {
		return fmt.Sprintf("trade:%d", e.OrderID)
	}
	return string(e.Kind)
}

// String describes the edge for logs and reports.
func (e Edge) String() string {
	switch e.Kind {
	case EdgeTrade:
		return fmt.Sprintf("take order %d: %s->%s @ %s",
			e.OrderID, e.Source.Symbol(), e.Target.Symbol(), e.Rate)
	default:
		return fmt.Sprintf("%s: %s->%s @ %s",
			e.Kind, e.Source.Symbol(), e.Target.Symbol(), e.Rate)
	}
}

// SortEdges orders edges deterministically: by source symbol, target
// symbol, kind, then order ID. Discovery sorts before enumerating so two
// runs over the same snapshot produce the same path order.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Source.Symbol() != b.Source.Symbol() {
			return a.Source.Symbol() < b.Source.Symbol()
		}
		if a.Target.Symbol() != b.Target.Symbol() {
			return a.Target.Symbol() < b.Target.Symbol()
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.OrderID < b.OrderID
	})
}
