package app

import (
	"github.com/dexkeep/keeperbot/business/arbitrage/domain"
	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/asset"
)

// EdgeConfig names the conversions discovery draws edges from.
type EdgeConfig struct {
	Pairs      []marketDomain.Pair
	Collateral *asset.Asset
	Stablecoin *asset.Asset
}

// BuildEdges turns one snapshot into the cycle's edge set: one edge per
// live order on the configured pairs, plus the pool's mint and redeem
// edges when the snapshot carries pool state. Edges are deduplicated by
// key; an order listed under two pairs contributes once.
func BuildEdges(snap *keeperDomain.Snapshot, cfg EdgeConfig) []domain.Edge {
	var edges []domain.Edge
	seen := make(map[string]bool)

	add := func(e domain.Edge) {
		if seen[e.Key()] {
			return
		}
		seen[e.Key()] = true
		edges = append(edges, e)
	}

	for _, pair := range cfg.Pairs {
		book, ok := snap.Book(pair)
		if !ok {
			continue
		}
		for _, order := range book.Orders {
			if edge, ok := domain.TradeEdge(order); ok {
				add(edge)
			}
		}
	}

	if snap.Pool != nil && cfg.Collateral != nil && cfg.Stablecoin != nil {
		pool := snap.Pool
		if edge, ok := domain.MintEdge(cfg.Collateral, cfg.Stablecoin,
			pool.MintRate, pool.MintCapacity.ToDecimal()); ok {
			add(edge)
		}
		if edge, ok := domain.RedeemEdge(cfg.Stablecoin, cfg.Collateral,
			pool.RedeemRate, pool.RedeemCapacity.ToDecimal()); ok {
			add(edge)
		}
	}

	return edges
}
