// Package app contains application services and port definitions for the market context.
package app

import (
	"context"

	"github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/asset"
)

// FeedProvider serves ticks from the external price feed.
type FeedProvider interface {
	// LatestTick returns the most recent tick for a feed symbol.
	LatestTick(ctx context.Context, symbol string) (domain.Tick, error)
}

// OraclePriceReader reads the on-chain reference oracle. The chain
// gateway satisfies this.
type OraclePriceReader interface {
	ReferencePrice(ctx context.Context) (asset.Price, error)
}
