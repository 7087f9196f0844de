// Package di contains dependency injection tokens for the market context.
package di

import (
	"github.com/dexkeep/keeperbot/business/market/app"
	"github.com/dexkeep/keeperbot/business/market/infra/feed"
	"github.com/dexkeep/keeperbot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	PriceService = di.NewToken[*app.PriceService]("market.PriceService")
)

// Private dependency tokens - internal to the market module
var (
	FeedProvider = di.NewToken[*feed.Provider]("market:feedProvider")
)

// Helper functions for type-safe access
func GetPriceService(c di.ServiceRegistry) *app.PriceService {
	return di.GetToken(c, PriceService)
}

func GetFeedProvider(c di.ServiceRegistry) *feed.Provider {
	return di.GetToken(c, FeedProvider)
}
