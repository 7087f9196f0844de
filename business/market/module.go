// Package market implements the market bounded context: exchange market
// structure and the reference price the keepers steer by.
package market

import (
	"context"

	chainDI "github.com/dexkeep/keeperbot/business/chain/di"
	"github.com/dexkeep/keeperbot/business/market/app"
	marketDI "github.com/dexkeep/keeperbot/business/market/di"
	"github.com/dexkeep/keeperbot/business/market/infra/feed"
	"github.com/dexkeep/keeperbot/internal/config"
	"github.com/dexkeep/keeperbot/internal/di"
	"github.com/dexkeep/keeperbot/internal/logger"
	"github.com/dexkeep/keeperbot/internal/monolith"
)

// Module implements the market bounded context.
type Module struct{}

// RegisterServices registers all market services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register FeedProvider (private - internal dependency)
	di.RegisterToken(c, marketDI.FeedProvider, func(sr di.ServiceRegistry) *feed.Provider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		providerCfg := feed.DefaultProviderConfig(
			cfg.Feed.WebSocketURL,
			cfg.Feed.HTTPURL,
			cfg.Feed.Symbols,
		)
		if cfg.Feed.StaleTimeout > 0 {
			providerCfg.StaleTimeout = cfg.Feed.StaleTimeout
		}

		provider, err := feed.NewProvider(providerCfg, log)
		if err != nil {
			panic("failed to create feed provider: " + err.Error())
		}
		return provider
	})

	// Register PriceService (public - exposed to other modules)
	di.RegisterToken(c, marketDI.PriceService, func(sr di.ServiceRegistry) *app.PriceService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		svcCfg := app.PriceServiceConfig{
			QuoteSymbol: cfg.Feed.QuoteSymbol,
			TargetPrice: cfg.Feed.TargetPriceDecimal(),
			StaleAfter:  cfg.Feed.StaleTimeout,
		}

		// The feed provider only exists when an endpoint is configured;
		// the oracle covers the rest.
		var feedPort app.FeedProvider
		if cfg.Feed.Enabled() {
			feedPort = marketDI.GetFeedProvider(sr)
		}

		svc, err := app.NewPriceService(log, svcCfg, feedPort, chainDI.GetGateway(sr))
		if err != nil {
			panic("failed to create price service: " + err.Error())
		}
		return svc
	})

	return nil
}

// Startup connects the feed stream when one is configured. A feed that
// will not connect is not fatal: the price service falls back to the
// oracle until the stream recovers.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	if cfg.Feed.Enabled() && cfg.Feed.WebSocketURL != "" {
		provider := marketDI.GetFeedProvider(mono.Services())
		if err := provider.Connect(ctx); err != nil {
			log.Warn(ctx, "feed stream connect failed, oracle fallback in effect", "error", err)
		}
	}

	log.Info(ctx, "market module started")
	return nil
}
