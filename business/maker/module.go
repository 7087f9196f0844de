// Package maker implements the market-making bounded context: per
// (pair, side) order bands reconciled against the reference price.
package maker

import (
	"context"

	chainDI "github.com/dexkeep/keeperbot/business/chain/di"
	"github.com/dexkeep/keeperbot/business/maker/app"
	"github.com/dexkeep/keeperbot/business/maker/domain"
	makerDI "github.com/dexkeep/keeperbot/business/maker/di"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/config"
	"github.com/dexkeep/keeperbot/internal/di"
	"github.com/dexkeep/keeperbot/internal/logger"
	"github.com/dexkeep/keeperbot/internal/monolith"
)

// Module implements the maker bounded context.
type Module struct{}

// RegisterServices registers all maker services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Strategy (public - exposed to other modules)
	di.RegisterToken(c, makerDI.Strategy, func(sr di.ServiceRegistry) *app.Strategy {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		bands, err := bandsFrom(cfg, registry)
		if err != nil {
			panic("failed to build maker bands: " + err.Error())
		}

		strategy, err := app.NewStrategy(log, app.StrategyConfig{
			Bands:       bands,
			RoundPlaces: cfg.Maker.RoundPlaces,
		})
		if err != nil {
			panic("failed to create maker strategy: " + err.Error())
		}
		return strategy
	})

	// Register Actuator (public - exposed to other modules)
	di.RegisterToken(c, makerDI.Actuator, func(sr di.ServiceRegistry) *app.Actuator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		pairs, err := bandPairs(cfg, registry)
		if err != nil {
			panic("failed to resolve maker pairs: " + err.Error())
		}

		actuator, err := app.NewActuator(log, chainDI.GetGateway(sr), app.ActuatorConfig{
			Account: cfg.Account.AddressHex(),
			Pairs:   pairs,
		})
		if err != nil {
			panic("failed to create maker actuator: " + err.Error())
		}
		return actuator
	})

	return nil
}

// Startup grants the exchange an allowance on every asset the bands
// offer, so order creation never stalls on a missing approval.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	bands, err := bandsFrom(cfg, mono.AssetRegistry())
	if err != nil {
		return err
	}

	chainSvc := chainDI.GetChainService(mono.Services())
	owner := cfg.Account.AddressHex()
	exchange := cfg.Chain.ExchangeAddressHex()

	seen := make(map[asset.AssetID]bool)
	for _, band := range bands {
		offered := band.OfferedAsset()
		if seen[offered.ID()] {
			continue
		}
		seen[offered.ID()] = true
		if err := chainSvc.EnsureAllowance(ctx, offered, owner, exchange); err != nil {
			return err
		}
	}

	log.Info(ctx, "maker module started", "bands", len(bands))
	return nil
}

// bandsFrom resolves the configured band policies against the registry.
func bandsFrom(cfg *config.Config, registry *asset.Registry) ([]domain.Band, error) {
	bands := make([]domain.Band, 0, len(cfg.Maker.Bands))

	for _, bc := range cfg.Maker.Bands {
		pair, err := marketDomain.ParsePair(bc.Pair, registry, cfg.Chain.ChainID)
		if err != nil {
			return nil, err
		}
		side, err := marketDomain.ParseSide(bc.Side)
		if err != nil {
			return nil, err
		}

		band, err := domain.NewBand(pair, side,
			bc.MinAmountDecimal(), bc.MaxAmountDecimal(),
			bc.MinMarginDecimal(), bc.AvgMarginDecimal(), bc.MaxMarginDecimal())
		if err != nil {
			return nil, err
		}
		bands = append(bands, band)
	}

	return bands, nil
}

// bandPairs returns the distinct pairs the bands cover.
func bandPairs(cfg *config.Config, registry *asset.Registry) ([]marketDomain.Pair, error) {
	bands, err := bandsFrom(cfg, registry)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var pairs []marketDomain.Pair
	for _, band := range bands {
		if seen[band.Pair.String()] {
			continue
		}
		seen[band.Pair.String()] = true
		pairs = append(pairs, band.Pair)
	}
	return pairs, nil
}
