package arbitrage

import (
	keeperApp "github.com/dexkeep/keeperbot/business/keeper/app"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/config"
)

// SnapshotConfig describes the snapshot sections the arbitrage keeper
// reads each cycle: balances of every traded asset, every configured
// book, the pool terms and the gas price.
func SnapshotConfig(cfg *config.Config, registry *asset.Registry) (keeperApp.BuilderConfig, error) {
	assets, err := tradedAssets(cfg, registry)
	if err != nil {
		return keeperApp.BuilderConfig{}, err
	}

	pairs := make([]marketDomain.Pair, 0, len(cfg.Arbitrage.Pairs))
	for _, raw := range cfg.Arbitrage.Pairs {
		pair, err := marketDomain.ParsePair(raw, registry, cfg.Chain.ChainID)
		if err != nil {
			return keeperApp.BuilderConfig{}, err
		}
		pairs = append(pairs, pair)
	}

	builderCfg := keeperApp.BuilderConfig{
		Account:  cfg.Account.AddressHex(),
		Assets:   assets,
		Pairs:    pairs,
		WithGas:  true,
		WithPool: true,
	}

	// Gas is paid in the native currency. A base asset other than the
	// wrapped native token needs the native price to state gas costs in
	// base units.
	base, ok := registry.GetBySymbolAndChain(cfg.Arbitrage.BaseAsset, cfg.Chain.ChainID)
	if !ok {
		return keeperApp.BuilderConfig{}, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("unknown arbitrage base asset "+cfg.Arbitrage.BaseAsset),
			apperror.WithContext("arbitrage"))
	}
	if base.Symbol() != "WETH" {
		weth, ok := registry.GetBySymbolAndChain("WETH", cfg.Chain.ChainID)
		if !ok {
			return keeperApp.BuilderConfig{}, apperror.New(apperror.CodeConfigurationError,
				apperror.WithMessage("no wrapped native token registered to price gas in "+base.Symbol()),
				apperror.WithContext("arbitrage"))
		}
		native, err := marketDomain.NewPair(weth, base)
		if err != nil {
			return keeperApp.BuilderConfig{}, err
		}
		builderCfg.NativePair = &native
	}

	return builderCfg, nil
}
