package vault

import (
	keeperApp "github.com/dexkeep/keeperbot/business/keeper/app"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/config"
)

// BiteSnapshotConfig describes the bite keeper's snapshot: the cup table
// and the engine parameters, nothing else.
func BiteSnapshotConfig(cfg *config.Config) keeperApp.BuilderConfig {
	return keeperApp.BuilderConfig{
		Account:  cfg.Account.AddressHex(),
		WithCups: true,
	}
}

// TopUpSnapshotConfig adds the collateral balance the top-up budget
// draws from.
func TopUpSnapshotConfig(cfg *config.Config, registry *asset.Registry) (keeperApp.BuilderConfig, error) {
	collateral, ok := registry.GetBySymbolAndChain(cfg.Chain.CollateralSymbol, cfg.Chain.ChainID)
	if !ok {
		return keeperApp.BuilderConfig{}, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("unknown collateral asset "+cfg.Chain.CollateralSymbol),
			apperror.WithContext("vault"))
	}

	builderCfg := BiteSnapshotConfig(cfg)
	builderCfg.Assets = []*asset.Asset{collateral}
	return builderCfg, nil
}
