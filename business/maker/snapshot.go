package maker

import (
	keeperApp "github.com/dexkeep/keeperbot/business/keeper/app"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/config"
)

// SnapshotConfig describes the snapshot sections the market-making
// keeper reads each cycle: the book and reference price of every banded
// pair, plus the balance of every asset the bands offer.
func SnapshotConfig(cfg *config.Config, registry *asset.Registry) (keeperApp.BuilderConfig, error) {
	bands, err := bandsFrom(cfg, registry)
	if err != nil {
		return keeperApp.BuilderConfig{}, err
	}
	pairs, err := bandPairs(cfg, registry)
	if err != nil {
		return keeperApp.BuilderConfig{}, err
	}

	seen := make(map[asset.AssetID]bool)
	var assets []*asset.Asset
	for _, band := range bands {
		offered := band.OfferedAsset()
		if !seen[offered.ID()] {
			seen[offered.ID()] = true
			assets = append(assets, offered)
		}
	}

	return keeperApp.BuilderConfig{
		Account:    cfg.Account.AddressHex(),
		Assets:     assets,
		Pairs:      pairs,
		PricePairs: pairs,
	}, nil
}
