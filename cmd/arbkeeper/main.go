// Package main is the arbitrage keeper: it scans the books and the pool
// for profitable round trips and executes the best one each cycle.
package main

import (
	"os"

	"github.com/dexkeep/keeperbot/business/arbitrage"
	arbitrageDI "github.com/dexkeep/keeperbot/business/arbitrage/di"
	"github.com/dexkeep/keeperbot/business/chain"
	chainDI "github.com/dexkeep/keeperbot/business/chain/di"
	keeperApp "github.com/dexkeep/keeperbot/business/keeper/app"
	"github.com/dexkeep/keeperbot/business/market"
	marketDI "github.com/dexkeep/keeperbot/business/market/di"
	"github.com/dexkeep/keeperbot/cmd/internal/run"
	"github.com/dexkeep/keeperbot/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	os.Exit(run.Main(run.Keeper{
		Name: "arbkeeper",
		Modules: []monolith.Module{
			&chain.Module{},
			&market.Module{},
			&arbitrage.Module{},
		},
		Assemble: assemble,
	}, run.Build{Version: version, Commit: commit, Date: buildDate}))
}

func assemble(mono monolith.Monolith) (*keeperApp.Driver, error) {
	cfg := mono.Config()
	sr := mono.Services()

	builderCfg, err := arbitrage.SnapshotConfig(cfg, mono.AssetRegistry())
	if err != nil {
		return nil, err
	}

	source, err := keeperApp.NewBuilder(
		mono.Logger(),
		chainDI.GetGateway(sr),
		chainDI.GetBlockWatcher(sr),
		chainDI.GetGasPricer(sr),
		marketDI.GetPriceService(sr),
		builderCfg,
	)
	if err != nil {
		return nil, err
	}

	return keeperApp.NewDriver(
		mono.Logger(),
		source,
		arbitrageDI.GetStrategy(sr),
		arbitrageDI.GetExecutor(sr),
		keeperApp.DriverConfig{Interval: cfg.Loop.Interval, MaxErrors: cfg.Loop.MaxErrors},
	)
}
