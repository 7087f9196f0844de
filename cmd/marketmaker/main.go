// Package main is the market-making keeper: it holds each configured
// order band at its target size around the reference price, and sweeps
// its own orders off the book on shutdown.
package main

import (
	"context"
	"os"

	"github.com/dexkeep/keeperbot/business/chain"
	chainDI "github.com/dexkeep/keeperbot/business/chain/di"
	keeperApp "github.com/dexkeep/keeperbot/business/keeper/app"
	"github.com/dexkeep/keeperbot/business/maker"
	makerDI "github.com/dexkeep/keeperbot/business/maker/di"
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
		Name: "marketmaker",
		Modules: []monolith.Module{
			&chain.Module{},
			&market.Module{},
			&maker.Module{},
		},
		Assemble: assemble,
		Shutdown: sweepOrders,
	}, run.Build{Version: version, Commit: commit, Date: buildDate}))
}

func assemble(mono monolith.Monolith) (*keeperApp.Driver, error) {
	cfg := mono.Config()
	sr := mono.Services()

	builderCfg, err := maker.SnapshotConfig(cfg, mono.AssetRegistry())
	if err != nil {
		return nil, err
	}

	source, err := keeperApp.NewBuilder(
		mono.Logger(),
		chainDI.GetGateway(sr),
		chainDI.GetBlockWatcher(sr),
		nil,
		marketDI.GetPriceService(sr),
		builderCfg,
	)
	if err != nil {
		return nil, err
	}

	return keeperApp.NewDriver(
		mono.Logger(),
		source,
		makerDI.GetStrategy(sr),
		makerDI.GetActuator(sr),
		keeperApp.DriverConfig{Interval: cfg.Loop.Interval, MaxErrors: cfg.Loop.MaxErrors},
	)
}

// sweepOrders cancels the keeper's own resting orders so nothing stays
// live on the book while the process is down.
func sweepOrders(ctx context.Context, mono monolith.Monolith) error {
	return makerDI.GetActuator(mono.Services()).CancelAll(ctx)
}
