// Package main is the collateral top-up keeper: it keeps the account's
// own cups above the configured safety margin by locking more collateral
// before they become biteable.
package main

import (
	"os"

	"github.com/dexkeep/keeperbot/business/chain"
	chainDI "github.com/dexkeep/keeperbot/business/chain/di"
	keeperApp "github.com/dexkeep/keeperbot/business/keeper/app"
	"github.com/dexkeep/keeperbot/business/vault"
	vaultDI "github.com/dexkeep/keeperbot/business/vault/di"
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
		Name: "topupkeeper",
		Modules: []monolith.Module{
			&chain.Module{},
			&vault.Module{TopUp: true},
		},
		Assemble: assemble,
	}, run.Build{Version: version, Commit: commit, Date: buildDate}))
}

func assemble(mono monolith.Monolith) (*keeperApp.Driver, error) {
	cfg := mono.Config()
	sr := mono.Services()

	builderCfg, err := vault.TopUpSnapshotConfig(cfg, mono.AssetRegistry())
	if err != nil {
		return nil, err
	}

	source, err := keeperApp.NewBuilder(
		mono.Logger(),
		chainDI.GetGateway(sr),
		chainDI.GetBlockWatcher(sr),
		nil,
		nil,
		builderCfg,
	)
	if err != nil {
		return nil, err
	}

	return keeperApp.NewDriver(
		mono.Logger(),
		source,
		vaultDI.GetTopUpStrategy(sr),
		vaultDI.GetActuator(sr),
		keeperApp.DriverConfig{Interval: cfg.Loop.Interval, MaxErrors: cfg.Loop.MaxErrors},
	)
}
