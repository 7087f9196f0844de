// Package vault implements the vault bounded context: the liquidation
// monitor and the collateral top-up monitor over the engine's cups.
package vault

import (
	"context"

	chainDI "github.com/dexkeep/keeperbot/business/chain/di"
	"github.com/dexkeep/keeperbot/business/vault/app"
	vaultDI "github.com/dexkeep/keeperbot/business/vault/di"
	"github.com/dexkeep/keeperbot/internal/config"
	"github.com/dexkeep/keeperbot/internal/di"
	"github.com/dexkeep/keeperbot/internal/logger"
	"github.com/dexkeep/keeperbot/internal/monolith"
)

// Module implements the vault bounded context. TopUp marks the binary as
// the top-up keeper, which locks its own collateral and needs an engine
// allowance at startup; the bite keeper never moves its own funds.
type Module struct {
	TopUp bool
}

// RegisterServices registers all vault services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register BiteStrategy (public - exposed to other modules)
	di.RegisterToken(c, vaultDI.BiteStrategy, func(sr di.ServiceRegistry) *app.BiteStrategy {
		log := sr.Get("logger").(logger.LoggerInterface)

		strategy, err := app.NewBiteStrategy(log)
		if err != nil {
			panic("failed to create bite strategy: " + err.Error())
		}
		return strategy
	})

	// Register TopUpStrategy (public - exposed to other modules)
	di.RegisterToken(c, vaultDI.TopUpStrategy, func(sr di.ServiceRegistry) *app.TopUpStrategy {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		strategy, err := app.NewTopUpStrategy(log, app.TopUpConfig{
			Account:      cfg.Account.AddressHex(),
			MinMargin:    cfg.Vault.MinTopUpMarginDecimal(),
			TargetMargin: cfg.Vault.TargetTopUpMarginDecimal(),
		})
		if err != nil {
			panic("failed to create top-up strategy: " + err.Error())
		}
		return strategy
	})

	// Register Actuator (public - exposed to other modules)
	di.RegisterToken(c, vaultDI.Actuator, func(sr di.ServiceRegistry) *app.Actuator {
		log := sr.Get("logger").(logger.LoggerInterface)

		actuator, err := app.NewActuator(log, chainDI.GetGateway(sr))
		if err != nil {
			panic("failed to create vault actuator: " + err.Error())
		}
		return actuator
	})

	return nil
}

// Startup grants the engine an allowance on the collateral token so
// top-up locks never stall on a missing approval.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	if m.TopUp {
		collateral, ok := mono.AssetRegistry().GetBySymbolAndChain(cfg.Chain.CollateralSymbol, cfg.Chain.ChainID)
		if ok {
			chainSvc := chainDI.GetChainService(mono.Services())
			owner := cfg.Account.AddressHex()
			if err := chainSvc.EnsureAllowance(ctx, collateral, owner, cfg.Chain.VaultAddressHex()); err != nil {
				return err
			}
		}
	}

	log.Info(ctx, "vault module started", "top_up", m.TopUp)
	return nil
}
