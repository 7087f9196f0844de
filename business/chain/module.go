// Package chain implements the chain bounded context: every contract
// read and write the keepers perform goes through this module.
package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dexkeep/keeperbot/business/chain/app"
	chainDI "github.com/dexkeep/keeperbot/business/chain/di"
	"github.com/dexkeep/keeperbot/business/chain/domain"
	"github.com/dexkeep/keeperbot/business/chain/infra/ethereum"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/config"
	"github.com/dexkeep/keeperbot/internal/di"
	"github.com/dexkeep/keeperbot/internal/logger"
	"github.com/dexkeep/keeperbot/internal/monolith"
)

// syncPollInterval is how often startup re-checks a syncing node.
const syncPollInterval = 5 * time.Second

// Module implements the chain bounded context.
type Module struct{}

// RegisterServices registers all chain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register GasPricer (private - internal dependency)
	di.RegisterToken(c, chainDI.GasPricer, func(sr di.ServiceRegistry) app.GasPricer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)

		pricerCfg := ethereum.DefaultGasPricerConfig(cfg.Account.AddressHex())
		if cfg.Chain.GasMaxWei > 0 {
			pricerCfg.MaxGasPrice = big.NewInt(cfg.Chain.GasMaxWei)
		}

		pricer, err := ethereum.NewGasPricer(pricerCfg, log, client)
		if err != nil {
			panic("failed to create gas pricer: " + err.Error())
		}
		return pricer
	})

	// Register Gateway (private - internal dependency)
	di.RegisterToken(c, chainDI.Gateway, func(sr di.ServiceRegistry) app.Gateway {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		stablecoin, ok := registry.GetBySymbolAndChain(cfg.Chain.StablecoinSymbol, cfg.Chain.ChainID)
		if !ok {
			panic("unknown stablecoin symbol: " + cfg.Chain.StablecoinSymbol)
		}
		collateral, ok := registry.GetBySymbolAndChain(cfg.Chain.CollateralSymbol, cfg.Chain.ChainID)
		if !ok {
			panic("unknown collateral symbol: " + cfg.Chain.CollateralSymbol)
		}

		var signer *ethereum.Signer
		if cfg.Account.PrivateKey != "" {
			var err error
			signer, err = ethereum.NewSigner(cfg.Account.PrivateKey, big.NewInt(int64(cfg.Chain.ChainID)))
			if err != nil {
				panic("failed to create signer: " + err.Error())
			}
		}

		gatewayCfg := ethereum.GatewayConfig{
			Exchange:            cfg.Chain.ExchangeAddressHex(),
			Vault:               cfg.Chain.VaultAddressHex(),
			Pool:                cfg.Chain.PoolAddressHex(),
			Oracle:              cfg.Chain.OracleAddressHex(),
			Batch:               cfg.Chain.BatchAddressHex(),
			Stablecoin:          stablecoin,
			Collateral:          collateral,
			ConfirmationTimeout: cfg.Chain.ConfirmationTimeout,
			ConfirmPollInterval: cfg.Chain.ConfirmPollInterval,
			RateLimitRPS:        cfg.Chain.RateLimitRPS,
			RateLimitBurst:      cfg.Chain.RateLimitBurst,
		}
		// Zero means uncapped; the gateway treats nil as no cap.
		if cfg.Chain.GasMaxWei > 0 {
			gatewayCfg.GasMaxWei = big.NewInt(cfg.Chain.GasMaxWei)
		}

		gw, err := ethereum.NewGateway(log, client, gatewayCfg, registry, signer,
			gasStrategyFromConfig(cfg.Chain), chainDI.GetGasPricer(sr))
		if err != nil {
			panic("failed to create chain gateway: " + err.Error())
		}
		return gw
	})

	// Register BlockWatcher (private - internal dependency)
	di.RegisterToken(c, chainDI.BlockWatcher, func(sr di.ServiceRegistry) app.BlockWatcher {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		watcherCfg := ethereum.DefaultWatcherConfig(cfg.Chain.WebSocketURL, cfg.Chain.HTTPURL)
		watcher, err := ethereum.NewWatcher(watcherCfg, log)
		if err != nil {
			panic("failed to create block watcher: " + err.Error())
		}
		return watcher
	})

	// Register ChainService (public - exposed to other modules)
	di.RegisterToken(c, chainDI.ChainService, func(sr di.ServiceRegistry) *app.ChainService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		gw := chainDI.GetGateway(sr)

		deps := app.Deps{
			Node:      gw,
			Tokens:    gw,
			Exchange:  gw,
			Pool:      gw,
			Oracle:    gw,
			Vault:     gw,
			Confirmer: gw,
			Watcher:   chainDI.GetBlockWatcher(sr),
			Gas:       chainDI.GetGasPricer(sr),
		}
		// The batch capability only exists when an executor is configured.
		if cfg.Chain.BatchAddress != "" {
			deps.Batch = gw
		}

		return app.NewChainService(deps, log)
	})

	return nil
}

// Startup verifies the node and contract preconditions every keeper
// depends on. Failures here are fatal; a keeper must not trade against
// a syncing node or an executor it does not own.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()
	svc := chainDI.GetChainService(mono.Services())

	if err := svc.WaitForSync(ctx, syncPollInterval); err != nil {
		return err
	}

	if cfg.Arbitrage.Mode == "atomic" {
		if err := svc.VerifyBatchOwner(ctx, cfg.Account.AddressHex()); err != nil {
			log.Error(ctx, "batch executor ownership check failed", "error", err)
			return err
		}
	}

	log.Info(ctx, "chain module started")
	return nil
}

// gasStrategyFromConfig maps validated configuration onto a strategy.
func gasStrategyFromConfig(cfg config.ChainConfig) domain.GasStrategy {
	switch cfg.GasStrategy {
	case "fixed":
		return domain.NewFixedGas(cfg.GasPriceWei)
	case "increasing":
		return domain.NewIncreasingGas(cfg.GasInitialWei, cfg.GasIncreaseWei, cfg.GasIncreaseEvery)
	default:
		return domain.NodeGas{}
	}
}
