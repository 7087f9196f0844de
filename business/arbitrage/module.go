// Package arbitrage implements the arbitrage bounded context: multi-hop
// path discovery over the books and the pool, profitability evaluation,
// and plan execution with pre-submission re-validation.
package arbitrage

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexkeep/keeperbot/business/arbitrage/app"
	arbDI "github.com/dexkeep/keeperbot/business/arbitrage/di"
	"github.com/dexkeep/keeperbot/business/arbitrage/domain"
	"github.com/dexkeep/keeperbot/business/arbitrage/infra"
	"github.com/dexkeep/keeperbot/business/arbitrage/infra/postgres"
	chainDI "github.com/dexkeep/keeperbot/business/chain/di"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/config"
	"github.com/dexkeep/keeperbot/internal/di"
	"github.com/dexkeep/keeperbot/internal/logger"
	"github.com/dexkeep/keeperbot/internal/monolith"
)

// journalConnectTimeout bounds the initial database connect and
// migration run. A journal that cannot come up fails the boot.
const journalConnectTimeout = 15 * time.Second

// Module implements the arbitrage bounded context.
type Module struct{}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Reporter (private - internal dependency)
	di.RegisterToken(c, arbDI.Reporter, func(sr di.ServiceRegistry) app.Reporter {
		return infra.NewConsoleReporter()
	})

	// Register Journal (private - resolved only when enabled)
	di.RegisterToken(c, arbDI.Journal, func(sr di.ServiceRegistry) *postgres.Journal {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		ctx, cancel := context.WithTimeout(context.Background(), journalConnectTimeout)
		defer cancel()

		client, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Journal.DatabaseURL))
		if err != nil {
			panic("failed to connect journal database: " + err.Error())
		}
		if err := client.RunMigrations(ctx); err != nil {
			client.Close()
			panic("failed to migrate journal database: " + err.Error())
		}

		return postgres.NewJournal(log, client, postgres.DefaultJournalConfig())
	})

	// Register Strategy (public - exposed to other modules)
	di.RegisterToken(c, arbDI.Strategy, func(sr di.ServiceRegistry) *app.Strategy {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		strategyCfg, err := strategyConfigFrom(cfg, registry)
		if err != nil {
			panic("failed to build arbitrage strategy config: " + err.Error())
		}

		strategy, err := app.NewStrategy(log, strategyCfg)
		if err != nil {
			panic("failed to create arbitrage strategy: " + err.Error())
		}
		return strategy
	})

	// Register Executor (public - exposed to other modules)
	di.RegisterToken(c, arbDI.Executor, func(sr di.ServiceRegistry) *app.Executor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		base, ok := registry.GetBySymbolAndChain(cfg.Arbitrage.BaseAsset, cfg.Chain.ChainID)
		if !ok {
			panic("unknown arbitrage base asset: " + cfg.Arbitrage.BaseAsset)
		}

		execCfg := app.ExecutorConfig{
			Account:       cfg.Account.AddressHex(),
			BaseAsset:     base,
			MinProfit:     cfg.Arbitrage.MinProfitDecimal(),
			MaxEngagement: cfg.Arbitrage.MaxEngagementDecimal(),
		}

		// The journal only exists when enabled; plans simply go
		// unrecorded otherwise.
		var journal app.Journal
		if cfg.Journal.Enabled {
			journal = arbDI.GetJournal(sr)
		}

		executor, err := app.NewExecutor(log, chainDI.GetGateway(sr), execCfg, journal, arbDI.GetReporter(sr))
		if err != nil {
			panic("failed to create arbitrage executor: " + err.Error())
		}
		return executor
	})

	return nil
}

// Startup grants the exchange, the pool and (in atomic mode) the batch
// executor the allowances plan execution will need, so the first
// committed plan never stalls on a missing approval.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	chainSvc := chainDI.GetChainService(mono.Services())
	registry := mono.AssetRegistry()
	owner := cfg.Account.AddressHex()

	assets, err := tradedAssets(cfg, registry)
	if err != nil {
		return err
	}

	spenders := []common.Address{cfg.Chain.ExchangeAddressHex(), cfg.Chain.PoolAddressHex()}
	if cfg.Arbitrage.Mode == string(domain.ModeAtomic) {
		spenders = append(spenders, cfg.Chain.BatchAddressHex())
	}

	for _, spender := range spenders {
		for _, a := range assets {
			if err := chainSvc.EnsureAllowance(ctx, a, owner, spender); err != nil {
				return err
			}
		}
	}

	log.Info(ctx, "arbitrage module started",
		"base", cfg.Arbitrage.BaseAsset,
		"pairs", len(cfg.Arbitrage.Pairs),
		"mode", cfg.Arbitrage.Mode,
		"journal", cfg.Journal.Enabled)
	return nil
}

// strategyConfigFrom resolves the configured symbols and pairs against
// the asset registry.
func strategyConfigFrom(cfg *config.Config, registry *asset.Registry) (app.StrategyConfig, error) {
	base, ok := registry.GetBySymbolAndChain(cfg.Arbitrage.BaseAsset, cfg.Chain.ChainID)
	if !ok {
		return app.StrategyConfig{}, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("unknown arbitrage base asset "+cfg.Arbitrage.BaseAsset),
			apperror.WithContext("arbitrage"))
	}

	pairs := make([]marketDomain.Pair, 0, len(cfg.Arbitrage.Pairs))
	for _, raw := range cfg.Arbitrage.Pairs {
		pair, err := marketDomain.ParsePair(raw, registry, cfg.Chain.ChainID)
		if err != nil {
			return app.StrategyConfig{}, err
		}
		pairs = append(pairs, pair)
	}

	mode, err := domain.ParseExecutionMode(cfg.Arbitrage.Mode)
	if err != nil {
		return app.StrategyConfig{}, err
	}

	strategyCfg := app.StrategyConfig{
		BaseAsset:     base,
		Pairs:         pairs,
		MinProfit:     cfg.Arbitrage.MinProfitDecimal(),
		MaxEngagement: cfg.Arbitrage.MaxEngagementDecimal(),
		Mode:          mode,
	}

	// Pool edges need both legs resolved; leave them nil and the
	// strategy trades books only.
	if collateral, ok := registry.GetBySymbolAndChain(cfg.Chain.CollateralSymbol, cfg.Chain.ChainID); ok {
		if stablecoin, ok := registry.GetBySymbolAndChain(cfg.Chain.StablecoinSymbol, cfg.Chain.ChainID); ok {
			strategyCfg.Collateral = collateral
			strategyCfg.Stablecoin = stablecoin
		}
	}

	return strategyCfg, nil
}

// tradedAssets returns every distinct asset a plan step may pay with.
func tradedAssets(cfg *config.Config, registry *asset.Registry) ([]*asset.Asset, error) {
	seen := make(map[asset.AssetID]bool)
	var assets []*asset.Asset

	add := func(a *asset.Asset) {
		if a != nil && !seen[a.ID()] {
			seen[a.ID()] = true
			assets = append(assets, a)
		}
	}

	for _, raw := range cfg.Arbitrage.Pairs {
		pair, err := marketDomain.ParsePair(raw, registry, cfg.Chain.ChainID)
		if err != nil {
			return nil, err
		}
		add(pair.Base())
		add(pair.Quote())
	}

	if collateral, ok := registry.GetBySymbolAndChain(cfg.Chain.CollateralSymbol, cfg.Chain.ChainID); ok {
		add(collateral)
	}
	if stablecoin, ok := registry.GetBySymbolAndChain(cfg.Chain.StablecoinSymbol, cfg.Chain.ChainID); ok {
		add(stablecoin)
	}

	return assets, nil
}
