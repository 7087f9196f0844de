// Package monolith wires the shared infrastructure a keeper binary
// hands to its modules: config, logging, the chain client, the asset
// registry and the service container.
package monolith

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/config"
	"github.com/dexkeep/keeperbot/internal/di"
	"github.com/dexkeep/keeperbot/internal/logger"
)

// Monolith is what modules see of the application.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	EthClient() *ethclient.Client
	AssetRegistry() *asset.Registry
	Services() di.ServiceRegistry
}

// Module is one bounded context. RegisterServices installs factories
// into the container; Startup resolves what the module needs once all
// registrations are in.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	ethClient     *ethclient.Client
	assetRegistry *asset.Registry
	container     di.Container
}

// New dials the chain node, assembles the asset registry and seeds the
// service container with the globals every module pulls.
func New(cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	ethClient, err := ethclient.Dial(cfg.Chain.HTTPURL)
	if err != nil {
		return nil, err
	}

	registry := buildRegistry(cfg)
	log.Debug(context.Background(), "asset registry assembled",
		"chain_id", cfg.Chain.ChainID, "assets", len(registry.All()))

	container := di.NewContainer()
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("ethClient", ethClient)
	container.Register("assetRegistry", registry)

	return &app{
		config:        cfg,
		logger:        log,
		ethClient:     ethClient,
		assetRegistry: registry,
		container:     container,
	}, nil
}

// buildRegistry registers the configured tokens first, then fills in
// the built-in mainnet assets for symbols and addresses the config
// left alone. Off-mainnet deployments get only the native coin plus
// their configured tokens.
func buildRegistry(cfg *config.Config) *asset.Registry {
	chainID := cfg.Chain.ChainID

	registry := asset.NewRegistry()
	registry.Register(asset.MustNewNative(chainID, "ETH", "Ether", 18))
	for _, tok := range cfg.Chain.Tokens {
		registry.Register(asset.MustNewToken(chainID, tok.AddressHex(), tok.Symbol, tok.Name, tok.Decimals))
	}

	if chainID == asset.ChainIDEthereum {
		for _, builtin := range []*asset.Asset{asset.DAI, asset.MKR, asset.PETH, asset.WETH, asset.USDC} {
			if _, taken := registry.Get(builtin.ID()); taken {
				continue
			}
			if _, taken := registry.GetBySymbolAndChain(builtin.Symbol(), chainID); taken {
				continue
			}
			registry.Register(builtin)
		}
	}

	return registry
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) EthClient() *ethclient.Client {
	return a.ethClient
}

func (a *app) AssetRegistry() *asset.Registry {
	return a.assetRegistry
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// RegisterModules installs every module's factories. All registrations
// happen before any Startup so modules may resolve each other.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules runs Startup in the order the modules were given.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the chain client.
func (a *app) Close() error {
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	return nil
}
