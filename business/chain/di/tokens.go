// Package di contains dependency injection tokens for the chain context.
package di

import (
	"github.com/dexkeep/keeperbot/business/chain/app"
	"github.com/dexkeep/keeperbot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	ChainService = di.NewToken[*app.ChainService]("chain.ChainService")
)

// Private dependency tokens - internal to the chain module
var (
	Gateway      = di.NewToken[app.Gateway]("chain:gateway")
	BlockWatcher = di.NewToken[app.BlockWatcher]("chain:blockWatcher")
	GasPricer    = di.NewToken[app.GasPricer]("chain:gasPricer")
)

// Helper functions for type-safe access
func GetChainService(c di.ServiceRegistry) *app.ChainService {
	return di.GetToken(c, ChainService)
}

func GetGateway(c di.ServiceRegistry) app.Gateway {
	return di.GetToken(c, Gateway)
}

func GetBlockWatcher(c di.ServiceRegistry) app.BlockWatcher {
	return di.GetToken(c, BlockWatcher)
}

func GetGasPricer(c di.ServiceRegistry) app.GasPricer {
	return di.GetToken(c, GasPricer)
}
