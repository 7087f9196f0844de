// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/dexkeep/keeperbot/business/arbitrage/app"
	"github.com/dexkeep/keeperbot/business/arbitrage/infra/postgres"
	"github.com/dexkeep/keeperbot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Strategy = di.NewToken[*app.Strategy]("arbitrage.Strategy")
	Executor = di.NewToken[*app.Executor]("arbitrage.Executor")
)

// Private dependency tokens - internal to the arbitrage module
var (
	Reporter = di.NewToken[app.Reporter]("arbitrage:reporter")
	Journal  = di.NewToken[*postgres.Journal]("arbitrage:journal")
)

// Helper functions for type-safe access
func GetStrategy(c di.ServiceRegistry) *app.Strategy {
	return di.GetToken(c, Strategy)
}

func GetExecutor(c di.ServiceRegistry) *app.Executor {
	return di.GetToken(c, Executor)
}

func GetReporter(c di.ServiceRegistry) app.Reporter {
	return di.GetToken(c, Reporter)
}

func GetJournal(c di.ServiceRegistry) *postgres.Journal {
	return di.GetToken(c, Journal)
}
