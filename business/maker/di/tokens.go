// Package di contains dependency injection tokens for the maker context.
package di

import (
	"github.com/dexkeep/keeperbot/business/maker/app"
	"github.com/dexkeep/keeperbot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Strategy = di.NewToken[*app.Strategy]("maker.Strategy")
	Actuator = di.NewToken[*app.Actuator]("maker.Actuator")
)

// Helper functions for type-safe access
func GetStrategy(c di.ServiceRegistry) *app.Strategy {
	return di.GetToken(c, Strategy)
}

func GetActuator(c di.ServiceRegistry) *app.Actuator {
	return di.GetToken(c, Actuator)
}
