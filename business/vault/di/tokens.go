// Package di contains dependency injection tokens for the vault context.
package di

import (
	"github.com/dexkeep/keeperbot/business/vault/app"
	"github.com/dexkeep/keeperbot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	BiteStrategy  = di.NewToken[*app.BiteStrategy]("vault.BiteStrategy")
	TopUpStrategy = di.NewToken[*app.TopUpStrategy]("vault.TopUpStrategy")
	Actuator      = di.NewToken[*app.Actuator]("vault.Actuator")
)

// Helper functions for type-safe access
func GetBiteStrategy(c di.ServiceRegistry) *app.BiteStrategy {
	return di.GetToken(c, BiteStrategy)
}

func GetTopUpStrategy(c di.ServiceRegistry) *app.TopUpStrategy {
	return di.GetToken(c, TopUpStrategy)
}

func GetActuator(c di.ServiceRegistry) *app.Actuator {
	return di.GetToken(c, Actuator)
}
