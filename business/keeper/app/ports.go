// Package app contains the strategy loop shared by every keeper: the
// driver that acquires a snapshot, runs one strategy pass and applies
// the resulting actions.
package app

import (
	"context"

	"github.com/dexkeep/keeperbot/business/keeper/domain"
)

// SnapshotSource builds the per-cycle state snapshot. Implementations
// must read fresh chain state on every call; nothing is cached between
// cycles.
type SnapshotSource interface {
	Acquire(ctx context.Context) (*domain.Snapshot, error)
}

// Strategy is one keeper's decision function. OnSnapshot inspects the
// snapshot and returns the actions to take; it must not touch the
// chain itself.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// OnSnapshot runs exactly one decision pass.
	OnSnapshot(ctx context.Context, snap *domain.Snapshot) ([]domain.Action, error)
}

// Actuator carries a strategy's actions out on chain.
type Actuator interface {
	Apply(ctx context.Context, action domain.Action) error
}
