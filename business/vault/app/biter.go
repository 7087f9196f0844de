// Package app contains the vault monitor strategies and their actuator:
// bite scans for unsafe cups, top-up keeps the keeper's own cups above
// a safety margin.
package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	"github.com/dexkeep/keeperbot/internal/logger"
)

const (
	tracerName = "github.com/dexkeep/keeperbot/business/vault/app"
	meterName  = "github.com/dexkeep/keeperbot/business/vault/app"
)

type biteMetrics struct {
	unsafe metric.Int64Counter
}

// BiteStrategy emits a liquidation for every cup the engine reports
// unsafe. Plain monitor-and-trigger: the engine's own safety flag is
// authoritative, no local profitability math.
type BiteStrategy struct {
	log     logger.LoggerInterface
	tracer  trace.Tracer
	metrics biteMetrics
}

// NewBiteStrategy builds the liquidation monitor.
func NewBiteStrategy(log logger.LoggerInterface) (*BiteStrategy, error) {
	s := &BiteStrategy{
		log:    log,
		tracer: otel.Tracer(tracerName),
	}

	meter := otel.Meter(meterName)
	var err error
	s.metrics.unsafe, err = meter.Int64Counter("vault_unsafe_cups_total",
		metric.WithDescription("Unsafe cups found in snapshots"))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Name identifies the strategy.
func (s *BiteStrategy) Name() string { return "bite" }

// OnSnapshot scans every cup and emits one bite per unsafe cup.
func (s *BiteStrategy) OnSnapshot(ctx context.Context, snap *keeperDomain.Snapshot) ([]keeperDomain.Action, error) {
	ctx, span := s.tracer.Start(ctx, "vault.bite_scan",
		trace.WithAttributes(
			attribute.Int64("block", int64(snap.BlockNumber)),
			attribute.Int("cups", len(snap.Cups)),
		))
	defer span.End()

	var actions []keeperDomain.Action
	for _, cup := range snap.Cups {
		if cup.Safe || !cup.HasDebt() {
			continue
		}

		s.metrics.unsafe.Add(ctx, 1)
		s.log.Info(ctx, "unsafe cup found",
			"cup", cup.ID,
			"owner", cup.Owner.Hex(),
			"ink", cup.Ink,
			"tab", cup.Tab)
		actions = append(actions, &BiteCup{CupID: cup.ID})
	}

	return actions, nil
}
