package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/logger"
)

// TopUpConfig holds the top-up monitor's safety margins, stated as
// offsets above the engine's liquidation ratio.
type TopUpConfig struct {
	Account      common.Address
	MinMargin    decimal.Decimal
	TargetMargin decimal.Decimal
}

type topUpMetrics struct {
	needed  metric.Int64Counter
	skipped metric.Int64Counter
}

// TopUpStrategy watches the keeper's own cups and locks additional
// collateral before the engine's liquidation threshold is reached.
type TopUpStrategy struct {
	log     logger.LoggerInterface
	cfg     TopUpConfig
	tracer  trace.Tracer
	metrics topUpMetrics
}

// NewTopUpStrategy validates the margin ordering.
func NewTopUpStrategy(log logger.LoggerInterface, cfg TopUpConfig) (*TopUpStrategy, error) {
	if cfg.MinMargin.IsNegative() || cfg.TargetMargin.LessThan(cfg.MinMargin) {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("top-up margins must satisfy 0 <= min <= target"))
	}

	s := &TopUpStrategy{
		log:    log,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
	}

	meter := otel.Meter(meterName)
	var err error
	s.metrics.needed, err = meter.Int64Counter("vault_topups_needed_total",
		metric.WithDescription("Own cups found below the minimum margin"))
	if err != nil {
		return nil, err
	}
	s.metrics.skipped, err = meter.Int64Counter("vault_topups_skipped_total",
		metric.WithDescription("Top-ups skipped for lack of collateral balance"))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Name identifies the strategy.
func (s *TopUpStrategy) Name() string { return "topup" }

// OnSnapshot scans the keeper's own cups. A cup whose ratio has fallen
// below liquidation ratio + MinMargin gets one lock sized to reach
// liquidation ratio + TargetMargin. A lock the balance cannot cover is
// skipped with a warning rather than submitted partially.
func (s *TopUpStrategy) OnSnapshot(ctx context.Context, snap *keeperDomain.Snapshot) ([]keeperDomain.Action, error) {
	ctx, span := s.tracer.Start(ctx, "vault.topup_scan",
		trace.WithAttributes(attribute.Int64("block", int64(snap.BlockNumber))))
	defer span.End()

	if !snap.LiquidationRatio.IsPositive() || !snap.CollateralPrice.IsPositive() {
		return nil, apperror.New(apperror.CodeChainRead,
			apperror.WithMessage("snapshot is missing vault parameters"),
			apperror.WithContext("vault"))
	}

	minRatio := snap.LiquidationRatio.Add(s.cfg.MinMargin)
	targetRatio := snap.LiquidationRatio.Add(s.cfg.TargetMargin)

	budgets := make(map[string]decimal.Decimal)
	var actions []keeperDomain.Action

	for _, cup := range snap.Cups {
		if cup.Owner != s.cfg.Account || !cup.HasDebt() {
			continue
		}

		needed, ok := cup.RequiredTopUp(snap.CollateralPrice, minRatio, targetRatio)
		if !ok {
			continue
		}
		s.metrics.needed.Add(ctx, 1)

		collateral := cup.Ink.Asset()
		budget, tracked := budgets[collateral.Symbol()]
		if !tracked {
			budget = snap.Balance(collateral).ToDecimal()
		}

		if budget.LessThan(needed.ToDecimal()) {
			s.metrics.skipped.Add(ctx, 1)
			s.log.Warn(ctx, "top-up skipped, balance too low",
				"cup", cup.ID,
				"needed", needed,
				"balance", budget)
			budgets[collateral.Symbol()] = budget
			continue
		}
		budgets[collateral.Symbol()] = budget.Sub(needed.ToDecimal())

		s.log.Info(ctx, "cup below minimum margin, topping up",
			"cup", cup.ID,
			"amount", needed,
			"min_ratio", minRatio,
			"target_ratio", targetRatio)
		actions = append(actions, &TopUpCup{CupID: cup.ID, Amount: needed})
	}

	return actions, nil
}
