package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexkeep/keeperbot/business/arbitrage/domain"
	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/logger"
)

const (
	tracerName = "github.com/dexkeep/keeperbot/business/arbitrage/app"
	meterName  = "github.com/dexkeep/keeperbot/business/arbitrage/app"
)

// Per-step gas limits used to estimate plan cost before submission.
const (
	DefaultTradeGas  = 150_000
	DefaultMintGas   = 200_000
	DefaultRedeemGas = 200_000
	DefaultBatchGas  = 60_000 // executor contract overhead in atomic mode
)

// StrategyConfig holds configuration for the arbitrage strategy.
type StrategyConfig struct {
	// BaseAsset is the asset every path starts and ends in, and the
	// unit profit is measured in.
	BaseAsset *asset.Asset

	// Pairs are the order books discovery scans for trade edges.
	Pairs []marketDomain.Pair

	// Collateral and Stablecoin are the pool's two legs. Both nil
	// disables pool edges.
	Collateral *asset.Asset
	Stablecoin *asset.Asset

	// MinProfit is the net profit a quote must exceed, in base units.
	MinProfit decimal.Decimal

	// MaxEngagement caps the base amount committed to one plan.
	MaxEngagement decimal.Decimal

	// Mode selects sequential or atomic execution.
	Mode domain.ExecutionMode

	// Gas limits per step kind. Zero means the default.
	TradeGas  uint64
	MintGas   uint64
	RedeemGas uint64
	BatchGas  uint64
}

type strategyMetrics struct {
	evaluated metric.Int64Counter
	committed metric.Int64Counter
}

// Strategy discovers arbitrage paths on each snapshot, quotes them, and
// commits the best one to a plan. It holds no state between cycles.
type Strategy struct {
	log    logger.LoggerInterface
	config StrategyConfig

	tracer  trace.Tracer
	metrics *strategyMetrics
}

// NewStrategy creates a new arbitrage Strategy.
func NewStrategy(log logger.LoggerInterface, cfg StrategyConfig) (*Strategy, error) {
	if cfg.BaseAsset == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("arbitrage strategy needs a base asset"))
	}
	if len(cfg.Pairs) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("arbitrage strategy needs at least one pair"))
	}
	if !cfg.MaxEngagement.IsPositive() {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("arbitrage strategy needs a positive max engagement"))
	}
	if cfg.MinProfit.IsNegative() {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("arbitrage min profit cannot be negative"))
	}
	if _, err := domain.ParseExecutionMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.TradeGas == 0 {
		cfg.TradeGas = DefaultTradeGas
	}
	if cfg.MintGas == 0 {
		cfg.MintGas = DefaultMintGas
	}
	if cfg.RedeemGas == 0 {
		cfg.RedeemGas = DefaultRedeemGas
	}
	if cfg.BatchGas == 0 {
		cfg.BatchGas = DefaultBatchGas
	}

	s := &Strategy{
		log:    log,
		config: cfg,
		tracer: otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Strategy) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &strategyMetrics{}

	s.metrics.evaluated, err = meter.Int64Counter(
		"arbitrage_paths_evaluated_total",
		metric.WithDescription("Candidate paths quoted per cycle"),
	)
	if err != nil {
		return err
	}

	s.metrics.committed, err = meter.Int64Counter(
		"arbitrage_plans_committed_total",
		metric.WithDescription("Plans handed to the executor"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Name implements keeper/app.Strategy.
func (s *Strategy) Name() string {
	return "arbitrage"
}

// OnSnapshot implements keeper/app.Strategy: rebuild the edge set from
// the snapshot, enumerate every 2- and 3-edge path over it, quote them
// all at the feasible entry, and commit the single best quote that
// clears the threshold. At most one plan per cycle.
func (s *Strategy) OnSnapshot(ctx context.Context, snap *keeperDomain.Snapshot) ([]keeperDomain.Action, error) {
	ctx, span := s.tracer.Start(ctx, "arbitrage.on_snapshot",
		trace.WithAttributes(attribute.Int64("block", int64(snap.BlockNumber))),
	)
	defer span.End()

	if snap.GasPrice == nil {
		return nil, apperror.New(apperror.CodeChainRead,
			apperror.WithMessage("snapshot carries no gas price"),
			apperror.WithContext("arbitrage"))
	}
	if !snap.NativeBase.IsPositive() {
		return nil, apperror.New(apperror.CodeChainRead,
			apperror.WithMessage("snapshot carries no native conversion rate"),
			apperror.WithContext("arbitrage"))
	}

	edges := BuildEdges(snap, EdgeConfig{
		Pairs:      s.config.Pairs,
		Collateral: s.config.Collateral,
		Stablecoin: s.config.Stablecoin,
	})
	paths := domain.EnumeratePaths(edges, s.config.BaseAsset)
	span.SetAttributes(
		attribute.Int("edges", len(edges)),
		attribute.Int("paths", len(paths)),
	)
	if len(paths) == 0 {
		s.log.Debug(ctx, "no candidate paths this cycle", "edges", len(edges))
		return nil, nil
	}

	entry := s.entryAmount(snap)
	if !entry.IsPositive() {
		s.log.Warn(ctx, "no base balance to engage",
			"asset", s.config.BaseAsset.Symbol(),
			"balance", snap.Balance(s.config.BaseAsset).ToDecimal())
		return nil, nil
	}

	quotes := make([]domain.Quote, 0, len(paths))
	for _, path := range paths {
		gas := domain.NewGasCost(s.gasLimitFor(path), snap.GasPrice.Wei, snap.NativeBase)
		quotes = append(quotes, domain.EvaluatePath(path, entry, gas))
	}
	s.metrics.evaluated.Add(ctx, int64(len(quotes)))

	best, ok := domain.BestQuote(quotes, s.config.MinProfit)
	if !ok {
		s.log.Debug(ctx, "no quote clears the profit threshold",
			"paths", len(paths),
			"min_profit", s.config.MinProfit)
		return nil, nil
	}

	plan := domain.NewPlan(best, s.config.Mode)
	s.metrics.committed.Add(ctx, 1)
	s.log.Info(ctx, "committed arbitrage plan",
		"plan_id", plan.ID,
		"path", best.Path.String(),
		"input", best.Input,
		"net_profit", best.NetProfit,
		"mode", plan.Mode)

	return []keeperDomain.Action{&domain.ExecutePlan{Plan: plan}}, nil
}

// entryAmount is the base the strategy may commit: the configured cap or
// the account balance, whichever is lower.
func (s *Strategy) entryAmount(snap *keeperDomain.Snapshot) decimal.Decimal {
	balance := snap.Balance(s.config.BaseAsset).ToDecimal()
	if balance.LessThan(s.config.MaxEngagement) {
		return balance
	}
	return s.config.MaxEngagement
}

func (s *Strategy) gasLimitFor(path domain.Path) uint64 {
	total := uint64(0)
	for _, e := range path.Edges {
		switch e.Kind {
		case domain.EdgeTrade:
			total += s.config.TradeGas
		case domain.EdgeMint:
			total += s.config.MintGas
		case domain.EdgeRedeem:
			total += s.config.RedeemGas
		}
	}
	if s.config.Mode == domain.ModeAtomic {
		total += s.config.BatchGas
	}
	return total
}
