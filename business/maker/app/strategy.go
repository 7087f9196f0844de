// Package app contains the market-making strategy and its actuator.
package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	"github.com/dexkeep/keeperbot/business/maker/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/logger"
)

const (
	tracerName = "github.com/dexkeep/keeperbot/business/maker/app"
	meterName  = "github.com/dexkeep/keeperbot/business/maker/app"
)

// StrategyConfig holds the bands the maker maintains.
type StrategyConfig struct {
	Bands []domain.Band

	// RoundPlaces is the decimal precision of new order prices.
	RoundPlaces int32
}

type strategyMetrics struct {
	passes metric.Int64Counter
}

// Strategy reconciles every configured band against each snapshot. It
// only decides; the actuator carries the cancels and creates out.
type Strategy struct {
	log     logger.LoggerInterface
	cfg     StrategyConfig
	tracer  trace.Tracer
	metrics strategyMetrics
}

// NewStrategy validates the band set.
func NewStrategy(log logger.LoggerInterface, cfg StrategyConfig) (*Strategy, error) {
	if len(cfg.Bands) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("maker strategy needs at least one band"))
	}
	seen := make(map[string]bool)
	for _, band := range cfg.Bands {
		if seen[band.Key()] {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithMessage("duplicate band "+band.Key()))
		}
		seen[band.Key()] = true
	}

	s := &Strategy{
		log:    log,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Strategy) initMetrics() error {
	meter := otel.Meter(meterName)

	var err error
	s.metrics.passes, err = meter.Int64Counter("maker_band_passes_total",
		metric.WithDescription("Band reconciliation passes run"))
	if err != nil {
		return err
	}
	return nil
}

// Name identifies the strategy.
func (s *Strategy) Name() string { return "maker" }

// OnSnapshot reconciles each band in turn. Bands offering the same
// asset share one balance budget within the pass, so two bands cannot
// both spend the same funds.
func (s *Strategy) OnSnapshot(ctx context.Context, snap *keeperDomain.Snapshot) ([]keeperDomain.Action, error) {
	ctx, span := s.tracer.Start(ctx, "maker.on_snapshot",
		trace.WithAttributes(attribute.Int64("block", int64(snap.BlockNumber))))
	defer span.End()

	available := make(map[string]decimal.Decimal)
	var actions []keeperDomain.Action

	for _, band := range s.cfg.Bands {
		if _, ok := snap.Book(band.Pair); !ok {
			return nil, apperror.New(apperror.CodeChainRead,
				apperror.WithMessage("snapshot has no book for "+band.Pair.String()),
				apperror.WithContext("maker"))
		}
		price, ok := snap.Price(band.Pair)
		if !ok {
			return nil, apperror.New(apperror.CodeFeedUnavailable,
				apperror.WithMessage("snapshot has no reference price for "+band.Pair.String()),
				apperror.WithContext("maker"))
		}

		offered := band.OfferedAsset()
		budget, tracked := available[offered.Symbol()]
		if !tracked {
			budget = snap.Balance(offered).ToDecimal()
		}

		rec, err := band.Reconcile(snap.OwnOrders(band.Pair), price.Rate(), budget, s.cfg.RoundPlaces)
		if err != nil {
			return nil, err
		}
		s.metrics.passes.Add(ctx, 1, metric.WithAttributes(attribute.String("band", band.Key())))

		for _, o := range rec.Cancels {
			s.log.Info(ctx, "order out of band",
				"band", band.Key(),
				"order", o.ID,
				"ref", price.Rate())
			actions = append(actions, &domain.CancelOrder{Pair: band.Pair, OrderID: o.ID})
		}

		if rec.Create != nil {
			s.log.Info(ctx, "band below minimum, replenishing",
				"band", band.Key(),
				"amount", rec.Create.Amount,
				"price", rec.Create.Price)
			actions = append(actions, &domain.CreateOrder{
				Pair:   band.Pair,
				Side:   band.Side,
				Price:  rec.Create.Price,
				Amount: rec.Create.Amount,
			})
			budget = decimal.Max(decimal.Zero, budget.Sub(rec.Create.Amount))
		}

		available[offered.Symbol()] = budget
	}

	if len(actions) > 0 {
		s.log.Debug(ctx, fmt.Sprintf("maker pass produced %d actions", len(actions)))
	}
	return actions, nil
}
