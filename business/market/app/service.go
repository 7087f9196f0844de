package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/logger"
)

const (
	tracerName = "github.com/dexkeep/keeperbot/business/market/app"
	meterName  = "github.com/dexkeep/keeperbot/business/market/app"
)

// PriceServiceConfig holds configuration for the price service.
type PriceServiceConfig struct {
	// QuoteSymbol is the currency the external feed quotes in ("USD").
	QuoteSymbol string
	// TargetPrice is the feed-currency price of one stablecoin. Feed
	// quotes are divided by it to land in stablecoin terms.
	TargetPrice decimal.Decimal
	// StaleAfter is the maximum acceptable tick age before the service
	// falls back to the oracle.
	StaleAfter time.Duration
}

// DefaultPriceServiceConfig returns sensible defaults.
func DefaultPriceServiceConfig() PriceServiceConfig {
	return PriceServiceConfig{
		QuoteSymbol: "USD",
		TargetPrice: decimal.NewFromInt(1),
		StaleAfter:  30 * time.Second,
	}
}

type priceMetrics struct {
	lookups   metric.Int64Counter
	fallbacks metric.Int64Counter
	misses    metric.Int64Counter
}

// PriceService resolves the reference price for a pair: the external
// feed is primary, the on-chain oracle is the fallback. Feed may be
// nil (oracle only); oracle may be nil (feed only).
type PriceService struct {
	log    logger.LoggerInterface
	config PriceServiceConfig
	feed   FeedProvider
	oracle OraclePriceReader

	tracer  trace.Tracer
	metrics *priceMetrics
}

// NewPriceService creates a new PriceService.
func NewPriceService(log logger.LoggerInterface, cfg PriceServiceConfig, feed FeedProvider, oracle OraclePriceReader) (*PriceService, error) {
	if feed == nil && oracle == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("price service needs a feed or an oracle"))
	}
	if cfg.QuoteSymbol == "" {
		cfg.QuoteSymbol = "USD"
	}
	if cfg.TargetPrice.IsZero() {
		cfg.TargetPrice = decimal.NewFromInt(1)
	}

	s := &PriceService{
		log:    log,
		config: cfg,
		feed:   feed,
		oracle: oracle,
		tracer: otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *PriceService) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &priceMetrics{}

	s.metrics.lookups, err = meter.Int64Counter(
		"market_price_lookups_total",
		metric.WithDescription("Reference price lookups by source"),
	)
	if err != nil {
		return err
	}

	s.metrics.fallbacks, err = meter.Int64Counter(
		"market_price_fallbacks_total",
		metric.WithDescription("Lookups that fell back to the oracle"),
	)
	if err != nil {
		return err
	}

	s.metrics.misses, err = meter.Int64Counter(
		"market_price_misses_total",
		metric.WithDescription("Lookups that no source could answer"),
	)
	if err != nil {
		return err
	}

	return nil
}

// FeedSymbol returns the feed symbol the service queries for a pair.
func (s *PriceService) FeedSymbol(pair domain.Pair) string {
	return pair.Base().Symbol() + s.config.QuoteSymbol
}

// ReferencePrice resolves the current reference price for pair.
// Feed quotes are converted into pair-quote terms via the target price;
// a stale or missing feed answer falls back to the oracle.
func (s *PriceService) ReferencePrice(ctx context.Context, pair domain.Pair) (domain.ReferencePrice, error) {
	ctx, span := s.tracer.Start(ctx, "market.reference_price",
		trace.WithAttributes(attribute.String("pair", pair.String())),
	)
	defer span.End()

	if s.feed != nil {
		ref, err := s.fromFeed(ctx, pair)
		if err == nil {
			span.SetAttributes(attribute.String("source", string(ref.Source)))
			s.metrics.lookups.Add(ctx, 1,
				metric.WithAttributes(attribute.String("source", string(domain.SourceFeed))))
			return ref, nil
		}
		s.log.Debug(ctx, "feed price unavailable", "pair", pair.String(), "error", err)
		if s.oracle != nil {
			s.metrics.fallbacks.Add(ctx, 1)
		}
	}

	if s.oracle != nil {
		ref, err := s.fromOracle(ctx, pair)
		if err == nil {
			span.SetAttributes(attribute.String("source", string(ref.Source)))
			s.metrics.lookups.Add(ctx, 1,
				metric.WithAttributes(attribute.String("source", string(domain.SourceOracle))))
			return ref, nil
		}
		s.log.Debug(ctx, "oracle price unavailable", "pair", pair.String(), "error", err)
	}

	s.metrics.misses.Add(ctx, 1)
	return domain.ReferencePrice{}, apperror.New(apperror.CodeFeedUnavailable,
		apperror.WithContext(fmt.Sprintf("no price source for %s", pair)))
}

func (s *PriceService) fromFeed(ctx context.Context, pair domain.Pair) (domain.ReferencePrice, error) {
	tick, err := s.feed.LatestTick(ctx, s.FeedSymbol(pair))
	if err != nil {
		return domain.ReferencePrice{}, err
	}
	if tick.IsStale(s.config.StaleAfter) {
		return domain.ReferencePrice{}, apperror.New(apperror.CodeFeedStale,
			apperror.WithContext(fmt.Sprintf("tick for %s is %s old", tick.Symbol, time.Since(tick.At).Round(time.Second))))
	}
	if !tick.Price.IsPositive() {
		return domain.ReferencePrice{}, apperror.New(apperror.CodeFeedUnavailable,
			apperror.WithContext(fmt.Sprintf("tick for %s has no price", tick.Symbol)))
	}

	// Feed quotes BASE in feed currency; dividing by the stablecoin's
	// feed-currency price restates it in quote-asset terms.
	rate := tick.Price.Div(s.config.TargetPrice)
	value := asset.NewPrice(pair.Base(), pair.Quote(), rate, tick.At)

	return domain.ReferencePrice{Pair: pair, Value: value, Source: domain.SourceFeed}, nil
}

func (s *PriceService) fromOracle(ctx context.Context, pair domain.Pair) (domain.ReferencePrice, error) {
	price, err := s.oracle.ReferencePrice(ctx)
	if err != nil {
		return domain.ReferencePrice{}, err
	}

	switch {
	case price.Base().Equals(pair.Base()) && price.Quote().Equals(pair.Quote()):
		// direct
	case price.Base().Equals(pair.Quote()) && price.Quote().Equals(pair.Base()):
		price = price.Invert()
	default:
		return domain.ReferencePrice{}, apperror.New(apperror.CodeFeedUnavailable,
			apperror.WithContext(fmt.Sprintf("oracle covers %s, not %s", price.Pair(), pair)))
	}

	return domain.ReferencePrice{Pair: pair, Value: price, Source: domain.SourceOracle}, nil
}
