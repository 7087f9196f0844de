package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexkeep/keeperbot/business/chain/app"
	"github.com/dexkeep/keeperbot/business/chain/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/cache"
	"github.com/dexkeep/keeperbot/internal/circuitbreaker"
	"github.com/dexkeep/keeperbot/internal/logger"
)

var _ app.GasPricer = (*GasPricer)(nil)

// GasPricerConfig holds configuration for the gas pricer.
type GasPricerConfig struct {
	// From is the operating account; estimation runs with it as sender
	// so allowance-dependent calls estimate accurately.
	From common.Address

	CacheTTL    time.Duration // how long to cache the node suggestion
	MaxGasPrice *big.Int      // safety cap on the node suggestion
}

// DefaultGasPricerConfig returns sensible defaults.
func DefaultGasPricerConfig(from common.Address) GasPricerConfig {
	maxGas := new(big.Int)
	maxGas.SetString("500000000000", 10) // 500 gwei

	return GasPricerConfig{
		From:        from,
		CacheTTL:    12 * time.Second, // ~1 block
		MaxGasPrice: maxGas,
	}
}

type gasPricerMetrics struct {
	fetches      metric.Int64Counter
	gasPriceGwei metric.Float64Gauge
	estimates    metric.Int64Counter
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

// GasPricer reads node gas suggestions with caching and estimates call
// gas with a safety margin.
type GasPricer struct {
	config GasPricerConfig
	logger logger.LoggerInterface
	client *ethclient.Client

	priceCache *cache.Cache[string, *domain.GasPrice]

	cb *circuitbreaker.CircuitBreaker[*big.Int]

	tracer  trace.Tracer
	metrics *gasPricerMetrics
}

// NewGasPricer creates a gas pricer on an already-connected client.
func NewGasPricer(cfg GasPricerConfig, log logger.LoggerInterface, client *ethclient.Client) (*GasPricer, error) {
	if client == nil {
		return nil, apperror.New(apperror.CodeRequiredField,
			apperror.WithMessage("ethclient is required"))
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 12 * time.Second
	}

	g := &GasPricer{
		config:     cfg,
		logger:     log,
		client:     client,
		priceCache: cache.New[string, *domain.GasPrice](5 * time.Minute),
		cb:         circuitbreaker.New[*big.Int](circuitbreaker.DefaultConfig("gas-pricer")),
		tracer:     otel.Tracer(tracerName),
	}

	if err := g.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return g, nil
}

func (g *GasPricer) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	g.metrics = &gasPricerMetrics{}

	g.metrics.fetches, err = meter.Int64Counter(
		"gas_price_fetches_total",
		metric.WithDescription("Total gas price fetch attempts"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	g.metrics.gasPriceGwei, err = meter.Float64Gauge(
		"gas_price_gwei",
		metric.WithDescription("Current gas price in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	g.metrics.estimates, err = meter.Int64Counter(
		"gas_estimate_total",
		metric.WithDescription("Total gas estimation calls"),
		metric.WithUnit("{estimate}"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheHits, err = meter.Int64Counter(
		"gas_cache_hits_total",
		metric.WithDescription("Gas price cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheMisses, err = meter.Int64Counter(
		"gas_cache_misses_total",
		metric.WithDescription("Gas price cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// GetGasPrice retrieves the current suggested gas price with caching.
func (g *GasPricer) GetGasPrice(ctx context.Context) (*domain.GasPrice, error) {
	ctx, span := g.tracer.Start(ctx, "gas.get_price")
	defer span.End()

	if price, found := g.priceCache.Get(ctx, "current"); found {
		g.metrics.cacheHits.Add(ctx, 1)
		span.AddEvent("cache_hit")
		return price, nil
	}

	g.metrics.cacheMisses.Add(ctx, 1)
	g.metrics.fetches.Add(ctx, 1)

	wei, err := g.cb.Execute(func() (*big.Int, error) {
		return g.client.SuggestGasPrice(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.Wrap(err, apperror.CodeChainRead, "suggest gas price")
	}

	if g.config.MaxGasPrice != nil && wei.Cmp(g.config.MaxGasPrice) > 0 {
		span.AddEvent("gas_price_exceeded_max",
			trace.WithAttributes(attribute.String("wei", wei.String())))
		g.logger.Warn(ctx, "gas price exceeds max", "wei", wei.String())
		wei = g.config.MaxGasPrice
	}

	price := domain.NewGasPrice(wei)
	g.priceCache.Set(ctx, "current", price, g.config.CacheTTL)
	g.metrics.gasPriceGwei.Record(ctx, price.Gwei)

	span.SetAttributes(attribute.Float64("gwei", price.Gwei))
	span.SetStatus(codes.Ok, "fetched")

	return price, nil
}

// EstimateGas estimates the gas needed for a request, with a 10%
// safety margin on the node's answer.
func (g *GasPricer) EstimateGas(ctx context.Context, req domain.TxRequest) (uint64, error) {
	ctx, span := g.tracer.Start(ctx, "gas.estimate",
		trace.WithAttributes(
			attribute.String("to", req.To.Hex()),
			attribute.Int("data_len", len(req.Data)),
		),
	)
	defer span.End()

	g.metrics.estimates.Add(ctx, 1)

	to := req.To
	msg := ethereum.CallMsg{
		From:  g.config.From,
		To:    &to,
		Data:  req.Data,
		Value: req.Value,
	}

	gas, err := g.client.EstimateGas(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "estimate failed")
		return 0, apperror.New(apperror.CodeGasEstimationFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("estimate gas for %s", req.To.Hex())))
	}

	gas = gas + (gas / 10)

	span.SetAttributes(attribute.Int64("gas", int64(gas)))
	span.SetStatus(codes.Ok, "estimated")

	return gas, nil
}
