package app

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	chainApp "github.com/dexkeep/keeperbot/business/chain/app"
	"github.com/dexkeep/keeperbot/business/keeper/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	vaultDomain "github.com/dexkeep/keeperbot/business/vault/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/logger"
)

// PriceSource supplies the reference price for one pair, feed first
// with oracle fallback. The market context's price service satisfies it.
type PriceSource interface {
	ReferencePrice(ctx context.Context, pair marketDomain.Pair) (marketDomain.ReferencePrice, error)
}

// BuilderConfig selects which snapshot sections a keeper needs. Every
// enabled section is read fresh each cycle.
type BuilderConfig struct {
	Account common.Address

	// Assets are the balances to read.
	Assets []*asset.Asset

	// Pairs are the order books to assemble.
	Pairs []marketDomain.Pair

	// PricePairs are the reference prices to read.
	PricePairs []marketDomain.Pair

	// NativePair prices the wrapped native token in base-asset units
	// for gas accounting. Nil when the base asset is the wrapped native
	// token itself and the rate is 1.
	NativePair *marketDomain.Pair

	WithGas  bool
	WithPool bool
	WithCups bool
}

// Builder reads the enabled sections from the chain into one Snapshot.
type Builder struct {
	log     logger.LoggerInterface
	gateway chainApp.Gateway
	watcher chainApp.BlockWatcher
	gas     chainApp.GasPricer
	prices  PriceSource
	cfg     BuilderConfig
	tracer  trace.Tracer
}

var _ SnapshotSource = (*Builder)(nil)

// NewBuilder checks that every enabled section has the capability it
// needs.
func NewBuilder(log logger.LoggerInterface, gateway chainApp.Gateway, watcher chainApp.BlockWatcher, gas chainApp.GasPricer, prices PriceSource, cfg BuilderConfig) (*Builder, error) {
	if gateway == nil || watcher == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("snapshot builder needs a gateway and a block watcher"))
	}
	if cfg.WithGas && gas == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("snapshot builder needs a gas pricer for the gas section"))
	}
	if (len(cfg.PricePairs) > 0 || cfg.NativePair != nil) && prices == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("snapshot builder needs a price source for the price section"))
	}

	return &Builder{
		log:     log,
		gateway: gateway,
		watcher: watcher,
		gas:     gas,
		prices:  prices,
		cfg:     cfg,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Acquire assembles one snapshot from fresh reads.
func (b *Builder) Acquire(ctx context.Context) (*domain.Snapshot, error) {
	ctx, span := b.tracer.Start(ctx, "keeper.acquire_snapshot")
	defer span.End()

	block, err := b.watcher.LatestBlock(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeChainRead, "keeper")
	}
	span.SetAttributes(attribute.Int64("block", int64(block.Number)))

	snap := &domain.Snapshot{
		BlockNumber: block.Number,
		TakenAt:     time.Now(),
		Account:     b.cfg.Account,
		NativeBase:  decimal.NewFromInt(1),
	}

	if err := b.readBalances(ctx, snap); err != nil {
		return nil, err
	}
	if err := b.readBooks(ctx, snap); err != nil {
		return nil, err
	}
	if err := b.readPrices(ctx, snap); err != nil {
		return nil, err
	}
	if err := b.readGas(ctx, snap); err != nil {
		return nil, err
	}
	if err := b.readPool(ctx, snap); err != nil {
		return nil, err
	}
	if err := b.readCups(ctx, snap); err != nil {
		return nil, err
	}

	b.log.Debug(ctx, "snapshot acquired",
		"block", snap.BlockNumber,
		"balances", len(snap.Balances),
		"books", len(snap.Books),
		"prices", len(snap.Prices),
		"cups", len(snap.Cups))
	return snap, nil
}

func (b *Builder) readBalances(ctx context.Context, snap *domain.Snapshot) error {
	if len(b.cfg.Assets) == 0 {
		return nil
	}

	snap.Balances = make(map[string]asset.Amount, len(b.cfg.Assets))
	for _, a := range b.cfg.Assets {
		balance, err := b.gateway.Balance(ctx, a, b.cfg.Account)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeChainRead, "keeper")
		}
		snap.Balances[a.Symbol()] = balance
	}
	return nil
}

func (b *Builder) readBooks(ctx context.Context, snap *domain.Snapshot) error {
	if len(b.cfg.Pairs) == 0 {
		return nil
	}

	// One full scan feeds every per-pair book.
	orders, err := b.gateway.AllOrders(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeChainRead, "keeper")
	}

	fetchedAt := time.Now()
	snap.Books = make(map[string]*marketDomain.OrderBook, len(b.cfg.Pairs))
	for _, pair := range b.cfg.Pairs {
		snap.Books[pair.String()] = marketDomain.NewOrderBook(pair, orders, fetchedAt)
	}
	return nil
}

func (b *Builder) readPrices(ctx context.Context, snap *domain.Snapshot) error {
	if len(b.cfg.PricePairs) == 0 {
		return nil
	}

	snap.Prices = make(map[string]marketDomain.ReferencePrice, len(b.cfg.PricePairs))
	for _, pair := range b.cfg.PricePairs {
		ref, err := b.prices.ReferencePrice(ctx, pair)
		if err != nil {
			return err
		}
		snap.Prices[pair.String()] = ref
	}
	return nil
}

func (b *Builder) readGas(ctx context.Context, snap *domain.Snapshot) error {
	if !b.cfg.WithGas {
		return nil
	}

	price, err := b.gas.GetGasPrice(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeChainRead, "keeper")
	}
	snap.GasPrice = price

	if b.cfg.NativePair != nil {
		pair := *b.cfg.NativePair
		ref, ok := snap.Prices[pair.String()]
		if !ok {
			fresh, err := b.prices.ReferencePrice(ctx, pair)
			if err != nil {
				return err
			}
			ref = fresh
		}
		snap.NativeBase = ref.Rate()
	}
	return nil
}

func (b *Builder) readPool(ctx context.Context, snap *domain.Snapshot) error {
	if !b.cfg.WithPool {
		return nil
	}

	mintRate, err := b.gateway.MintRate(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeChainRead, "keeper")
	}
	redeemRate, err := b.gateway.RedeemRate(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeChainRead, "keeper")
	}
	mintCapacity, err := b.gateway.MintCapacity(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeChainRead, "keeper")
	}
	redeemCapacity, err := b.gateway.RedeemCapacity(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeChainRead, "keeper")
	}

	snap.Pool = &domain.PoolState{
		MintRate:       mintRate,
		RedeemRate:     redeemRate,
		MintCapacity:   mintCapacity,
		RedeemCapacity: redeemCapacity,
	}
	return nil
}

func (b *Builder) readCups(ctx context.Context, snap *domain.Snapshot) error {
	if !b.cfg.WithCups {
		return nil
	}

	liquidationRatio, err := b.gateway.LiquidationRatio(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeChainRead, "keeper")
	}
	collateralPrice, err := b.gateway.CollateralPrice(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeChainRead, "keeper")
	}
	count, err := b.gateway.CupCount(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeChainRead, "keeper")
	}

	snap.LiquidationRatio = liquidationRatio
	snap.CollateralPrice = collateralPrice

	// Cup IDs are 1-based and dense up to the count of cups ever opened.
	cups := make([]vaultDomain.Cup, 0, count)
	for id := uint64(1); id <= count; id++ {
		cup, err := b.gateway.Cup(ctx, id)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeChainRead, "keeper")
		}
		cups = append(cups, cup)
	}
	snap.Cups = cups
	return nil
}
