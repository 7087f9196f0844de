// Package ethereum implements the chain gateway against a go-ethereum
// JSON-RPC node.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
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
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/circuitbreaker"
	"github.com/dexkeep/keeperbot/internal/logger"
	"github.com/dexkeep/keeperbot/internal/ratelimit"
)

const (
	tracerName = "github.com/dexkeep/keeperbot/business/chain/infra/ethereum"
	meterName  = "github.com/dexkeep/keeperbot/business/chain/infra/ethereum"
)

// Interface assertions.
var (
	_ app.NodeReader      = (*Gateway)(nil)
	_ app.TokenGateway    = (*Gateway)(nil)
	_ app.ExchangeGateway = (*Gateway)(nil)
	_ app.PoolGateway     = (*Gateway)(nil)
	_ app.OracleReader    = (*Gateway)(nil)
	_ app.VaultGateway    = (*Gateway)(nil)
	_ app.BatchGateway    = (*Gateway)(nil)
	_ app.TxConfirmer     = (*Gateway)(nil)
)

// GatewayConfig holds addresses and tuning for the chain gateway.
type GatewayConfig struct {
	Exchange common.Address
	Vault    common.Address
	Pool     common.Address
	Oracle   common.Address
	Batch    common.Address // zero unless atomic execution is configured

	// Stablecoin and Collateral are the two system assets the pool and
	// vault engine denominate in.
	Stablecoin *asset.Asset
	Collateral *asset.Asset

	ConfirmationTimeout time.Duration
	ConfirmPollInterval time.Duration
	RateLimitRPS        float64
	RateLimitBurst      int

	// GasMaxWei caps the gas price on every submitted transaction,
	// whatever the pricing strategy suggests.
	GasMaxWei *big.Int
}

type gatewayMetrics struct {
	reads          metric.Int64Counter
	readErrors     metric.Int64Counter
	txSubmitted    metric.Int64Counter
	txConfirmed    metric.Int64Counter
	confirmLatency metric.Float64Histogram
}

// Gateway talks to the exchange, pool, vault engine, oracle and batch
// executor contracts through a single RPC client. One instance backs
// every chain capability a keeper binds at startup.
type Gateway struct {
	log      logger.LoggerInterface
	client   *ethclient.Client
	config   GatewayConfig
	abis     *contractABIs
	registry *asset.Registry
	signer   *Signer // nil in read-only mode
	strategy domain.GasStrategy
	gas      app.GasPricer

	limiter *ratelimit.Limiter
	readCB  *circuitbreaker.CircuitBreaker[[]byte]

	// writeMu serializes nonce acquisition and submission. Keepers are
	// single-threaded per process but share the gateway across contexts.
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[common.Hash]*pendingTx

	tracer  trace.Tracer
	metrics gatewayMetrics
}

// NewGateway creates the chain gateway. signer may be nil, in which
// case every write returns an error.
func NewGateway(
	log logger.LoggerInterface,
	client *ethclient.Client,
	config GatewayConfig,
	registry *asset.Registry,
	signer *Signer,
	strategy domain.GasStrategy,
	gas app.GasPricer,
) (*Gateway, error) {
	if client == nil {
		return nil, apperror.New(apperror.CodeRequiredField,
			apperror.WithMessage("ethclient is required"))
	}
	if config.Stablecoin == nil || config.Collateral == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("gateway requires stablecoin and collateral assets"))
	}
	if config.ConfirmPollInterval <= 0 {
		config.ConfirmPollInterval = 2 * time.Second
	}
	if config.ConfirmationTimeout <= 0 {
		config.ConfirmationTimeout = 4 * time.Minute
	}
	if config.RateLimitRPS <= 0 {
		config.RateLimitRPS = 20
	}
	if config.RateLimitBurst <= 0 {
		config.RateLimitBurst = int(config.RateLimitRPS) * 2
	}

	abis, err := parseABIs()
	if err != nil {
		return nil, fmt.Errorf("parsing contract ABIs: %w", err)
	}

	g := &Gateway{
		log:      log,
		client:   client,
		config:   config,
		abis:     abis,
		registry: registry,
		signer:   signer,
		strategy: strategy,
		gas:      gas,
		limiter:  ratelimit.New(config.RateLimitRPS, config.RateLimitBurst),
		readCB:   circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("chain-reads")),
		tracer:   otel.Tracer(tracerName),
	}

	if err := g.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing gateway metrics: %w", err)
	}

	return g, nil
}

func (g *Gateway) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	if g.metrics.reads, err = meter.Int64Counter("chain_reads_total",
		metric.WithDescription("Contract read calls issued"),
		metric.WithUnit("{call}")); err != nil {
		return err
	}
	if g.metrics.readErrors, err = meter.Int64Counter("chain_read_errors_total",
		metric.WithDescription("Contract read calls that failed"),
		metric.WithUnit("{call}")); err != nil {
		return err
	}
	if g.metrics.txSubmitted, err = meter.Int64Counter("chain_txs_submitted_total",
		metric.WithDescription("Transactions submitted to the node"),
		metric.WithUnit("{tx}")); err != nil {
		return err
	}
	if g.metrics.txConfirmed, err = meter.Int64Counter("chain_tx_outcomes_total",
		metric.WithDescription("Transaction confirmation outcomes"),
		metric.WithUnit("{tx}")); err != nil {
		return err
	}
	if g.metrics.confirmLatency, err = meter.Float64Histogram("chain_tx_confirm_duration_ms",
		metric.WithDescription("Time from submission to receipt"),
		metric.WithUnit("ms")); err != nil {
		return err
	}

	return nil
}

// call packs nothing; it executes an already-encoded eth_call against a
// contract, with rate limiting and the shared read breaker.
func (g *Gateway) call(ctx context.Context, contract string, to common.Address, data []byte) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeRateLimitExceeded, contract)
	}

	out, err := g.readCB.Execute(func() ([]byte, error) {
		return g.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		g.metrics.readErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("contract", contract)))
		// Breaker rejections keep their own code; raw RPC failures
		// become contract call errors.
		return nil, apperror.Wrap(err, apperror.CodeContractCallFailed, contract)
	}

	g.metrics.reads.Add(ctx, 1, metric.WithAttributes(attribute.String("contract", contract)))
	return out, nil
}

// view packs a method call, executes it and unpacks the results.
func (g *Gateway) view(ctx context.Context, contract string, to common.Address, method string, args ...any) ([]any, error) {
	target := g.abis.abiFor(contract)
	data, err := target.Pack(method, args...)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeContractCallFailed,
			fmt.Sprintf("pack %s.%s", contract, method))
	}

	out, err := g.call(ctx, contract, to, data)
	if err != nil {
		return nil, err
	}

	results, err := target.Unpack(method, out)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeContractCallFailed,
			fmt.Sprintf("unpack %s.%s", contract, method))
	}
	return results, nil
}

// abiFor maps a contract label to its parsed ABI.
func (c *contractABIs) abiFor(contract string) *abi.ABI {
	switch contract {
	case "erc20":
		return &c.erc20
	case "exchange":
		return &c.exchange
	case "pool":
		return &c.pool
	case "vault":
		return &c.vault
	case "oracle":
		return &c.oracle
	case "batch":
		return &c.batch
	default:
		panic(fmt.Sprintf("ethereum: unknown contract %q", contract))
	}
}

// BlockNumber returns the current block height.
func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, apperror.Wrap(err, apperror.CodeRateLimitExceeded, "blockNumber")
	}
	n, err := g.client.BlockNumber(ctx)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.CodeChainRead, "blockNumber")
	}
	return n, nil
}

// ChainID returns the connected chain's ID.
func (g *Gateway) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := g.client.ChainID(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeChainRead, "chainId")
	}
	return id, nil
}

// IsSynced reports whether the node has finished syncing. A nil sync
// progress from the node means it is caught up.
func (g *Gateway) IsSynced(ctx context.Context) (bool, error) {
	progress, err := g.client.SyncProgress(ctx)
	if err != nil {
		return false, apperror.Wrap(err, apperror.CodeChainRead, "syncing")
	}
	return progress == nil, nil
}

// Balance returns the owner's balance of a single asset. Native assets
// read the account balance, tokens go through balanceOf.
func (g *Gateway) Balance(ctx context.Context, a *asset.Asset, owner common.Address) (asset.Amount, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.balance",
		trace.WithAttributes(
			attribute.String("asset", a.Symbol()),
			attribute.String("owner", owner.Hex()),
		))
	defer span.End()

	if a.IsNative() {
		if err := g.limiter.Wait(ctx); err != nil {
			return asset.Amount{}, apperror.Wrap(err, apperror.CodeRateLimitExceeded, "balance")
		}
		raw, err := g.client.BalanceAt(ctx, owner, nil)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return asset.Amount{}, apperror.Wrap(err, apperror.CodeChainRead, "native balance")
		}
		span.SetStatus(codes.Ok, "")
		return asset.NewAmount(a, raw), nil
	}

	results, err := g.view(ctx, "erc20", a.Address(), "balanceOf", owner)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return asset.Amount{}, err
	}
	raw, ok := results[0].(*big.Int)
	if !ok {
		span.SetStatus(codes.Error, "bad balanceOf result")
		return asset.Amount{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected balanceOf result type"))
	}

	span.SetStatus(codes.Ok, "")
	return asset.NewAmount(a, raw), nil
}

// Allowance returns how much spender may move on behalf of owner.
func (g *Gateway) Allowance(ctx context.Context, a *asset.Asset, owner, spender common.Address) (asset.Amount, error) {
	results, err := g.view(ctx, "erc20", a.Address(), "allowance", owner, spender)
	if err != nil {
		return asset.Amount{}, err
	}
	raw, ok := results[0].(*big.Int)
	if !ok {
		return asset.Amount{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected allowance result type"))
	}
	return asset.NewAmount(a, raw), nil
}

// unlimitedAllowance is 2^256-1; exchanges treat it as "never ask again".
var unlimitedAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Approve grants spender an effectively unlimited allowance.
func (g *Gateway) Approve(ctx context.Context, a *asset.Asset, spender common.Address) (domain.TxHandle, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.approve",
		trace.WithAttributes(
			attribute.String("asset", a.Symbol()),
			attribute.String("spender", spender.Hex()),
		))
	defer span.End()

	data, err := g.abis.erc20.Pack("approve", spender, unlimitedAllowance)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, apperror.Wrap(err, apperror.CodeContractCallFailed, "pack approve")
	}

	handle, err := g.submit(ctx, domain.TxRequest{
		Call: domain.Call{To: a.Address(), Data: data},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, err
	}

	span.SetStatus(codes.Ok, "")
	return handle, nil
}
