package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	chainDomain "github.com/dexkeep/keeperbot/business/chain/domain"
	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	"github.com/dexkeep/keeperbot/business/maker/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/logger"
)

// ExchangeGateway is the slice of the chain gateway the maker uses.
// The chain context's gateway satisfies it.
type ExchangeGateway interface {
	// OrderBook returns all live orders for the pair.
	OrderBook(ctx context.Context, pair marketDomain.Pair) (*marketDomain.OrderBook, error)

	// MakeOrder places a new resting order.
	MakeOrder(ctx context.Context, order marketDomain.NewOrder) (chainDomain.TxHandle, error)

	// CancelOrder removes one of the account's own orders.
	CancelOrder(ctx context.Context, id uint64) (chainDomain.TxHandle, error)

	// WaitForReceipt waits for a submitted transaction within the
	// confirmation budget. A timeout is a result, not an error.
	WaitForReceipt(ctx context.Context, handle chainDomain.TxHandle) (chainDomain.ConfirmationResult, error)
}

// ActuatorConfig identifies the operating account and the pairs whose
// orders are swept on shutdown.
type ActuatorConfig struct {
	Account common.Address
	Pairs   []marketDomain.Pair
}

type actuatorMetrics struct {
	created   metric.Int64Counter
	cancelled metric.Int64Counter
}

// Actuator carries maker actions out on chain, one confirmed
// transaction per action.
type Actuator struct {
	log      logger.LoggerInterface
	exchange ExchangeGateway
	cfg      ActuatorConfig
	tracer   trace.Tracer
	metrics  actuatorMetrics
}

// NewActuator wires the actuator to the exchange.
func NewActuator(log logger.LoggerInterface, exchange ExchangeGateway, cfg ActuatorConfig) (*Actuator, error) {
	if exchange == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("maker actuator needs an exchange gateway"))
	}

	a := &Actuator{
		log:      log,
		exchange: exchange,
		cfg:      cfg,
		tracer:   otel.Tracer(tracerName),
	}
	if err := a.initMetrics(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Actuator) initMetrics() error {
	meter := otel.Meter(meterName)

	var err error
	a.metrics.created, err = meter.Int64Counter("maker_orders_created_total",
		metric.WithDescription("Orders created on the book"))
	if err != nil {
		return err
	}
	a.metrics.cancelled, err = meter.Int64Counter("maker_orders_cancelled_total",
		metric.WithDescription("Orders cancelled from the book"))
	if err != nil {
		return err
	}
	return nil
}

// Apply executes a single maker action and waits for its confirmation.
func (a *Actuator) Apply(ctx context.Context, action keeperDomain.Action) error {
	switch act := action.(type) {
	case *domain.CancelOrder:
		return a.cancel(ctx, act.OrderID)
	case *domain.CreateOrder:
		return a.create(ctx, act)
	default:
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage(fmt.Sprintf("maker actuator cannot apply %s actions", action.Kind())),
			apperror.WithContext("maker"))
	}
}

func (a *Actuator) create(ctx context.Context, act *domain.CreateOrder) error {
	ctx, span := a.tracer.Start(ctx, "maker.create_order",
		trace.WithAttributes(
			attribute.String("pair", act.Pair.String()),
			attribute.String("side", string(act.Side)),
		))
	defer span.End()

	order, err := buildNewOrder(act)
	if err != nil {
		return err
	}

	handle, err := a.exchange.MakeOrder(ctx, order)
	if err != nil {
		return err
	}

	if err := a.confirm(ctx, handle, "create order"); err != nil {
		return err
	}

	a.metrics.created.Add(ctx, 1, metric.WithAttributes(attribute.String("pair", act.Pair.String())))
	a.log.Info(ctx, "order created",
		"pair", act.Pair.String(),
		"side", string(act.Side),
		"amount", act.Amount,
		"price", act.Price,
		"tx", handle.Hash.Hex())
	return nil
}

func (a *Actuator) cancel(ctx context.Context, id uint64) error {
	ctx, span := a.tracer.Start(ctx, "maker.cancel_order",
		trace.WithAttributes(attribute.Int64("order", int64(id))))
	defer span.End()

	handle, err := a.exchange.CancelOrder(ctx, id)
	if err != nil {
		return err
	}

	if err := a.confirm(ctx, handle, fmt.Sprintf("cancel order %d", id)); err != nil {
		return err
	}

	a.metrics.cancelled.Add(ctx, 1)
	a.log.Info(ctx, "order cancelled", "order", id, "tx", handle.Hash.Hex())
	return nil
}

func (a *Actuator) confirm(ctx context.Context, handle chainDomain.TxHandle, what string) error {
	result, err := a.exchange.WaitForReceipt(ctx, handle)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case chainDomain.ConfirmationRevert:
		return apperror.New(apperror.CodeTxRevert,
			apperror.WithMessage(fmt.Sprintf("%s reverted in tx %s", what, handle.Hash.Hex())),
			apperror.WithContext("maker"))
	case chainDomain.ConfirmationTimeout:
		return apperror.New(apperror.CodeConfirmationTimeout,
			apperror.WithMessage(fmt.Sprintf("%s unconfirmed after %s", what, result.Elapsed)),
			apperror.WithContext("maker"))
	}
	return nil
}

// CancelAll sweeps the account's own orders off every configured pair.
// Invoked on shutdown so no stale quotes survive the keeper. Failures
// are logged and the sweep continues; the first error is returned.
func (a *Actuator) CancelAll(ctx context.Context) error {
	var firstErr error

	for _, pair := range a.cfg.Pairs {
		book, err := a.exchange.OrderBook(ctx, pair)
		if err != nil {
			a.log.Error(ctx, "shutdown sweep: book read failed", "pair", pair.String(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, o := range book.OwnOrders(a.cfg.Account) {
			if err := a.cancel(ctx, o.ID); err != nil {
				a.log.Error(ctx, "shutdown sweep: cancel failed", "order", o.ID, "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}

	return firstErr
}

// buildNewOrder converts a band's offered-asset sizing into the two
// escrow amounts the book needs, truncated to asset precision.
func buildNewOrder(act *domain.CreateOrder) (marketDomain.NewOrder, error) {
	var sell, buy asset.Amount
	var err error

	if act.Side == marketDomain.SideSell {
		sell, err = toAmount(act.Pair.Base(), act.Amount)
		if err != nil {
			return marketDomain.NewOrder{}, err
		}
		buy, err = toAmount(act.Pair.Quote(), act.Amount.Mul(act.Price))
	} else {
		sell, err = toAmount(act.Pair.Quote(), act.Amount)
		if err != nil {
			return marketDomain.NewOrder{}, err
		}
		buy, err = toAmount(act.Pair.Base(), act.Amount.Div(act.Price))
	}
	if err != nil {
		return marketDomain.NewOrder{}, err
	}

	order := marketDomain.NewOrder{Pair: act.Pair, Side: act.Side, Sell: sell, Buy: buy}
	if err := order.Validate(); err != nil {
		return marketDomain.NewOrder{}, apperror.Wrap(err, apperror.CodeInvalidState, "maker")
	}
	return order, nil
}

func toAmount(a *asset.Asset, d decimal.Decimal) (asset.Amount, error) {
	amount, err := asset.ParseDecimal(a, d.Truncate(int32(a.Decimals())))
	if err != nil {
		return asset.Amount{}, apperror.Wrap(err, apperror.CodeInvalidState, "maker")
	}
	if !amount.IsPositive() {
		return asset.Amount{}, apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage(fmt.Sprintf("order amount %s %s rounds to zero", d, a.Symbol())),
			apperror.WithContext("maker"))
	}
	return amount, nil
}
