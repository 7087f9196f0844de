package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	chainDomain "github.com/dexkeep/keeperbot/business/chain/domain"
	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/logger"
)

// EngineGateway is the slice of the chain gateway the vault monitors
// use. The chain context's gateway satisfies it.
type EngineGateway interface {
	// Bite liquidates an unsafe cup. Any account may call it.
	Bite(ctx context.Context, id uint64) (chainDomain.TxHandle, error)

	// LockCollateral adds collateral to one of the account's own cups.
	LockCollateral(ctx context.Context, id uint64, amount asset.Amount) (chainDomain.TxHandle, error)

	// WaitForReceipt waits for a submitted transaction within the
	// confirmation budget. A timeout is a result, not an error.
	WaitForReceipt(ctx context.Context, handle chainDomain.TxHandle) (chainDomain.ConfirmationResult, error)
}

type actuatorMetrics struct {
	bites  metric.Int64Counter
	topups metric.Int64Counter
}

// Actuator carries vault actions out on chain, one confirmed
// transaction per action.
type Actuator struct {
	log     logger.LoggerInterface
	engine  EngineGateway
	tracer  trace.Tracer
	metrics actuatorMetrics
}

// NewActuator wires the actuator to the vault engine.
func NewActuator(log logger.LoggerInterface, engine EngineGateway) (*Actuator, error) {
	if engine == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("vault actuator needs an engine gateway"))
	}

	a := &Actuator{
		log:    log,
		engine: engine,
		tracer: otel.Tracer(tracerName),
	}

	meter := otel.Meter(meterName)
	var err error
	a.metrics.bites, err = meter.Int64Counter("vault_bites_total",
		metric.WithDescription("Cups bitten"))
	if err != nil {
		return nil, err
	}
	a.metrics.topups, err = meter.Int64Counter("vault_topups_total",
		metric.WithDescription("Collateral locks confirmed"))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Apply executes a single vault action and waits for its confirmation.
func (a *Actuator) Apply(ctx context.Context, action keeperDomain.Action) error {
	switch act := action.(type) {
	case *BiteCup:
		return a.bite(ctx, act.CupID)
	case *TopUpCup:
		return a.topUp(ctx, act)
	default:
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage(fmt.Sprintf("vault actuator cannot apply %s actions", action.Kind())),
			apperror.WithContext("vault"))
	}
}

func (a *Actuator) bite(ctx context.Context, id uint64) error {
	ctx, span := a.tracer.Start(ctx, "vault.bite",
		trace.WithAttributes(attribute.Int64("cup", int64(id))))
	defer span.End()

	handle, err := a.engine.Bite(ctx, id)
	if err != nil {
		return err
	}

	if err := a.confirm(ctx, handle, fmt.Sprintf("bite cup %d", id)); err != nil {
		return err
	}

	a.metrics.bites.Add(ctx, 1)
	a.log.Info(ctx, "cup bitten", "cup", id, "tx", handle.Hash.Hex())
	return nil
}

func (a *Actuator) topUp(ctx context.Context, act *TopUpCup) error {
	ctx, span := a.tracer.Start(ctx, "vault.top_up",
		trace.WithAttributes(attribute.Int64("cup", int64(act.CupID))))
	defer span.End()

	handle, err := a.engine.LockCollateral(ctx, act.CupID, act.Amount)
	if err != nil {
		return err
	}

	if err := a.confirm(ctx, handle, fmt.Sprintf("top up cup %d", act.CupID)); err != nil {
		return err
	}

	a.metrics.topups.Add(ctx, 1)
	a.log.Info(ctx, "collateral locked",
		"cup", act.CupID,
		"amount", act.Amount,
		"tx", handle.Hash.Hex())
	return nil
}

func (a *Actuator) confirm(ctx context.Context, handle chainDomain.TxHandle, what string) error {
	result, err := a.engine.WaitForReceipt(ctx, handle)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case chainDomain.ConfirmationRevert:
		return apperror.New(apperror.CodeTxRevert,
			apperror.WithMessage(fmt.Sprintf("%s reverted in tx %s", what, handle.Hash.Hex())),
			apperror.WithContext("vault"))
	case chainDomain.ConfirmationTimeout:
		return apperror.New(apperror.CodeConfirmationTimeout,
			apperror.WithMessage(fmt.Sprintf("%s unconfirmed after %s", what, result.Elapsed)),
			apperror.WithContext("vault"))
	}
	return nil
}
