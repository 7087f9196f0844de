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

	"github.com/dexkeep/keeperbot/business/arbitrage/domain"
	chainDomain "github.com/dexkeep/keeperbot/business/chain/domain"
	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/logger"
)

// ExecutorConfig holds configuration for plan execution.
type ExecutorConfig struct {
	// Account is the keeper's operating address.
	Account common.Address

	// BaseAsset, MinProfit and MaxEngagement mirror the strategy's
	// settings; re-validation re-applies them against fresh state.
	BaseAsset     *asset.Asset
	MinProfit     decimal.Decimal
	MaxEngagement decimal.Decimal
}

type executorMetrics struct {
	plans  metric.Int64Counter
	profit metric.Float64Histogram
}

// Executor carries plans out on chain. Before anything is submitted it
// re-quotes the plan's path from fresh reads; a quote that no longer
// clears the threshold aborts the plan with zero submissions. After the
// first submission the plan can only complete or fail.
type Executor struct {
	log      logger.LoggerInterface
	chain    ChainGateway
	config   ExecutorConfig
	journal  Journal  // optional
	reporter Reporter // optional

	tracer  trace.Tracer
	metrics *executorMetrics
}

// NewExecutor creates a new Executor. journal and reporter may be nil.
func NewExecutor(log logger.LoggerInterface, chain ChainGateway, cfg ExecutorConfig, journal Journal, reporter Reporter) (*Executor, error) {
	if chain == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("executor needs a chain gateway"))
	}
	if cfg.BaseAsset == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("executor needs a base asset"))
	}

	e := &Executor{
		log:      log,
		chain:    chain,
		config:   cfg,
		journal:  journal,
		reporter: reporter,
		tracer:   otel.Tracer(tracerName),
	}
	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return e, nil
}

func (e *Executor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &executorMetrics{}

	e.metrics.plans, err = meter.Int64Counter(
		"arbitrage_plans_total",
		metric.WithDescription("Executed plans by terminal state"),
	)
	if err != nil {
		return err
	}

	e.metrics.profit, err = meter.Float64Histogram(
		"arbitrage_plan_profit_base",
		metric.WithDescription("Expected net profit of completed plans, in base units"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Apply implements keeper/app.Actuator.
func (e *Executor) Apply(ctx context.Context, action keeperDomain.Action) error {
	exec, ok := action.(*domain.ExecutePlan)
	if !ok {
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage(fmt.Sprintf("arbitrage actuator cannot apply %s actions", action.Kind())),
			apperror.WithContext("arbitrage"))
	}
	return e.Execute(ctx, exec.Plan)
}

// Execute runs one plan to a terminal state.
func (e *Executor) Execute(ctx context.Context, plan *domain.Plan) error {
	ctx, span := e.tracer.Start(ctx, "arbitrage.execute_plan",
		trace.WithAttributes(
			attribute.String("plan_id", plan.ID),
			attribute.String("mode", string(plan.Mode)),
			attribute.String("path", plan.Quote.Path.String()),
		),
	)
	defer span.End()
	defer e.finish(ctx, plan)

	if e.reporter != nil {
		e.reporter.ReportPlan(plan)
	}

	fresh, live, err := e.refreshQuote(ctx, plan)
	if err != nil {
		reason := fmt.Sprintf("re-validation read failed: %v", err)
		if abortErr := plan.Abort(reason); abortErr != nil {
			return abortErr
		}
		return err
	}
	if !live {
		return e.abort(ctx, plan, "an edge of the path is gone from the book")
	}
	if !fresh.Profitable(e.config.MinProfit) {
		return e.abort(ctx, plan, fmt.Sprintf(
			"fresh quote %s %s no longer clears the threshold",
			fresh.NetProfit, e.config.BaseAsset.Symbol()))
	}

	if err := plan.Begin(); err != nil {
		return err
	}
	e.log.Info(ctx, "executing plan",
		"plan_id", plan.ID,
		"mode", plan.Mode,
		"path", plan.Quote.Path.String(),
		"fresh_profit", fresh.NetProfit)

	switch plan.Mode {
	case domain.ModeAtomic:
		return e.runAtomic(ctx, plan)
	default:
		return e.runSequential(ctx, plan)
	}
}

// abort moves a planned plan to aborted. Aborts are outcomes, not
// errors; the cycle goes on.
func (e *Executor) abort(ctx context.Context, plan *domain.Plan, reason string) error {
	if err := plan.Abort(reason); err != nil {
		return err
	}
	e.log.Info(ctx, "plan aborted before submission",
		"plan_id", plan.ID,
		"reason", reason)
	return nil
}

// refreshQuote re-reads every edge of the plan's path and re-quotes it
// against the current balance. The second return is false when an order
// on the path has left the book.
func (e *Executor) refreshQuote(ctx context.Context, plan *domain.Plan) (domain.Quote, bool, error) {
	edges := make([]domain.Edge, len(plan.Steps))
	for i, step := range plan.Steps {
		prev := step.Edge
		switch prev.Kind {
		case domain.EdgeTrade:
			order, live, err := e.chain.Order(ctx, prev.OrderID)
			if err != nil {
				return domain.Quote{}, false, apperror.Wrap(err, apperror.CodeChainRead, "arbitrage")
			}
			if !live {
				return domain.Quote{}, false, nil
			}
			edge, ok := domain.TradeEdge(order)
			if !ok {
				return domain.Quote{}, false, nil
			}
			edges[i] = edge

		case domain.EdgeMint:
			rate, capacity, err := e.poolTerms(ctx, e.chain.MintRate, e.chain.MintCapacity)
			if err != nil {
				return domain.Quote{}, false, err
			}
			edge, ok := domain.MintEdge(prev.Source, prev.Target, rate, capacity)
			if !ok {
				return domain.Quote{}, false, nil
			}
			edges[i] = edge

		case domain.EdgeRedeem:
			rate, capacity, err := e.poolTerms(ctx, e.chain.RedeemRate, e.chain.RedeemCapacity)
			if err != nil {
				return domain.Quote{}, false, err
			}
			edge, ok := domain.RedeemEdge(prev.Source, prev.Target, rate, capacity)
			if !ok {
				return domain.Quote{}, false, nil
			}
			edges[i] = edge
		}
	}

	balance, err := e.chain.Balance(ctx, e.config.BaseAsset, e.config.Account)
	if err != nil {
		return domain.Quote{}, false, apperror.Wrap(err, apperror.CodeChainRead, "arbitrage")
	}
	entry := balance.ToDecimal()
	if e.config.MaxEngagement.LessThan(entry) {
		entry = e.config.MaxEngagement
	}

	// The original gas estimate stands; only rates, capacities and the
	// balance are volatile enough to re-read here.
	quote := domain.EvaluatePath(domain.Path{Edges: edges}, entry, plan.Quote.Gas)
	return quote, true, nil
}

func (e *Executor) poolTerms(
	ctx context.Context,
	rateFn func(context.Context) (decimal.Decimal, error),
	capacityFn func(context.Context) (asset.Amount, error),
) (decimal.Decimal, decimal.Decimal, error) {
	rate, err := rateFn(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, apperror.Wrap(err, apperror.CodeChainRead, "arbitrage")
	}
	capacity, err := capacityFn(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, apperror.Wrap(err, apperror.CodeChainRead, "arbitrage")
	}
	return rate, capacity.ToDecimal(), nil
}

// runSequential submits the steps one at a time, waiting for each
// confirmation before the next submission. The first revert or timeout
// fails the plan; steps after it never reach the chain.
func (e *Executor) runSequential(ctx context.Context, plan *domain.Plan) error {
	for i := range plan.Steps {
		handle, err := e.submitStep(ctx, plan, i)
		if err != nil {
			failPlan(plan, fmt.Sprintf("step %d submission failed: %v", i, err))
			return err
		}
		if err := plan.MarkSubmitted(i, handle.Hash); err != nil {
			return err
		}
		e.log.Info(ctx, "step submitted",
			"plan_id", plan.ID,
			"step", i,
			"tx", handle.Hash.Hex())

		result, err := e.chain.WaitForReceipt(ctx, handle)
		if err != nil {
			failPlan(plan, fmt.Sprintf("step %d confirmation interrupted: %v", i, err))
			return err
		}

		switch result.Outcome {
		case chainDomain.ConfirmationSuccess:
			if err := plan.MarkConfirmed(i); err != nil {
				return err
			}

		case chainDomain.ConfirmationRevert:
			if err := plan.MarkReverted(i); err != nil {
				return err
			}
			failPlan(plan, fmt.Sprintf("step %d reverted in tx %s", i, handle.Hash.Hex()))
			return apperror.New(apperror.CodeTxRevert,
				apperror.WithMessage(fmt.Sprintf("plan %s: step %d reverted", plan.ID, i)),
				apperror.WithContext("arbitrage"))

		case chainDomain.ConfirmationTimeout:
			if err := plan.MarkTimedOut(i); err != nil {
				return err
			}
			failPlan(plan, fmt.Sprintf("step %d unconfirmed after %s", i, result.Elapsed))
			return apperror.New(apperror.CodeConfirmationTimeout,
				apperror.WithMessage(fmt.Sprintf("plan %s: step %d confirmation timed out", plan.ID, i)),
				apperror.WithContext("arbitrage"))
		}
	}

	return e.complete(ctx, plan)
}

// runAtomic packs every step into one batch transaction. Either the
// whole path executes or nothing does; a revert costs only gas.
func (e *Executor) runAtomic(ctx context.Context, plan *domain.Plan) error {
	calls := make([]chainDomain.Call, len(plan.Steps))
	for i := range plan.Steps {
		call, err := e.packStep(plan.Steps[i])
		if err != nil {
			failPlan(plan, fmt.Sprintf("packing step %d failed: %v", i, err))
			return err
		}
		calls[i] = call
	}

	handle, err := e.chain.ExecuteBatch(ctx, calls)
	if err != nil {
		failPlan(plan, fmt.Sprintf("batch submission failed: %v", err))
		return err
	}
	for i := range plan.Steps {
		if err := plan.MarkSubmitted(i, handle.Hash); err != nil {
			return err
		}
	}
	e.log.Info(ctx, "batch submitted",
		"plan_id", plan.ID,
		"steps", len(plan.Steps),
		"tx", handle.Hash.Hex())

	result, err := e.chain.WaitForReceipt(ctx, handle)
	if err != nil {
		failPlan(plan, fmt.Sprintf("batch confirmation interrupted: %v", err))
		return err
	}

	switch result.Outcome {
	case chainDomain.ConfirmationSuccess:
		for i := range plan.Steps {
			if err := plan.MarkConfirmed(i); err != nil {
				return err
			}
		}
		return e.complete(ctx, plan)

	case chainDomain.ConfirmationRevert:
		for i := range plan.Steps {
			if err := plan.MarkReverted(i); err != nil {
				return err
			}
		}
		failPlan(plan, fmt.Sprintf("batch reverted in tx %s", handle.Hash.Hex()))
		return apperror.New(apperror.CodeTxRevert,
			apperror.WithMessage(fmt.Sprintf("plan %s: batch reverted", plan.ID)),
			apperror.WithContext("arbitrage"))

	default:
		for i := range plan.Steps {
			if err := plan.MarkTimedOut(i); err != nil {
				return err
			}
		}
		failPlan(plan, fmt.Sprintf("batch unconfirmed after %s", result.Elapsed))
		return apperror.New(apperror.CodeConfirmationTimeout,
			apperror.WithMessage(fmt.Sprintf("plan %s: batch confirmation timed out", plan.ID)),
			apperror.WithContext("arbitrage"))
	}
}

// submitStep sends one step's transaction.
func (e *Executor) submitStep(ctx context.Context, plan *domain.Plan, i int) (chainDomain.TxHandle, error) {
	step := plan.Steps[i]
	switch step.Edge.Kind {
	case domain.EdgeTrade:
		fill, err := toAmount(step.Edge.Target, step.Target)
		if err != nil {
			return chainDomain.TxHandle{}, err
		}
		return e.chain.TakeOrder(ctx, step.Edge.OrderID, fill)

	case domain.EdgeMint:
		pay, err := toAmount(step.Edge.Source, step.Source)
		if err != nil {
			return chainDomain.TxHandle{}, err
		}
		return e.chain.Mint(ctx, pay)

	case domain.EdgeRedeem:
		pay, err := toAmount(step.Edge.Source, step.Source)
		if err != nil {
			return chainDomain.TxHandle{}, err
		}
		return e.chain.Redeem(ctx, pay)

	default:
		return chainDomain.TxHandle{}, apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage(fmt.Sprintf("unknown edge kind %q", step.Edge.Kind)),
			apperror.WithContext("arbitrage"))
	}
}

// packStep encodes one step as a raw call for the batch executor.
func (e *Executor) packStep(step domain.PlanStep) (chainDomain.Call, error) {
	switch step.Edge.Kind {
	case domain.EdgeTrade:
		fill, err := toAmount(step.Edge.Target, step.Target)
		if err != nil {
			return chainDomain.Call{}, err
		}
		return e.chain.PackTake(step.Edge.OrderID, fill)

	case domain.EdgeMint:
		pay, err := toAmount(step.Edge.Source, step.Source)
		if err != nil {
			return chainDomain.Call{}, err
		}
		return e.chain.PackMint(pay)

	case domain.EdgeRedeem:
		pay, err := toAmount(step.Edge.Source, step.Source)
		if err != nil {
			return chainDomain.Call{}, err
		}
		return e.chain.PackRedeem(pay)

	default:
		return chainDomain.Call{}, apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage(fmt.Sprintf("unknown edge kind %q", step.Edge.Kind)),
			apperror.WithContext("arbitrage"))
	}
}

func (e *Executor) complete(ctx context.Context, plan *domain.Plan) error {
	if err := plan.Complete(); err != nil {
		return err
	}
	e.log.Info(ctx, "plan completed",
		"plan_id", plan.ID,
		"path", plan.Quote.Path.String(),
		"net_profit", plan.Quote.NetProfit)
	return nil
}

// finish reports and journals plans that reached a terminal state.
func (e *Executor) finish(ctx context.Context, plan *domain.Plan) {
	if !plan.State.Terminal() {
		return
	}
	e.metrics.plans.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", string(plan.State))))
	if plan.State == domain.PlanCompleted {
		e.metrics.profit.Record(ctx, plan.Quote.NetProfit.InexactFloat64())
	}
	if e.reporter != nil {
		e.reporter.ReportOutcome(plan)
	}
	if e.journal != nil {
		e.journal.Record(ctx, plan)
	}
}

// failPlan is a best-effort Fail: by the time it runs the plan is
// executing, so the transition cannot be refused.
func failPlan(plan *domain.Plan, reason string) {
	_ = plan.Fail(reason)
}

// toAmount converts a step quantity into an on-chain amount, truncating
// quote dust below the asset's precision.
func toAmount(a *asset.Asset, d decimal.Decimal) (asset.Amount, error) {
	amount, err := asset.ParseDecimal(a, d.Truncate(int32(a.Decimals())))
	if err != nil {
		return asset.Amount{}, apperror.Wrap(err, apperror.CodeInvalidState, "arbitrage")
	}
	if !amount.IsPositive() {
		return asset.Amount{}, apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage(fmt.Sprintf("step amount %s %s rounds to zero", d, a.Symbol())),
			apperror.WithContext("arbitrage"))
	}
	return amount, nil
}
