package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/logger"
)

const (
	tracerName = "github.com/dexkeep/keeperbot/business/keeper/app"
	meterName  = "github.com/dexkeep/keeperbot/business/keeper/app"

	// DefaultMaxErrors is the consecutive-failure budget applied when
	// the configuration leaves it unset.
	DefaultMaxErrors = 5
)

// DriverConfig holds the loop cadence and the transient error budget.
type DriverConfig struct {
	Interval  time.Duration
	MaxErrors int
}

type driverMetrics struct {
	cycles   metric.Int64Counter
	actions  metric.Int64Counter
	duration metric.Float64Histogram
}

// Driver is the single-threaded strategy loop: acquire a snapshot, run
// one strategy pass, apply the actions, sleep, repeat. Transient
// failures abort the cycle and the next poll is the retry; persistent
// or fatal failures propagate out of Run so the process exits non-zero
// and the supervisor restarts it clean.
type Driver struct {
	log       logger.LoggerInterface
	source    SnapshotSource
	strategy  Strategy
	actuator  Actuator
	cfg       DriverConfig
	tracer    trace.Tracer
	metrics   driverMetrics
	lastCycle atomic.Int64 // unix nanos of the last finished cycle
}

// NewDriver wires a strategy to its snapshot source and actuator.
func NewDriver(log logger.LoggerInterface, source SnapshotSource, strategy Strategy, actuator Actuator, cfg DriverConfig) (*Driver, error) {
	if source == nil || strategy == nil || actuator == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("driver needs a snapshot source, a strategy and an actuator"))
	}
	if cfg.Interval <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("driver needs a positive poll interval"))
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = DefaultMaxErrors
	}

	d := &Driver{
		log:      log,
		source:   source,
		strategy: strategy,
		actuator: actuator,
		cfg:      cfg,
		tracer:   otel.Tracer(tracerName),
	}
	if err := d.initMetrics(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) initMetrics() error {
	meter := otel.Meter(meterName)

	var err error
	d.metrics.cycles, err = meter.Int64Counter("keeper_cycles_total",
		metric.WithDescription("Strategy cycles run"))
	if err != nil {
		return err
	}
	d.metrics.actions, err = meter.Int64Counter("keeper_actions_total",
		metric.WithDescription("Actions applied"))
	if err != nil {
		return err
	}
	d.metrics.duration, err = meter.Float64Histogram("keeper_cycle_seconds",
		metric.WithDescription("Cycle wall time in seconds"))
	if err != nil {
		return err
	}
	return nil
}

// Run loops until the context is cancelled (returns nil) or an error
// exhausts the transient budget or is fatal outright (returns it).
func (d *Driver) Run(ctx context.Context) error {
	d.log.Info(ctx, "strategy loop started",
		"strategy", d.strategy.Name(),
		"interval", d.cfg.Interval,
		"max_errors", d.cfg.MaxErrors)

	timer := time.NewTimer(d.cfg.Interval)
	defer timer.Stop()

	consecutive := 0
	for {
		err := d.cycle(ctx)
		d.lastCycle.Store(time.Now().UnixNano())
		switch {
		case err == nil:
			consecutive = 0

		case ctx.Err() != nil:
			// Cancellation mid-cycle is a shutdown, not a failure.
			d.log.Info(ctx, "strategy loop stopping", "strategy", d.strategy.Name())
			return nil

		case apperror.IsFatal(err):
			attrs := append([]any{"strategy", d.strategy.Name()}, apperror.LogAttrs(err)...)
			d.log.Error(ctx, "fatal error, stopping", attrs...)
			return err

		default:
			consecutive++
			attrs := append([]any{
				"strategy", d.strategy.Name(),
				"consecutive", consecutive,
				"budget", d.cfg.MaxErrors,
			}, apperror.LogAttrs(err)...)
			d.log.Error(ctx, "cycle failed", attrs...)
			if consecutive >= d.cfg.MaxErrors {
				d.log.Error(ctx, "error budget exhausted, stopping", "strategy", d.strategy.Name())
				return err
			}
		}

		timer.Reset(d.cfg.Interval)
		select {
		case <-ctx.Done():
			d.log.Info(ctx, "strategy loop stopping", "strategy", d.strategy.Name())
			return nil
		case <-timer.C:
		}
	}
}

func (d *Driver) cycle(ctx context.Context) error {
	ctx, span := d.tracer.Start(ctx, "keeper.cycle",
		trace.WithAttributes(attribute.String("strategy", d.strategy.Name())))
	defer span.End()

	start := time.Now()

	snap, err := d.source.Acquire(ctx)
	if err != nil {
		d.countCycle(ctx, "snapshot_failed")
		return err
	}

	actions, err := d.strategy.OnSnapshot(ctx, snap)
	if err != nil {
		d.countCycle(ctx, "strategy_failed")
		return err
	}

	for _, action := range actions {
		d.log.Info(ctx, "applying action", "action", action.Describe())
		if err := d.actuator.Apply(ctx, action); err != nil {
			// The rest of this cycle's actions are stale the moment one
			// fails; the next snapshot re-derives everything.
			d.countCycle(ctx, "apply_failed")
			return err
		}
		d.metrics.actions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("strategy", d.strategy.Name()),
			attribute.String("kind", string(action.Kind())),
		))
	}

	d.countCycle(ctx, "ok")
	d.metrics.duration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("strategy", d.strategy.Name())))
	d.log.Debug(ctx, "cycle complete",
		"strategy", d.strategy.Name(),
		"block", snap.BlockNumber,
		"actions", len(actions),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// LastCycle returns when the loop last finished a cycle, successful or
// not. Zero before the first cycle. Health checks read it.
func (d *Driver) LastCycle() time.Time {
	nanos := d.lastCycle.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Interval returns the configured poll cadence.
func (d *Driver) Interval() time.Duration {
	return d.cfg.Interval
}

func (d *Driver) countCycle(ctx context.Context, outcome string) {
	d.metrics.cycles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", d.strategy.Name()),
		attribute.String("outcome", outcome),
	))
}
