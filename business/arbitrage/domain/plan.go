package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dexkeep/keeperbot/internal/apperror"
)

// ExecutionMode selects how a plan's steps reach the chain.
type ExecutionMode string

const (
	// ModeSequential submits steps one at a time, waiting for each
	// confirmation. A failure mid-plan leaves earlier fills in place.
	ModeSequential ExecutionMode = "sequential"

	// ModeAtomic submits all steps as one batch transaction that either
	// fully executes or fully reverts.
	ModeAtomic ExecutionMode = "atomic"
)

// ParseExecutionMode parses a configured mode string.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(s) {
	case ModeSequential:
		return ModeSequential, nil
	case ModeAtomic:
		return ModeAtomic, nil
	default:
		return "", apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage(fmt.Sprintf("unknown execution mode %q", s)),
			apperror.WithContext("arbitrage"))
	}
}

// PlanState is the lifecycle state of an execution plan.
type PlanState string

const (
	PlanPlanned   PlanState = "planned"
	PlanExecuting PlanState = "executing"
	PlanCompleted PlanState = "completed"
	PlanFailed    PlanState = "failed"
	PlanAborted   PlanState = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s PlanState) Terminal() bool {
	return s == PlanCompleted || s == PlanFailed || s == PlanAborted
}

// StepStatus is the lifecycle state of one plan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSubmitted StepStatus = "submitted"
	StepConfirmed StepStatus = "confirmed"
	StepReverted  StepStatus = "reverted"
	StepTimedOut  StepStatus = "timed_out"
	StepSkipped   StepStatus = "skipped"
)

// PlanStep is one conversion of a plan and its submission outcome.
type PlanStep struct {
	Index       int
	Edge        Edge
	Source      decimal.Decimal
	Target      decimal.Decimal
	Status      StepStatus
	TxHash      common.Hash
	SubmittedAt time.Time
}

// Plan is a quote committed to execution. Transition methods enforce the
// lifecycle: planned -> executing -> completed or failed, with an abort
// path out of planned only. Once a step has been submitted the plan can
// no longer abort.
type Plan struct {
	ID            string
	Mode          ExecutionMode
	Quote         Quote
	State         PlanState
	Steps         []PlanStep
	CreatedAt     time.Time
	FinishedAt    time.Time
	FailureReason string
}

// NewPlan commits a quote to execution in the given mode.
func NewPlan(quote Quote, mode ExecutionMode) *Plan {
	steps := make([]PlanStep, len(quote.Steps))
	for i, s := range quote.Steps {
		steps[i] = PlanStep{
			Index:  i,
			Edge:   s.Edge,
			Source: s.Source,
			Target: s.Target,
			Status: StepPending,
		}
	}

	return &Plan{
		ID:        uuid.NewString(),
		Mode:      mode,
		Quote:     quote,
		State:     PlanPlanned,
		Steps:     steps,
		CreatedAt: time.Now(),
	}
}

func (p *Plan) invalidTransition(action string) error {
	return apperror.New(apperror.CodeInvalidState,
		apperror.WithMessage(fmt.Sprintf("cannot %s plan %s in state %s", action, p.ID, p.State)),
		apperror.WithContext("arbitrage"))
}

// Begin moves the plan to executing. Valid only from planned.
func (p *Plan) Begin() error {
	if p.State != PlanPlanned {
		return p.invalidTransition("begin")
	}
	p.State = PlanExecuting
	return nil
}

// Abort cancels the plan before anything reaches the chain. Valid only
// from planned; every step is marked skipped.
func (p *Plan) Abort(reason string) error {
	if p.State != PlanPlanned {
		return p.invalidTransition("abort")
	}
	p.State = PlanAborted
	p.FailureReason = reason
	p.FinishedAt = time.Now()
	for i := range p.Steps {
		p.Steps[i].Status = StepSkipped
	}
	return nil
}

// MarkSubmitted records that step i went out as tx hash.
func (p *Plan) MarkSubmitted(i int, hash common.Hash) error {
	if p.State != PlanExecuting {
		return p.invalidTransition("submit step of")
	}
	step, err := p.step(i)
	if err != nil {
		return err
	}
	if step.Status != StepPending {
		return p.invalidStep(i, "submit")
	}
	step.Status = StepSubmitted
	step.TxHash = hash
	step.SubmittedAt = time.Now()
	return nil
}

// MarkConfirmed records that step i's transaction was mined successfully.
func (p *Plan) MarkConfirmed(i int) error {
	return p.settleStep(i, StepConfirmed)
}

// MarkReverted records that step i's transaction reverted.
func (p *Plan) MarkReverted(i int) error {
	return p.settleStep(i, StepReverted)
}

// MarkTimedOut records that step i's confirmation wait ran out.
func (p *Plan) MarkTimedOut(i int) error {
	return p.settleStep(i, StepTimedOut)
}

func (p *Plan) settleStep(i int, status StepStatus) error {
	if p.State != PlanExecuting {
		return p.invalidTransition("settle step of")
	}
	step, err := p.step(i)
	if err != nil {
		return err
	}
	if step.Status != StepSubmitted {
		return p.invalidStep(i, "settle")
	}
	step.Status = status
	return nil
}

// Complete finishes the plan. Valid only from executing with every step
// confirmed.
func (p *Plan) Complete() error {
	if p.State != PlanExecuting {
		return p.invalidTransition("complete")
	}
	for _, s := range p.Steps {
		if s.Status != StepConfirmed {
			return apperror.New(apperror.CodeInvalidState,
				apperror.WithMessage(fmt.Sprintf("cannot complete plan %s: step %d is %s", p.ID, s.Index, s.Status)),
				apperror.WithContext("arbitrage"))
		}
	}
	p.State = PlanCompleted
	p.FinishedAt = time.Now()
	return nil
}

// Fail finishes the plan after an on-chain failure. Steps never submitted
// are marked skipped; settled steps keep their outcome.
func (p *Plan) Fail(reason string) error {
	if p.State != PlanExecuting {
		return p.invalidTransition("fail")
	}
	p.State = PlanFailed
	p.FailureReason = reason
	p.FinishedAt = time.Now()
	for i := range p.Steps {
		if p.Steps[i].Status == StepPending {
			p.Steps[i].Status = StepSkipped
		}
	}
	return nil
}

// SubmittedCount returns how many steps reached the chain.
func (p *Plan) SubmittedCount() int {
	n := 0
	for _, s := range p.Steps {
		switch s.Status {
		case StepSubmitted, StepConfirmed, StepReverted, StepTimedOut:
			n++
		}
	}
	return n
}

func (p *Plan) step(i int) (*PlanStep, error) {
	if i < 0 || i >= len(p.Steps) {
		return nil, apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage(fmt.Sprintf("plan %s has no step %d", p.ID, i)),
			apperror.WithContext("arbitrage"))
	}
	return &p.Steps[i], nil
}

func (p *Plan) invalidStep(i int, action string) error {
	return apperror.New(apperror.CodeInvalidState,
		apperror.WithMessage(fmt.Sprintf("cannot %s step %d of plan %s in status %s", action, i, p.ID, p.Steps[i].Status)),
		apperror.WithContext("arbitrage"))
}
