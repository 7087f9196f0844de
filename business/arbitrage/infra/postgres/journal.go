package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexkeep/keeperbot/business/arbitrage/app"
	"github.com/dexkeep/keeperbot/business/arbitrage/domain"
	"github.com/dexkeep/keeperbot/internal/logger"
)

const (
	insertPlanSQL = `
		INSERT INTO arbitrage_plans
			(id, mode, state, path, base_asset, input_amount, output_amount,
			 gas_base, net_profit, failure_reason, created_at, finished_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`

	insertStepSQL = `
		INSERT INTO arbitrage_plan_steps
			(plan_id, step_index, kind, source_asset, target_asset, order_id,
			 source_amount, target_amount, status, tx_hash, submitted_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`
)

// JournalConfig tunes the write-behind queue.
type JournalConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// DefaultJournalConfig returns the settings used by the keeper binaries.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		QueueSize:    64,
		WriteTimeout: 10 * time.Second,
	}
}

// Journal persists terminal plans to PostgreSQL. Writes happen on a
// background goroutine so Record never blocks the execution path; when
// the queue is full the plan is dropped with a warning.
type Journal struct {
	log    logger.LoggerInterface
	client *Client
	queue  chan *domain.Plan
	done   chan struct{}
	once   sync.Once
}

var _ app.Journal = (*Journal)(nil)

// NewJournal starts the background writer on top of an open client.
func NewJournal(log logger.LoggerInterface, client *Client, cfg JournalConfig) *Journal {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultJournalConfig().QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultJournalConfig().WriteTimeout
	}

	j := &Journal{
		log:    log,
		client: client,
		queue:  make(chan *domain.Plan, cfg.QueueSize),
		done:   make(chan struct{}),
	}

	go j.run(cfg.WriteTimeout)

	return j
}

// Record queues a terminal plan for persistence.
func (j *Journal) Record(ctx context.Context, plan *domain.Plan) {
	select {
	case j.queue <- plan:
	default:
		j.log.Warn(ctx, "journal queue full, dropping plan", "plan", plan.ID, "state", plan.State)
	}
}

// Close drains the queue, stops the writer and closes the pool.
func (j *Journal) Close() {
	j.once.Do(func() {
		close(j.queue)
		<-j.done
		j.client.Close()
	})
}

func (j *Journal) run(writeTimeout time.Duration) {
	defer close(j.done)

	for plan := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := j.write(ctx, plan); err != nil {
			j.log.Error(ctx, "journal write failed", "plan", plan.ID, "error", err)
		}
		cancel()
	}
}

func (j *Journal) write(ctx context.Context, plan *domain.Plan) error {
	tx, err := j.client.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertPlanSQL,
		plan.ID,
		string(plan.Mode),
		string(plan.State),
		plan.Quote.Path.Key(),
		plan.Quote.Path.Start().Symbol(),
		plan.Quote.Input.String(),
		plan.Quote.Output.String(),
		plan.Quote.Gas.Base.String(),
		plan.Quote.NetProfit.String(),
		nullIfEmpty(plan.FailureReason),
		plan.CreatedAt,
		nullIfZeroTime(plan.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert plan %s: %w", plan.ID, err)
	}

	for _, step := range plan.Steps {
		_, err = tx.Exec(ctx, insertStepSQL,
			plan.ID,
			step.Index,
			string(step.Edge.Kind),
			step.Edge.Source.Symbol(),
			step.Edge.Target.Symbol(),
			orderIDOrNil(step.Edge),
			step.Source.String(),
			step.Target.String(),
			string(step.Status),
			nullIfZeroHash(step.TxHash),
			nullIfZeroTime(step.SubmittedAt),
		)
		if err != nil {
			return fmt.Errorf("postgres: insert step %d of plan %s: %w", step.Index, plan.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit plan %s: %w", plan.ID, err)
	}

	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullIfZeroHash(h common.Hash) any {
	if h == (common.Hash{}) {
		return nil
	}
	return h.Hex()
}

func orderIDOrNil(e domain.Edge) any {
	if e.Kind != domain.EdgeTrade {
		return nil
	}
	return int64(e.OrderID)
}
