package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexkeep/keeperbot/business/arbitrage/domain"
	"github.com/dexkeep/keeperbot/internal/asset"
)

type stubLogger struct {
	warns int
}

func (l *stubLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (l *stubLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (l *stubLogger) Warn(ctx context.Context, msg string, args ...any)  { l.warns++ }
func (l *stubLogger) Error(ctx context.Context, msg string, args ...any) {}

func TestJournal_RecordNeverBlocks(t *testing.T) {
	log := &stubLogger{}
	j := &Journal{
		log:   log,
		queue: make(chan *domain.Plan, 1),
		done:  make(chan struct{}),
	}

	// No writer is draining the queue, so the second record must hit
	// the full-queue path instead of blocking.
	j.Record(context.Background(), &domain.Plan{ID: "a", State: domain.PlanCompleted})

	finished := make(chan struct{})
	go func() {
		j.Record(context.Background(), &domain.Plan{ID: "b", State: domain.PlanFailed})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	if log.warns != 1 {
		t.Errorf("warns = %d, want 1 dropped-plan warning", log.warns)
	}
}

func TestNullMappings(t *testing.T) {
	if got := nullIfEmpty(""); got != nil {
		t.Errorf("nullIfEmpty(\"\") = %v, want nil", got)
	}
	if got := nullIfEmpty("reverted"); got != "reverted" {
		t.Errorf("nullIfEmpty(\"reverted\") = %v", got)
	}

	if got := nullIfZeroTime(time.Time{}); got != nil {
		t.Errorf("nullIfZeroTime(zero) = %v, want nil", got)
	}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if got := nullIfZeroTime(at); got != at {
		t.Errorf("nullIfZeroTime(%v) = %v", at, got)
	}

	if got := nullIfZeroHash(common.Hash{}); got != nil {
		t.Errorf("nullIfZeroHash(zero) = %v, want nil", got)
	}
	h := common.BigToHash(common.Big1)
	if got := nullIfZeroHash(h); got != h.Hex() {
		t.Errorf("nullIfZeroHash = %v, want %s", got, h.Hex())
	}

	trade := domain.Edge{Kind: domain.EdgeTrade, Source: asset.WETH, Target: asset.DAI, OrderID: 7}
	if got := orderIDOrNil(trade); got != int64(7) {
		t.Errorf("orderIDOrNil(trade) = %v, want 7", got)
	}
	mint := domain.Edge{Kind: domain.EdgeMint, Source: asset.WETH, Target: asset.DAI}
	if got := orderIDOrNil(mint); got != nil {
		t.Errorf("orderIDOrNil(mint) = %v, want nil", got)
	}
}
