package app

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dexkeep/keeperbot/internal/apperror"
)

func makeTopUpStrategy(t *testing.T, log *stubLogger) *TopUpStrategy {
	t.Helper()
	s, err := NewTopUpStrategy(log, TopUpConfig{
		Account:      keeperAddr,
		MinMargin:    decimal.RequireFromString("0.1"),
		TargetMargin: decimal.RequireFromString("0.2"),
	})
	if err != nil {
		t.Fatalf("NewTopUpStrategy: %v", err)
	}
	return s
}

func TestTopUpStrategy_LocksToTargetRatio(t *testing.T) {
	strategy := makeTopUpStrategy(t, &stubLogger{})

	// Own cup at ratio 15*100/1000 = 1.5, below the 1.6 minimum.
	// Reaching the 1.7 target takes 1000*(1.7-1.5)/100 = 2 WETH.
	snap := makeVaultSnapshot(t, "10",
		makeCup(t, 1, keeperAddr, "15", "1000", true),
	)

	actions, err := strategy.OnSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("OnSnapshot: %v", err)
	}

	if len(actions) != 1 {
		t.Fatalf("actions = %d, want one top-up", len(actions))
	}
	topUp, ok := actions[0].(*TopUpCup)
	if !ok || topUp.CupID != 1 {
		t.Fatalf("actions[0] = %#v, want top-up of cup 1", actions[0])
	}
	if !topUp.Amount.ToDecimal().Equal(decimal.RequireFromString("2")) {
		t.Errorf("amount = %s, want 2 WETH", topUp.Amount.ToDecimal())
	}
}

func TestTopUpStrategy_LeavesHealthyCupsAlone(t *testing.T) {
	strategy := makeTopUpStrategy(t, &stubLogger{})

	// Ratio 20*100/1000 = 2.0, comfortably above the 1.6 minimum.
	snap := makeVaultSnapshot(t, "10",
		makeCup(t, 1, keeperAddr, "20", "1000", true),
	)

	actions, err := strategy.OnSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("OnSnapshot: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("actions = %v, want none", actions)
	}
}

func TestTopUpStrategy_IgnoresForeignAndDebtlessCups(t *testing.T) {
	strategy := makeTopUpStrategy(t, &stubLogger{})

	snap := makeVaultSnapshot(t, "10",
		makeCup(t, 1, otherAddr, "15", "1000", true), // not ours
		makeCup(t, 2, keeperAddr, "15", "0", true),   // no debt, ratio undefined
	)

	actions, err := strategy.OnSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("OnSnapshot: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("actions = %v, want none", actions)
	}
}

func TestTopUpStrategy_SkipsWhenBalanceShort(t *testing.T) {
	log := &stubLogger{}
	strategy := makeTopUpStrategy(t, log)

	// The cup needs 2 WETH but the wallet holds 1: no partial lock.
	snap := makeVaultSnapshot(t, "1",
		makeCup(t, 1, keeperAddr, "15", "1000", true),
	)

	actions, err := strategy.OnSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("OnSnapshot: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("actions = %v, want none", actions)
	}
	if log.warns != 1 {
		t.Errorf("warns = %d, want one skip warning", log.warns)
	}
}

func TestTopUpStrategy_BudgetSpansCups(t *testing.T) {
	log := &stubLogger{}
	strategy := makeTopUpStrategy(t, log)

	// Two own cups need 2 WETH each; the wallet holds 3, so only the
	// first is topped up and the second is skipped.
	snap := makeVaultSnapshot(t, "3",
		makeCup(t, 1, keeperAddr, "15", "1000", true),
		makeCup(t, 2, keeperAddr, "15", "1000", true),
	)

	actions, err := strategy.OnSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("OnSnapshot: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("actions = %d, want just the first top-up", len(actions))
	}
	topUp := actions[0].(*TopUpCup)
	if topUp.CupID != 1 {
		t.Errorf("topped up cup %d, want cup 1", topUp.CupID)
	}
	if log.warns != 1 {
		t.Errorf("warns = %d, want one skip warning", log.warns)
	}
}

func TestTopUpStrategy_MissingVaultParameters(t *testing.T) {
	strategy := makeTopUpStrategy(t, &stubLogger{})

	snap := makeVaultSnapshot(t, "10", makeCup(t, 1, keeperAddr, "15", "1000", true))
	snap.CollateralPrice = decimal.Zero

	_, err := strategy.OnSnapshot(context.Background(), snap)
	if apperror.GetCode(err) != apperror.CodeChainRead {
		t.Fatalf("error = %v, want CHAIN_READ_ERROR", err)
	}
}

func TestNewTopUpStrategy_Validation(t *testing.T) {
	_, err := NewTopUpStrategy(&stubLogger{}, TopUpConfig{
		Account:      keeperAddr,
		MinMargin:    decimal.RequireFromString("0.3"),
		TargetMargin: decimal.RequireFromString("0.2"),
	})
	if apperror.GetCode(err) != apperror.CodeConfigurationError {
		t.Fatalf("error = %v, want CONFIGURATION_ERROR", err)
	}
}
