package domain

import (
	"math/big"
	"testing"
	"time"
)

func TestNodeGas_AlwaysDefersToNode(t *testing.T) {
	strategy := NodeGas{}

	for _, elapsed := range []time.Duration{0, time.Second, time.Hour} {
		if got := strategy.Price(elapsed); got != nil {
			t.Errorf("Price(%s) = %s, want nil", elapsed, got)
		}
	}
}

func TestFixedGas_IgnoresElapsedTime(t *testing.T) {
	strategy := NewFixedGas(9_000_000_000)

	for _, elapsed := range []time.Duration{0, 30 * time.Second, 2 * time.Hour} {
		got := strategy.Price(elapsed)
		if got.Cmp(big.NewInt(9_000_000_000)) != 0 {
			t.Errorf("Price(%s) = %s, want 9000000000", elapsed, got)
		}
	}
}

func TestFixedGas_ReturnsCopy(t *testing.T) {
	strategy := NewFixedGas(1000)

	price := strategy.Price(0)
	price.SetInt64(5)

	if strategy.Price(0).Cmp(big.NewInt(1000)) != 0 {
		t.Error("mutating the returned price changed the strategy")
	}
}

func TestIncreasingGas_StepsUpEveryInterval(t *testing.T) {
	// Start at 1000 wei, add 100 wei every 60 seconds.
	strategy := NewIncreasingGas(1000, 100, 60*time.Second)

	tests := []struct {
		elapsed time.Duration
		want    int64
	}{
		{0, 1000},
		{1 * time.Second, 1000},
		{59 * time.Second, 1000},
		{60 * time.Second, 1100},
		{119 * time.Second, 1100},
		{120 * time.Second, 1200},
		{1200 * time.Second, 3000},
	}

	for _, tt := range tests {
		got := strategy.Price(tt.elapsed)
		if got.Cmp(big.NewInt(tt.want)) != 0 {
			t.Errorf("Price(%s) = %s, want %d", tt.elapsed, got, tt.want)
		}
	}
}

func TestIncreasingGas_ZeroIntervalNeverEscalates(t *testing.T) {
	strategy := IncreasingGas{
		InitialWei:  big.NewInt(1000),
		IncreaseWei: big.NewInt(100),
		Every:       0,
	}

	if got := strategy.Price(time.Hour); got.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("Price(1h) = %s, want 1000", got)
	}
}

func TestCalculateGasEstimate(t *testing.T) {
	gasPrice := NewGasPrice(big.NewInt(25_000_000_000)) // 25 gwei

	estimate := CalculateGasEstimate(200_000, gasPrice)

	wantWei := new(big.Int).Mul(big.NewInt(200_000), big.NewInt(25_000_000_000))
	if estimate.TotalWei.Cmp(wantWei) != 0 {
		t.Errorf("TotalWei = %s, want %s", estimate.TotalWei, wantWei)
	}
	if estimate.GasLimit != 200_000 {
		t.Errorf("GasLimit = %d, want 200000", estimate.GasLimit)
	}
}
