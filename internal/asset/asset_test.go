package asset_test

import (
	"math/big"
	"testing"

	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/shopspring/decimal"
)

func wei(n string) *big.Int {
	v, ok := new(big.Int).SetString(n, 10)
	if !ok {
		panic("bad fixture: " + n)
	}
	return v
}

func TestAmountArithmetic(t *testing.T) {
	one := asset.NewAmount(asset.WETH, wei("1000000000000000000"))
	two := asset.NewAmount(asset.WETH, wei("2000000000000000000"))

	t.Run("add", func(t *testing.T) {
		sum, err := one.Add(two)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if !sum.ToDecimal().Equal(decimal.NewFromInt(3)) {
			t.Errorf("sum = %s, want 3", sum.ToDecimal())
		}
	})

	t.Run("sub", func(t *testing.T) {
		diff, err := two.Sub(one)
		if err != nil {
			t.Fatalf("Sub: %v", err)
		}
		if !diff.Equals(one) {
			t.Errorf("diff = %s, want %s", diff, one)
		}
	})

	t.Run("sub_underflow", func(t *testing.T) {
		if _, err := one.Sub(two); err == nil {
			t.Error("expected error subtracting below zero")
		}
	})

	t.Run("mixed_assets_rejected", func(t *testing.T) {
		usdc := asset.NewAmount(asset.USDC, big.NewInt(1_000_000))
		if _, err := one.Add(usdc); err == nil {
			t.Error("expected error adding WETH and USDC")
		}
	})

	t.Run("scale", func(t *testing.T) {
		tripled := one.Mul(3)
		if !tripled.ToDecimal().Equal(decimal.NewFromInt(3)) {
			t.Errorf("tripled = %s, want 3", tripled.ToDecimal())
		}
		// 3 / 2 truncates to 1.5 exactly at 18 decimals
		half, err := tripled.Div(2)
		if err != nil {
			t.Fatalf("Div: %v", err)
		}
		if half.Raw().Cmp(wei("1500000000000000000")) != 0 {
			t.Errorf("half = %s", half.Raw())
		}
		if _, err := tripled.Div(0); err == nil {
			t.Error("expected division-by-zero error")
		}
	})
}

func TestAmountFormatting(t *testing.T) {
	one := asset.NewAmount(asset.WETH, wei("1000000000000000000"))
	if one.String() != "1 WETH" {
		t.Errorf("String = %q, want %q", one.String(), "1 WETH")
	}
	if one.StringFixed(2) != "1.00 WETH" {
		t.Errorf("StringFixed = %q, want %q", one.StringFixed(2), "1.00 WETH")
	}
}

func TestParseDecimal(t *testing.T) {
	amt, err := asset.ParseString(asset.WETH, "1.5")
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	if amt.Raw().Cmp(wei("1500000000000000000")) != 0 {
		t.Errorf("raw = %s", amt.Raw())
	}

	// USDC carries 6 decimals; a 7th must be rejected, not rounded.
	if _, err := asset.ParseDecimal(asset.USDC, decimal.RequireFromString("1.1234567")); err == nil {
		t.Error("expected error for sub-unit precision")
	}

	if _, err := asset.ParseString(asset.DAI, "-1"); err == nil {
		t.Error("expected error for negative quantity")
	}
}

func TestPriceConvert(t *testing.T) {
	// 1 WETH at 245 DAI/WETH is 245 DAI.
	price := asset.NewPriceNow(asset.WETH, asset.DAI, decimal.NewFromInt(245))
	one := asset.NewAmount(asset.WETH, wei("1000000000000000000"))

	got, err := price.Convert(one)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !got.ToDecimal().Equal(decimal.NewFromInt(245)) {
		t.Errorf("converted = %s, want 245 DAI", got)
	}

	// Quote decimals bound the result: 0.0000015 WETH at 245 is
	// 0.0003675 DAI, which truncates to 0.000367 at USDC's 6 decimals.
	usdcPrice := asset.NewPriceNow(asset.WETH, asset.USDC, decimal.NewFromInt(245))
	dust := asset.NewAmount(asset.WETH, wei("1500000000000"))
	got, err = usdcPrice.Convert(dust)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got.Raw().Cmp(big.NewInt(367)) != 0 {
		t.Errorf("converted raw = %s, want 367", got.Raw())
	}

	if _, err := price.Convert(asset.NewAmount(asset.DAI, big.NewInt(1))); err == nil {
		t.Error("expected mismatch error converting a DAI amount")
	}
}

func TestPriceInvert(t *testing.T) {
	price := asset.NewPriceNow(asset.WETH, asset.DAI, decimal.NewFromInt(250))
	inv := price.Invert()

	if inv.Base() != asset.DAI || inv.Quote() != asset.WETH {
		t.Errorf("inverted pair = %s", inv.Pair())
	}
	if !inv.Rate().Equal(decimal.RequireFromString("0.004")) {
		t.Errorf("inverted rate = %s, want 0.004", inv.Rate())
	}
	if !inv.Timestamp().Equal(price.Timestamp()) {
		t.Error("inversion must keep the observation time")
	}
}

func TestAssetIDIdentity(t *testing.T) {
	a := asset.NewTokenAssetID(1, asset.AddrDAIEthereum)
	b := asset.NewTokenAssetID(1, asset.AddrDAIEthereum)
	if !a.Equals(b) {
		t.Error("same chain and address must compare equal")
	}

	// The same contract address on another chain is another asset.
	c := asset.NewTokenAssetID(11155111, asset.AddrDAIEthereum)
	if a.Equals(c) {
		t.Error("different chains must not compare equal")
	}

	native := asset.NewNativeAssetID(1)
	if !native.IsNative() || native.IsToken() {
		t.Error("zero address must read as native")
	}
	if native.String() != "chain:1/native" {
		t.Errorf("String = %q", native.String())
	}
}

func TestRegistryLookups(t *testing.T) {
	r := asset.DefaultRegistry()

	eth, ok := r.GetNative(asset.ChainIDEthereum)
	if !ok || eth.Symbol() != "ETH" {
		t.Fatalf("native lookup = %v, %v", eth, ok)
	}

	dai, ok := r.GetBySymbolAndChain("DAI", asset.ChainIDEthereum)
	if !ok || dai.Decimals() != 18 {
		t.Fatalf("symbol lookup = %v, %v", dai, ok)
	}
	if _, ok := r.GetBySymbolAndChain("DAI", asset.ChainIDSepolia); ok {
		t.Error("mainnet DAI must not resolve on Sepolia")
	}

	byAddr, ok := r.GetToken(asset.ChainIDEthereum, asset.AddrMKREthereum)
	if !ok || byAddr.Symbol() != "MKR" {
		t.Fatalf("address lookup = %v, %v", byAddr, ok)
	}

	sepoliaDAI := asset.MustNewToken(asset.ChainIDSepolia, asset.AddrWETHEthereum, "DAI", "Dai Stablecoin", 18)
	r.Register(sepoliaDAI)
	if got, ok := r.GetBySymbolAndChain("DAI", asset.ChainIDSepolia); !ok || got != sepoliaDAI {
		t.Error("registered Sepolia DAI must resolve by symbol and chain")
	}
}
