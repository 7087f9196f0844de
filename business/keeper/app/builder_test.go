package app

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	chainApp "github.com/dexkeep/keeperbot/business/chain/app"
	chainDomain "github.com/dexkeep/keeperbot/business/chain/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	vaultDomain "github.com/dexkeep/keeperbot/business/vault/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
)

var builderAddr = common.HexToAddress("0x3333333333333333333333333333333333333333")

func makeAmount(t *testing.T, a *asset.Asset, value string) asset.Amount {
	t.Helper()
	amt, err := asset.ParseDecimal(a, decimal.RequireFromString(value))
	if err != nil {
		t.Fatalf("ParseDecimal(%s %s): %v", value, a.Symbol(), err)
	}
	return amt
}

// fakeGateway overrides only the read methods the builder touches; any
// other call panics through the embedded nil interface.
type fakeGateway struct {
	chainApp.Gateway

	balances     map[string]asset.Amount
	balanceErr   error
	balanceCalls int

	orders     []marketDomain.Order
	orderCalls int

	mintRate, redeemRate decimal.Decimal
	mintCap, redeemCap   asset.Amount

	liquidationRatio decimal.Decimal
	collateralPrice  decimal.Decimal
	cups             map[uint64]vaultDomain.Cup
	cupCount         uint64
}

func (f *fakeGateway) Balance(ctx context.Context, a *asset.Asset, owner common.Address) (asset.Amount, error) {
	f.balanceCalls++
	if f.balanceErr != nil {
		return asset.Amount{}, f.balanceErr
	}
	if amt, ok := f.balances[a.Symbol()]; ok {
		return amt, nil
	}
	return asset.Zero(a), nil
}

func (f *fakeGateway) AllOrders(ctx context.Context) ([]marketDomain.Order, error) {
	f.orderCalls++
	return f.orders, nil
}

func (f *fakeGateway) MintRate(ctx context.Context) (decimal.Decimal, error)   { return f.mintRate, nil }
func (f *fakeGateway) RedeemRate(ctx context.Context) (decimal.Decimal, error) { return f.redeemRate, nil }
func (f *fakeGateway) MintCapacity(ctx context.Context) (asset.Amount, error)  { return f.mintCap, nil }
func (f *fakeGateway) RedeemCapacity(ctx context.Context) (asset.Amount, error) {
	return f.redeemCap, nil
}

func (f *fakeGateway) CupCount(ctx context.Context) (uint64, error) { return f.cupCount, nil }

func (f *fakeGateway) Cup(ctx context.Context, id uint64) (vaultDomain.Cup, error) {
	cup, ok := f.cups[id]
	if !ok {
		return vaultDomain.Cup{}, errors.New("no such cup")
	}
	return cup, nil
}

func (f *fakeGateway) LiquidationRatio(ctx context.Context) (decimal.Decimal, error) {
	return f.liquidationRatio, nil
}

func (f *fakeGateway) CollateralPrice(ctx context.Context) (decimal.Decimal, error) {
	return f.collateralPrice, nil
}

type fakeWatcher struct {
	block uint64
	err   error
}

var _ chainApp.BlockWatcher = (*fakeWatcher)(nil)

func (f *fakeWatcher) Subscribe(ctx context.Context) (<-chan *chainDomain.Block, error) {
	return nil, nil
}

func (f *fakeWatcher) LatestBlock(ctx context.Context) (*chainDomain.Block, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &chainDomain.Block{Number: f.block}, nil
}

func (f *fakeWatcher) State() chainDomain.ConnectionState { return chainDomain.StateConnected }

type fakeGasPricer struct{ wei int64 }

var _ chainApp.GasPricer = (*fakeGasPricer)(nil)

func (f *fakeGasPricer) GetGasPrice(ctx context.Context) (*chainDomain.GasPrice, error) {
	return chainDomain.NewGasPrice(big.NewInt(f.wei)), nil
}

func (f *fakeGasPricer) EstimateGas(ctx context.Context, req chainDomain.TxRequest) (uint64, error) {
	return 21000, nil
}

type fakePrices struct {
	rates map[string]string
	calls int
}

var _ PriceSource = (*fakePrices)(nil)

func (f *fakePrices) ReferencePrice(ctx context.Context, pair marketDomain.Pair) (marketDomain.ReferencePrice, error) {
	f.calls++
	rate, ok := f.rates[pair.String()]
	if !ok {
		return marketDomain.ReferencePrice{}, apperror.New(apperror.CodeFeedUnavailable,
			apperror.WithMessage("no price for "+pair.String()))
	}
	return marketDomain.ReferencePrice{
		Pair:   pair,
		Value:  asset.NewPriceNow(pair.Base(), pair.Quote(), decimal.RequireFromString(rate)),
		Source: marketDomain.SourceOracle,
	}, nil
}

func makeBuilder(t *testing.T, gateway chainApp.Gateway, watcher chainApp.BlockWatcher, gas chainApp.GasPricer, prices PriceSource, cfg BuilderConfig) *Builder {
	t.Helper()
	cfg.Account = builderAddr
	b, err := NewBuilder(stubLogger{}, gateway, watcher, gas, prices, cfg)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b
}

func TestBuilder_ReadsAllSections(t *testing.T) {
	pair := marketDomain.MustNewPair(asset.WETH, asset.DAI)
	other := marketDomain.MustNewPair(asset.MKR, asset.DAI)

	gateway := &fakeGateway{
		balances: map[string]asset.Amount{
			"WETH": makeAmount(t, asset.WETH, "12"),
			"DAI":  makeAmount(t, asset.DAI, "3400"),
		},
		orders: []marketDomain.Order{
			{ID: 1, Owner: builderAddr, Sell: makeAmount(t, asset.WETH, "2"), Buy: makeAmount(t, asset.DAI, "210")},
			{ID: 2, Owner: builderAddr, Sell: makeAmount(t, asset.MKR, "5"), Buy: makeAmount(t, asset.DAI, "600")},
		},
		mintRate:         decimal.RequireFromString("0.95"),
		redeemRate:       decimal.RequireFromString("0.94"),
		mintCap:          makeAmount(t, asset.WETH, "1000"),
		redeemCap:        makeAmount(t, asset.DAI, "90000"),
		liquidationRatio: decimal.RequireFromString("1.5"),
		collateralPrice:  decimal.RequireFromString("100"),
		cupCount:         2,
		cups: map[uint64]vaultDomain.Cup{
			1: {ID: 1, Owner: builderAddr, Ink: makeAmount(t, asset.WETH, "10"), Tab: makeAmount(t, asset.DAI, "500"), Safe: true},
			2: {ID: 2, Owner: builderAddr, Ink: makeAmount(t, asset.WETH, "3"), Tab: makeAmount(t, asset.DAI, "290")},
		},
	}
	watcher := &fakeWatcher{block: 900}
	prices := &fakePrices{rates: map[string]string{"WETH-DAI": "105"}}

	b := makeBuilder(t, gateway, watcher, &fakeGasPricer{wei: 2_000_000_000}, prices, BuilderConfig{
		Assets:     []*asset.Asset{asset.WETH, asset.DAI},
		Pairs:      []marketDomain.Pair{pair},
		PricePairs: []marketDomain.Pair{pair},
		WithGas:    true,
		WithPool:   true,
		WithCups:   true,
	})

	snap, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if snap.BlockNumber != 900 {
		t.Errorf("BlockNumber = %d, want 900", snap.BlockNumber)
	}
	if snap.Account != builderAddr {
		t.Errorf("Account = %s, want %s", snap.Account, builderAddr)
	}
	if snap.TakenAt.IsZero() {
		t.Error("TakenAt is zero")
	}
	if got := snap.Balance(asset.WETH).ToDecimal(); !got.Equal(decimal.RequireFromString("12")) {
		t.Errorf("WETH balance = %s, want 12", got)
	}

	book, ok := snap.Book(pair)
	if !ok {
		t.Fatal("snapshot has no WETH-DAI book")
	}
	if got := len(book.SellOrders()); got != 1 {
		t.Errorf("WETH-DAI book holds %d sell orders, want 1: the MKR order belongs elsewhere", got)
	}
	if _, ok := snap.Book(other); ok {
		t.Error("snapshot grew a book for a pair it was never asked about")
	}

	price, ok := snap.Price(pair)
	if !ok {
		t.Fatal("snapshot has no WETH-DAI price")
	}
	if !price.Rate().Equal(decimal.RequireFromString("105")) {
		t.Errorf("price = %s, want 105", price.Rate())
	}

	if snap.GasPrice == nil || snap.GasPrice.Wei.Cmp(big.NewInt(2_000_000_000)) != 0 {
		t.Errorf("GasPrice = %v, want 2 gwei", snap.GasPrice)
	}
	if !snap.NativeBase.Equal(decimal.NewFromInt(1)) {
		t.Errorf("NativeBase = %s, want 1 without a native pair", snap.NativeBase)
	}

	if snap.Pool == nil {
		t.Fatal("snapshot has no pool state")
	}
	if !snap.Pool.MintRate.Equal(decimal.RequireFromString("0.95")) {
		t.Errorf("MintRate = %s, want 0.95", snap.Pool.MintRate)
	}

	if len(snap.Cups) != 2 || snap.Cups[0].ID != 1 || snap.Cups[1].ID != 2 {
		t.Fatalf("cups = %v, want IDs 1 and 2 in order", snap.Cups)
	}
	if !snap.LiquidationRatio.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("LiquidationRatio = %s, want 1.5", snap.LiquidationRatio)
	}
	if !snap.CollateralPrice.Equal(decimal.RequireFromString("100")) {
		t.Errorf("CollateralPrice = %s, want 100", snap.CollateralPrice)
	}
}

func TestBuilder_SkipsDisabledSections(t *testing.T) {
	b := makeBuilder(t, &fakeGateway{}, &fakeWatcher{block: 5}, nil, nil, BuilderConfig{})

	snap, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if snap.Balances != nil || snap.Books != nil || snap.Prices != nil {
		t.Error("disabled sections were populated")
	}
	if snap.GasPrice != nil || snap.Pool != nil || snap.Cups != nil {
		t.Error("disabled gas, pool or cup sections were populated")
	}
	if !snap.NativeBase.Equal(decimal.NewFromInt(1)) {
		t.Errorf("NativeBase = %s, want 1", snap.NativeBase)
	}
}

func TestBuilder_NativeRateReusesFetchedPrice(t *testing.T) {
	pair := marketDomain.MustNewPair(asset.WETH, asset.DAI)
	prices := &fakePrices{rates: map[string]string{"WETH-DAI": "100"}}

	b := makeBuilder(t, &fakeGateway{}, &fakeWatcher{block: 5}, &fakeGasPricer{wei: 1}, prices, BuilderConfig{
		PricePairs: []marketDomain.Pair{pair},
		NativePair: &pair,
		WithGas:    true,
	})

	snap, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !snap.NativeBase.Equal(decimal.RequireFromString("100")) {
		t.Errorf("NativeBase = %s, want 100", snap.NativeBase)
	}
	if prices.calls != 1 {
		t.Errorf("price source called %d times, want 1: the native pair was already in the snapshot", prices.calls)
	}
}

func TestBuilder_NativeRateFetchedOnDemand(t *testing.T) {
	pair := marketDomain.MustNewPair(asset.WETH, asset.DAI)
	prices := &fakePrices{rates: map[string]string{"WETH-DAI": "100"}}

	b := makeBuilder(t, &fakeGateway{}, &fakeWatcher{block: 5}, &fakeGasPricer{wei: 1}, prices, BuilderConfig{
		NativePair: &pair,
		WithGas:    true,
	})

	snap, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !snap.NativeBase.Equal(decimal.RequireFromString("100")) {
		t.Errorf("NativeBase = %s, want 100", snap.NativeBase)
	}
	if prices.calls != 1 {
		t.Errorf("price source called %d times, want 1", prices.calls)
	}
}

func TestBuilder_WrapsRawReadErrors(t *testing.T) {
	t.Run("block", func(t *testing.T) {
		b := makeBuilder(t, &fakeGateway{}, &fakeWatcher{err: errors.New("connection refused")}, nil, nil, BuilderConfig{})
		_, err := b.Acquire(context.Background())
		if apperror.GetCode(err) != apperror.CodeChainRead {
			t.Fatalf("Acquire = %v, want CHAIN_READ_ERROR", err)
		}
	})

	t.Run("balance", func(t *testing.T) {
		gateway := &fakeGateway{balanceErr: errors.New("connection refused")}
		b := makeBuilder(t, gateway, &fakeWatcher{block: 5}, nil, nil, BuilderConfig{
			Assets: []*asset.Asset{asset.WETH},
		})
		_, err := b.Acquire(context.Background())
		if apperror.GetCode(err) != apperror.CodeChainRead {
			t.Fatalf("Acquire = %v, want CHAIN_READ_ERROR", err)
		}
	})
}

func TestBuilder_PriceErrorKeepsItsCode(t *testing.T) {
	pair := marketDomain.MustNewPair(asset.WETH, asset.DAI)
	b := makeBuilder(t, &fakeGateway{}, &fakeWatcher{block: 5}, nil, &fakePrices{}, BuilderConfig{
		PricePairs: []marketDomain.Pair{pair},
	})

	_, err := b.Acquire(context.Background())
	if apperror.GetCode(err) != apperror.CodeFeedUnavailable {
		t.Fatalf("Acquire = %v, want FEED_UNAVAILABLE", err)
	}
}

func TestBuilder_ReadsFreshEveryCycle(t *testing.T) {
	gateway := &fakeGateway{
		balances: map[string]asset.Amount{"WETH": makeAmount(t, asset.WETH, "12")},
	}
	watcher := &fakeWatcher{block: 900}
	b := makeBuilder(t, gateway, watcher, nil, nil, BuilderConfig{
		Assets: []*asset.Asset{asset.WETH},
	})

	first, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	watcher.block = 901
	gateway.balances["WETH"] = makeAmount(t, asset.WETH, "5")

	second, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}

	if first.BlockNumber != 900 || second.BlockNumber != 901 {
		t.Errorf("blocks = %d, %d; want 900 then 901", first.BlockNumber, second.BlockNumber)
	}
	if got := second.Balance(asset.WETH).ToDecimal(); !got.Equal(decimal.RequireFromString("5")) {
		t.Errorf("second balance = %s, want the fresh 5", got)
	}
	if gateway.balanceCalls != 2 {
		t.Errorf("balance read %d times, want once per cycle", gateway.balanceCalls)
	}
}

func TestNewBuilder_Validation(t *testing.T) {
	pair := marketDomain.MustNewPair(asset.WETH, asset.DAI)
	gateway := &fakeGateway{}
	watcher := &fakeWatcher{}

	tests := []struct {
		name    string
		gateway chainApp.Gateway
		watcher chainApp.BlockWatcher
		gas     chainApp.GasPricer
		prices  PriceSource
		cfg     BuilderConfig
	}{
		{"nil_gateway", nil, watcher, nil, nil, BuilderConfig{}},
		{"nil_watcher", gateway, nil, nil, nil, BuilderConfig{}},
		{"gas_without_pricer", gateway, watcher, nil, nil, BuilderConfig{WithGas: true}},
		{"prices_without_source", gateway, watcher, nil, nil, BuilderConfig{PricePairs: []marketDomain.Pair{pair}}},
		{"native_without_source", gateway, watcher, &fakeGasPricer{}, nil, BuilderConfig{WithGas: true, NativePair: &pair}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(stubLogger{}, tt.gateway, tt.watcher, tt.gas, tt.prices, tt.cfg)
			if apperror.GetCode(err) != apperror.CodeConfigurationError {
				t.Fatalf("NewBuilder = %v, want CONFIGURATION_ERROR", err)
			}
		})
	}
}
