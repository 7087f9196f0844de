package app

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	"github.com/dexkeep/keeperbot/business/maker/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
)

type stubLogger struct{}

func (stubLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (stubLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (stubLogger) Warn(ctx context.Context, msg string, args ...any)  {}
func (stubLogger) Error(ctx context.Context, msg string, args ...any) {}

var (
	keeperAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	makerAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func makeAmount(t *testing.T, a *asset.Asset, value string) asset.Amount {
	t.Helper()
	amt, err := asset.ParseDecimal(a, decimal.RequireFromString(value))
	if err != nil {
		t.Fatalf("ParseDecimal(%s %s): %v", value, a.Symbol(), err)
	}
	return amt
}

func makeOwnOrder(t *testing.T, id uint64, sellAsset *asset.Asset, sellValue string, buyAsset *asset.Asset, buyValue string) marketDomain.Order {
	t.Helper()
	return marketDomain.Order{
		ID:    id,
		Owner: keeperAddr,
		Sell:  makeAmount(t, sellAsset, sellValue),
		Buy:   makeAmount(t, buyAsset, buyValue),
	}
}

func wethDai(t *testing.T) marketDomain.Pair {
	t.Helper()
	return marketDomain.MustNewPair(asset.WETH, asset.DAI)
}

func makeSnapshot(t *testing.T, wethBalance string, ref string, orders ...marketDomain.Order) *keeperDomain.Snapshot {
	t.Helper()
	pair := wethDai(t)
	now := time.Now()

	snap := &keeperDomain.Snapshot{
		BlockNumber: 4321,
		TakenAt:     now,
		Account:     keeperAddr,
		Balances: map[string]asset.Amount{
			"WETH": makeAmount(t, asset.WETH, wethBalance),
			"DAI":  makeAmount(t, asset.DAI, "100000"),
		},
		Books: map[string]*marketDomain.OrderBook{
			pair.String(): marketDomain.NewOrderBook(pair, orders, now),
		},
		Prices: map[string]marketDomain.ReferencePrice{},
	}
	if ref != "" {
		snap.Prices[pair.String()] = marketDomain.ReferencePrice{
			Pair:   pair,
			Value:  asset.NewPrice(asset.WETH, asset.DAI, decimal.RequireFromString(ref), now),
			Source: marketDomain.SourceOracle,
		}
	}
	return snap
}

func makeStrategy(t *testing.T, bands ...domain.Band) *Strategy {
	t.Helper()
	s, err := NewStrategy(stubLogger{}, StrategyConfig{Bands: bands, RoundPlaces: 2})
	if err != nil {
		t.Fatalf("NewStrategy: %v", err)
	}
	return s
}

func sellBand(t *testing.T) domain.Band {
	t.Helper()
	b, err := domain.NewBand(wethDai(t), marketDomain.SideSell,
		decimal.RequireFromString("50"),
		decimal.RequireFromString("200"),
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("0.03"),
		decimal.RequireFromString("0.05"),
	)
	if err != nil {
		t.Fatalf("NewBand: %v", err)
	}
	return b
}

func TestStrategy_CancelsAndReplenishes(t *testing.T) {
	strategy := makeStrategy(t, sellBand(t))

	// Own sell resting at 107 with the reference at 100: out of band.
	snap := makeSnapshot(t, "500", "100",
		makeOwnOrder(t, 11, asset.WETH, "10", asset.DAI, "1070"),
	)

	actions, err := strategy.OnSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("OnSnapshot: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("actions = %d, want cancel then create", len(actions))
	}

	cancel, ok := actions[0].(*domain.CancelOrder)
	if !ok || cancel.OrderID != 11 {
		t.Fatalf("actions[0] = %#v, want cancel of order 11", actions[0])
	}

	create, ok := actions[1].(*domain.CreateOrder)
	if !ok {
		t.Fatalf("actions[1] = %#v, want a create", actions[1])
	}
	if !create.Amount.Equal(decimal.RequireFromString("200")) {
		t.Errorf("create amount = %s, want 200", create.Amount)
	}
	if !create.Price.Equal(decimal.RequireFromString("103")) {
		t.Errorf("create price = %s, want 103", create.Price)
	}
}

func TestStrategy_QuietWhenHealthy(t *testing.T) {
	strategy := makeStrategy(t, sellBand(t))

	snap := makeSnapshot(t, "500", "100",
		makeOwnOrder(t, 7, asset.WETH, "60", asset.DAI, "6180"), // 103, within band
	)

	actions, err := strategy.OnSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("OnSnapshot: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("actions = %v, want none", actions)
	}
}

func TestStrategy_IgnoresForeignOrders(t *testing.T) {
	strategy := makeStrategy(t, sellBand(t))

	// A foreign maker resting at 107 is none of our business; our own
	// inventory is healthy.
	foreign := marketDomain.Order{
		ID:    93,
		Owner: makerAddr,
		Sell:  makeAmount(t, asset.WETH, "25"),
		Buy:   makeAmount(t, asset.DAI, "2675"),
	}
	snap := makeSnapshot(t, "500", "100",
		foreign,
		makeOwnOrder(t, 7, asset.WETH, "60", asset.DAI, "6180"),
	)

	actions, err := strategy.OnSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("OnSnapshot: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("actions = %v, want none", actions)
	}
}

func TestStrategy_SharedBalanceBudget(t *testing.T) {
	// Two sell bands on different pairs both offering WETH: the second
	// band only gets what the first left over.
	wethUsdc := marketDomain.MustNewPair(asset.WETH, asset.USDC)
	second, err := domain.NewBand(wethUsdc, marketDomain.SideSell,
		decimal.RequireFromString("50"),
		decimal.RequireFromString("200"),
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("0.03"),
		decimal.RequireFromString("0.05"),
	)
	if err != nil {
		t.Fatalf("NewBand: %v", err)
	}

	strategy := makeStrategy(t, sellBand(t), second)

	snap := makeSnapshot(t, "250", "100")
	now := snap.TakenAt
	snap.Books[wethUsdc.String()] = marketDomain.NewOrderBook(wethUsdc, nil, now)
	snap.Prices[wethUsdc.String()] = marketDomain.ReferencePrice{
		Pair:   wethUsdc,
		Value:  asset.NewPrice(asset.WETH, asset.USDC, decimal.RequireFromString("100"), now),
		Source: marketDomain.SourceOracle,
	}

	actions, err := strategy.OnSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("OnSnapshot: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("actions = %d, want two creates", len(actions))
	}

	first, ok := actions[0].(*domain.CreateOrder)
	if !ok || !first.Amount.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("actions[0] = %#v, want 200 WETH create", actions[0])
	}
	rest, ok := actions[1].(*domain.CreateOrder)
	if !ok || !rest.Amount.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("actions[1] = %#v, want the remaining 50 WETH", actions[1])
	}
}

func TestStrategy_MissingPriceFails(t *testing.T) {
	strategy := makeStrategy(t, sellBand(t))

	snap := makeSnapshot(t, "500", "")

	_, err := strategy.OnSnapshot(context.Background(), snap)
	if apperror.GetCode(err) != apperror.CodeFeedUnavailable {
		t.Fatalf("error = %v, want FEED_UNAVAILABLE", err)
	}
}

func TestStrategy_MissingBookFails(t *testing.T) {
	strategy := makeStrategy(t, sellBand(t))

	snap := makeSnapshot(t, "500", "100")
	delete(snap.Books, wethDai(t).String())

	_, err := strategy.OnSnapshot(context.Background(), snap)
	if apperror.GetCode(err) != apperror.CodeChainRead {
		t.Fatalf("error = %v, want CHAIN_READ_ERROR", err)
	}
}

func TestNewStrategy_Validation(t *testing.T) {
	if _, err := NewStrategy(stubLogger{}, StrategyConfig{}); apperror.GetCode(err) != apperror.CodeConfigurationError {
		t.Errorf("empty bands: error = %v, want CONFIGURATION_ERROR", err)
	}

	band := sellBand(t)
	_, err := NewStrategy(stubLogger{}, StrategyConfig{Bands: []domain.Band{band, band}})
	if apperror.GetCode(err) != apperror.CodeConfigurationError {
		t.Errorf("duplicate bands: error = %v, want CONFIGURATION_ERROR", err)
	}
}
