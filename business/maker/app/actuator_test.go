package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	chainDomain "github.com/dexkeep/keeperbot/business/chain/domain"
	keeperDomain "github.com/dexkeep/keeperbot/business/keeper/domain"
	"github.com/dexkeep/keeperbot/business/maker/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
)

type fakeExchange struct {
	books     map[string]*marketDomain.OrderBook
	bookErr   error
	made      []marketDomain.NewOrder
	cancelled []uint64
	submitErr error

	// outcomes are consumed one per WaitForReceipt; the default is success.
	outcomes []chainDomain.ConfirmationOutcome
	waits    int
}

var _ ExchangeGateway = (*fakeExchange)(nil)

func (f *fakeExchange) OrderBook(ctx context.Context, pair marketDomain.Pair) (*marketDomain.OrderBook, error) {
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	book, ok := f.books[pair.String()]
	if !ok {
		return marketDomain.NewOrderBook(pair, nil, time.Now()), nil
	}
	return book, nil
}

func (f *fakeExchange) MakeOrder(ctx context.Context, order marketDomain.NewOrder) (chainDomain.TxHandle, error) {
	if f.submitErr != nil {
		return chainDomain.TxHandle{}, f.submitErr
	}
	f.made = append(f.made, order)
	return chainDomain.TxHandle{Hash: common.BigToHash(common.Big1), SubmittedAt: time.Now()}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, id uint64) (chainDomain.TxHandle, error) {
	if f.submitErr != nil {
		return chainDomain.TxHandle{}, f.submitErr
	}
	f.cancelled = append(f.cancelled, id)
	return chainDomain.TxHandle{Hash: common.BigToHash(common.Big2), SubmittedAt: time.Now()}, nil
}

func (f *fakeExchange) WaitForReceipt(ctx context.Context, handle chainDomain.TxHandle) (chainDomain.ConfirmationResult, error) {
	outcome := chainDomain.ConfirmationSuccess
	if f.waits < len(f.outcomes) {
		outcome = f.outcomes[f.waits]
	}
	f.waits++
	return chainDomain.ConfirmationResult{Outcome: outcome, Elapsed: time.Second}, nil
}

type fakeAction struct{ kind keeperDomain.ActionKind }

func (a fakeAction) Kind() keeperDomain.ActionKind { return a.kind }
func (a fakeAction) Describe() string              { return string(a.kind) }

func makeActuator(t *testing.T, exchange *fakeExchange) *Actuator {
	t.Helper()
	a, err := NewActuator(stubLogger{}, exchange, ActuatorConfig{
		Account: keeperAddr,
		Pairs:   []marketDomain.Pair{wethDai(t)},
	})
	if err != nil {
		t.Fatalf("NewActuator: %v", err)
	}
	return a
}

func TestActuator_CreateSellOrder(t *testing.T) {
	exchange := &fakeExchange{}
	actuator := makeActuator(t, exchange)

	err := actuator.Apply(context.Background(), &domain.CreateOrder{
		Pair:   wethDai(t),
		Side:   marketDomain.SideSell,
		Price:  decimal.RequireFromString("103"),
		Amount: decimal.RequireFromString("200"),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if len(exchange.made) != 1 {
		t.Fatalf("made = %d orders, want 1", len(exchange.made))
	}
	order := exchange.made[0]
	if got := order.Sell; !got.ToDecimal().Equal(decimal.RequireFromString("200")) || got.Asset() != asset.WETH {
		t.Errorf("sell = %s %s, want 200 WETH", got.ToDecimal(), got.Asset().Symbol())
	}
	// 200 * 103 = 20600 DAI asked
	if got := order.Buy; !got.ToDecimal().Equal(decimal.RequireFromString("20600")) || got.Asset() != asset.DAI {
		t.Errorf("buy = %s %s, want 20600 DAI", got.ToDecimal(), got.Asset().Symbol())
	}
}

func TestActuator_CreateBuyOrder(t *testing.T) {
	exchange := &fakeExchange{}
	actuator := makeActuator(t, exchange)

	// Offering 4850 DAI at 97 asks exactly 50 WETH.
	err := actuator.Apply(context.Background(), &domain.CreateOrder{
		Pair:   wethDai(t),
		Side:   marketDomain.SideBuy,
		Price:  decimal.RequireFromString("97"),
		Amount: decimal.RequireFromString("4850"),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	order := exchange.made[0]
	if got := order.Sell; !got.ToDecimal().Equal(decimal.RequireFromString("4850")) || got.Asset() != asset.DAI {
		t.Errorf("sell = %s %s, want 4850 DAI", got.ToDecimal(), got.Asset().Symbol())
	}
	if got := order.Buy; !got.ToDecimal().Equal(decimal.RequireFromString("50")) || got.Asset() != asset.WETH {
		t.Errorf("buy = %s %s, want 50 WETH", got.ToDecimal(), got.Asset().Symbol())
	}
}

func TestActuator_CreateRevertSurfaces(t *testing.T) {
	exchange := &fakeExchange{outcomes: []chainDomain.ConfirmationOutcome{chainDomain.ConfirmationRevert}}
	actuator := makeActuator(t, exchange)

	err := actuator.Apply(context.Background(), &domain.CreateOrder{
		Pair:   wethDai(t),
		Side:   marketDomain.SideSell,
		Price:  decimal.RequireFromString("103"),
		Amount: decimal.RequireFromString("10"),
	})
	if apperror.GetCode(err) != apperror.CodeTxRevert {
		t.Fatalf("error = %v, want TRANSACTION_REVERT", err)
	}
}

func TestActuator_CancelTimeoutSurfaces(t *testing.T) {
	exchange := &fakeExchange{outcomes: []chainDomain.ConfirmationOutcome{chainDomain.ConfirmationTimeout}}
	actuator := makeActuator(t, exchange)

	err := actuator.Apply(context.Background(), &domain.CancelOrder{Pair: wethDai(t), OrderID: 5})
	if apperror.GetCode(err) != apperror.CodeConfirmationTimeout {
		t.Fatalf("error = %v, want CONFIRMATION_TIMEOUT", err)
	}
	if len(exchange.cancelled) != 1 || exchange.cancelled[0] != 5 {
		t.Errorf("cancelled = %v, want [5]", exchange.cancelled)
	}
}

func TestActuator_CancelAllSweepsOwnOrders(t *testing.T) {
	pair := wethDai(t)
	orders := []marketDomain.Order{
		makeOwnOrder(t, 1, asset.WETH, "10", asset.DAI, "1030"),
		{
			ID:    2,
			Owner: makerAddr, // not ours
			Sell:  makeAmount(t, asset.WETH, "5"),
			Buy:   makeAmount(t, asset.DAI, "515"),
		},
		makeOwnOrder(t, 3, asset.DAI, "970", asset.WETH, "10"),
	}
	exchange := &fakeExchange{books: map[string]*marketDomain.OrderBook{
		pair.String(): marketDomain.NewOrderBook(pair, orders, time.Now()),
	}}
	actuator := makeActuator(t, exchange)

	if err := actuator.CancelAll(context.Background()); err != nil {
		t.Fatalf("CancelAll: %v", err)
	}

	if len(exchange.cancelled) != 2 {
		t.Fatalf("cancelled = %v, want our orders 1 and 3", exchange.cancelled)
	}
	got := map[uint64]bool{exchange.cancelled[0]: true, exchange.cancelled[1]: true}
	if !got[1] || !got[3] {
		t.Errorf("cancelled = %v, want orders 1 and 3", exchange.cancelled)
	}
}

func TestActuator_CancelAllContinuesPastFailure(t *testing.T) {
	pair := wethDai(t)
	orders := []marketDomain.Order{
		makeOwnOrder(t, 1, asset.WETH, "10", asset.DAI, "1030"),
		makeOwnOrder(t, 2, asset.WETH, "20", asset.DAI, "2060"),
	}
	exchange := &fakeExchange{
		books: map[string]*marketDomain.OrderBook{
			pair.String(): marketDomain.NewOrderBook(pair, orders, time.Now()),
		},
		outcomes: []chainDomain.ConfirmationOutcome{chainDomain.ConfirmationRevert},
	}
	actuator := makeActuator(t, exchange)

	err := actuator.CancelAll(context.Background())
	if apperror.GetCode(err) != apperror.CodeTxRevert {
		t.Fatalf("error = %v, want the first revert", err)
	}
	if len(exchange.cancelled) != 2 {
		t.Errorf("cancelled = %v, want both orders attempted", exchange.cancelled)
	}
}

func TestActuator_SubmitErrorPassesThrough(t *testing.T) {
	boom := errors.New("nonce too low")
	exchange := &fakeExchange{submitErr: boom}
	actuator := makeActuator(t, exchange)

	err := actuator.Apply(context.Background(), &domain.CancelOrder{Pair: wethDai(t), OrderID: 9})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want the gateway error", err)
	}
}

func TestActuator_RejectsForeignActions(t *testing.T) {
	actuator := makeActuator(t, &fakeExchange{})

	err := actuator.Apply(context.Background(), fakeAction{kind: keeperDomain.ActionBite})
	if apperror.GetCode(err) != apperror.CodeInvalidState {
		t.Fatalf("error = %v, want INVALID_STATE", err)
	}
}
