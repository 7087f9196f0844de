package domain

import (
	"testing"

	"github.com/shopspring/decimal"

	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
)

func makeAmount(t *testing.T, a *asset.Asset, value string) asset.Amount {
	t.Helper()
	amt, err := asset.ParseDecimal(a, decimal.RequireFromString(value))
	if err != nil {
		t.Fatalf("ParseDecimal(%s %s): %v", value, a.Symbol(), err)
	}
	return amt
}

func makeOrder(t *testing.T, id uint64, sellAsset *asset.Asset, sellValue string, buyAsset *asset.Asset, buyValue string) marketDomain.Order {
	t.Helper()
	return marketDomain.Order{
		ID:   id,
		Sell: makeAmount(t, sellAsset, sellValue),
		Buy:  makeAmount(t, buyAsset, buyValue),
	}
}

func makeSellBand(t *testing.T) Band {
	t.Helper()
	pair := marketDomain.MustNewPair(asset.WETH, asset.DAI)
	b, err := NewBand(pair, marketDomain.SideSell,
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

func TestNewBand_Validation(t *testing.T) {
	pair := marketDomain.MustNewPair(asset.WETH, asset.DAI)

	tests := []struct {
		name                            string
		minAmount, maxAmount            string
		minMargin, avgMargin, maxMargin string
		wantErr                         bool
	}{
		{"valid", "50", "200", "0.01", "0.03", "0.05", false},
		{"zero_min_amount", "0", "200", "0.01", "0.03", "0.05", true},
		{"max_below_min_amount", "50", "40", "0.01", "0.03", "0.05", true},
		{"avg_below_min_margin", "50", "200", "0.03", "0.01", "0.05", true},
		{"avg_above_max_margin", "50", "200", "0.01", "0.06", "0.05", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBand(pair, marketDomain.SideSell,
				decimal.RequireFromString(tt.minAmount),
				decimal.RequireFromString(tt.maxAmount),
				decimal.RequireFromString(tt.minMargin),
				decimal.RequireFromString(tt.avgMargin),
				decimal.RequireFromString(tt.maxMargin),
			)
			if tt.wantErr {
				if apperror.GetCode(err) != apperror.CodeConfigurationError {
					t.Fatalf("error = %v, want CONFIGURATION_ERROR", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBand: %v", err)
			}
		})
	}
}

func TestBand_Margin(t *testing.T) {
	band := makeSellBand(t)
	ref := decimal.RequireFromString("100")

	// Sell margin is price/ref - 1.
	if got := band.Margin(decimal.RequireFromString("107"), ref); !got.Equal(decimal.RequireFromString("0.07")) {
		t.Errorf("sell margin @107 = %s, want 0.07", got)
	}

	buy := band
	buy.Side = marketDomain.SideBuy
	// Buy margin is 1 - price/ref.
	if got := buy.Margin(decimal.RequireFromString("97"), ref); !got.Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("buy margin @97 = %s, want 0.03", got)
	}
}

func TestBand_WithinBoundsInclusive(t *testing.T) {
	band := makeSellBand(t)
	ref := decimal.RequireFromString("100")

	for _, price := range []string{"101", "103", "105"} {
		if !band.Within(decimal.RequireFromString(price), ref) {
			t.Errorf("price %s should be within [101, 105]", price)
		}
	}
	for _, price := range []string{"100.5", "107", "95"} {
		if band.Within(decimal.RequireFromString(price), ref) {
			t.Errorf("price %s should be out of band", price)
		}
	}
}

func TestBand_TargetPriceRounds(t *testing.T) {
	band := makeSellBand(t)

	// 100.1234 * 1.03 = 103.127102
	got := band.TargetPrice(decimal.RequireFromString("100.1234"), 2)
	if !got.Equal(decimal.RequireFromString("103.13")) {
		t.Errorf("TargetPrice = %s, want 103.13", got)
	}

	buy := band
	buy.Side = marketDomain.SideBuy
	got = buy.TargetPrice(decimal.RequireFromString("100"), 2)
	if !got.Equal(decimal.RequireFromString("97")) {
		t.Errorf("buy TargetPrice = %s, want 97", got)
	}
}

func TestBand_ReconcileOutOfBandThenReplenish(t *testing.T) {
	band := makeSellBand(t)
	ref := decimal.RequireFromString("100")

	// One resting sell at 107: margin 0.07 exceeds the 0.05 maximum, so
	// it is cancelled; the surviving total 0 < 50 triggers one new
	// order sized to the 200 maximum, priced at 100 * 1.03.
	own := []marketDomain.Order{
		makeOrder(t, 11, asset.WETH, "10", asset.DAI, "1070"),
	}

	rec, err := band.Reconcile(own, ref, decimal.RequireFromString("500"), 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(rec.Cancels) != 1 || rec.Cancels[0].ID != 11 {
		t.Fatalf("cancels = %+v, want just order 11", rec.Cancels)
	}
	if rec.Create == nil {
		t.Fatal("expected a replenishing order")
	}
	if !rec.Create.Amount.Equal(decimal.RequireFromString("200")) {
		t.Errorf("create amount = %s, want 200", rec.Create.Amount)
	}
	if !rec.Create.Price.Equal(decimal.RequireFromString("103")) {
		t.Errorf("create price = %s, want 103", rec.Create.Price)
	}
}

func TestBand_ReconcileHysteresis(t *testing.T) {
	band := makeSellBand(t)
	ref := decimal.RequireFromString("100")

	// 60 WETH resting at 103: within band and above the 50 minimum.
	// Drift inside the corridor causes no churn, even though the total
	// sits below the 200 maximum.
	own := []marketDomain.Order{
		makeOrder(t, 7, asset.WETH, "60", asset.DAI, "6180"),
	}

	rec, err := band.Reconcile(own, ref, decimal.RequireFromString("500"), 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !rec.Empty() {
		t.Errorf("expected no actions, got %d cancels create=%v", len(rec.Cancels), rec.Create)
	}
}

func TestBand_ReconcileIdempotent(t *testing.T) {
	band := makeSellBand(t)
	ref := decimal.RequireFromString("100")

	first, err := band.Reconcile(nil, ref, decimal.RequireFromString("500"), 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if first.Create == nil {
		t.Fatal("expected a replenishing order on an empty book")
	}

	// The book now holds exactly the order the first pass created;
	// a second pass with unchanged state does nothing.
	placed := makeOrder(t, 21, asset.WETH, first.Create.Amount.String(), asset.DAI,
		first.Create.Amount.Mul(first.Create.Price).String())

	second, err := band.Reconcile([]marketDomain.Order{placed}, ref, decimal.RequireFromString("300"), 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !second.Empty() {
		t.Errorf("second pass should be empty, got %d cancels create=%v", len(second.Cancels), second.Create)
	}
}

func TestBand_ReconcileTopsUpDepletedInventory(t *testing.T) {
	band := makeSellBand(t)
	ref := decimal.RequireFromString("100")

	// A fill left 30 WETH resting: below the 50 minimum, so one order
	// brings the total back to 200.
	own := []marketDomain.Order{
		makeOrder(t, 3, asset.WETH, "30", asset.DAI, "3090"),
	}

	rec, err := band.Reconcile(own, ref, decimal.RequireFromString("500"), 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(rec.Cancels) != 0 {
		t.Fatalf("cancels = %+v, want none", rec.Cancels)
	}
	if rec.Create == nil || !rec.Create.Amount.Equal(decimal.RequireFromString("170")) {
		t.Fatalf("create = %+v, want 170 WETH", rec.Create)
	}
}

func TestBand_ReconcileBalanceCapsCreate(t *testing.T) {
	band := makeSellBand(t)
	ref := decimal.RequireFromString("100")

	rec, err := band.Reconcile(nil, ref, decimal.RequireFromString("80"), 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rec.Create == nil || !rec.Create.Amount.Equal(decimal.RequireFromString("80")) {
		t.Fatalf("create = %+v, want 80 WETH", rec.Create)
	}
}

func TestBand_ReconcileCancelledEscrowFundsCreate(t *testing.T) {
	band := makeSellBand(t)
	ref := decimal.RequireFromString("100")

	// Wallet is empty, but the cancelled order's 40 WETH escrow comes
	// back before the new order is placed.
	own := []marketDomain.Order{
		makeOrder(t, 5, asset.WETH, "40", asset.DAI, "4280"), // price 107
	}

	rec, err := band.Reconcile(own, ref, decimal.Zero, 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(rec.Cancels) != 1 {
		t.Fatalf("cancels = %+v, want order 5", rec.Cancels)
	}
	if rec.Create == nil || !rec.Create.Amount.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("create = %+v, want 40 WETH", rec.Create)
	}
}

func TestBand_ReconcileNoBalanceNoCreate(t *testing.T) {
	band := makeSellBand(t)

	rec, err := band.Reconcile(nil, decimal.RequireFromString("100"), decimal.Zero, 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !rec.Empty() {
		t.Errorf("expected no actions with nothing to offer, got create=%v", rec.Create)
	}
}

func TestBand_ReconcileIgnoresOtherSide(t *testing.T) {
	band := makeSellBand(t)
	ref := decimal.RequireFromString("100")

	// A buy order (sells DAI for WETH) way outside the sell corridor
	// belongs to the buy band and must not be touched here.
	own := []marketDomain.Order{
		makeOrder(t, 9, asset.DAI, "9000", asset.WETH, "100"), // buy at 90
		makeOrder(t, 10, asset.WETH, "60", asset.DAI, "6180"), // sell at 103
	}

	rec, err := band.Reconcile(own, ref, decimal.RequireFromString("500"), 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !rec.Empty() {
		t.Errorf("expected no actions, got %d cancels create=%v", len(rec.Cancels), rec.Create)
	}
}

func TestBand_ReconcileBuySide(t *testing.T) {
	pair := marketDomain.MustNewPair(asset.WETH, asset.DAI)
	band, err := NewBand(pair, marketDomain.SideBuy,
		decimal.RequireFromString("1000"),
		decimal.RequireFromString("5000"),
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("0.03"),
		decimal.RequireFromString("0.05"),
	)
	if err != nil {
		t.Fatalf("NewBand: %v", err)
	}
	ref := decimal.RequireFromString("100")

	// A bid at 99.5 sits closer than the 1% minimum margin and is
	// cancelled; a bid at 97 stays. Amounts are in DAI, the offered
	// asset of a buy band.
	own := []marketDomain.Order{
		makeOrder(t, 1, asset.DAI, "995", asset.WETH, "10"), // price 99.5
		makeOrder(t, 2, asset.DAI, "485", asset.WETH, "5"),  // price 97
	}

	rec, err := band.Reconcile(own, ref, decimal.RequireFromString("10000"), 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(rec.Cancels) != 1 || rec.Cancels[0].ID != 1 {
		t.Fatalf("cancels = %+v, want just order 1", rec.Cancels)
	}
	// Surviving total 485 < 1000: top up to 5000 with a 4515 DAI bid at 97.
	if rec.Create == nil {
		t.Fatal("expected a replenishing bid")
	}
	if !rec.Create.Amount.Equal(decimal.RequireFromString("4515")) {
		t.Errorf("create amount = %s, want 4515", rec.Create.Amount)
	}
	if !rec.Create.Price.Equal(decimal.RequireFromString("97")) {
		t.Errorf("create price = %s, want 97", rec.Create.Price)
	}
}

func TestBand_ReconcileRejectsBadReference(t *testing.T) {
	band := makeSellBand(t)
	if _, err := band.Reconcile(nil, decimal.Zero, decimal.RequireFromString("10"), 2); err == nil {
		t.Fatal("expected an error for a zero reference price")
	}
}
