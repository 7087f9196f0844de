package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
)

type stubLogger struct{}

func (stubLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (stubLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (stubLogger) Warn(ctx context.Context, msg string, args ...any)  {}
func (stubLogger) Error(ctx context.Context, msg string, args ...any) {}

type stubFeed struct {
	tick domain.Tick
	err  error
}

func (f *stubFeed) LatestTick(ctx context.Context, symbol string) (domain.Tick, error) {
	if f.err != nil {
		return domain.Tick{}, f.err
	}
	tick := f.tick
	tick.Symbol = symbol
	return tick, nil
}

type stubOracle struct {
	price asset.Price
	err   error
}

func (o *stubOracle) ReferencePrice(ctx context.Context) (asset.Price, error) {
	if o.err != nil {
		return asset.Price{}, o.err
	}
	return o.price, nil
}

func testConfig() PriceServiceConfig {
	cfg := DefaultPriceServiceConfig()
	cfg.StaleAfter = time.Minute
	return cfg
}

func TestReferencePrice_FeedPrimary(t *testing.T) {
	pair := domain.MustNewPair(asset.WETH, asset.DAI)
	feed := &stubFeed{tick: domain.Tick{
		Price: decimal.RequireFromString("250.50"),
		At:    time.Now(),
	}}

	svc, err := NewPriceService(stubLogger{}, testConfig(), feed, nil)
	if err != nil {
		t.Fatalf("NewPriceService: %v", err)
	}

	ref, err := svc.ReferencePrice(context.Background(), pair)
	if err != nil {
		t.Fatalf("ReferencePrice: %v", err)
	}

	if ref.Source != domain.SourceFeed {
		t.Errorf("source = %s, want feed", ref.Source)
	}
	if !ref.Rate().Equal(decimal.RequireFromString("250.50")) {
		t.Errorf("rate = %s, want 250.50", ref.Rate())
	}
	if !ref.Pair.Equals(pair) {
		t.Errorf("pair = %s, want %s", ref.Pair, pair)
	}
}

func TestReferencePrice_TargetPriceConversion(t *testing.T) {
	// Feed quotes USD; a stablecoin worth 1.25 USD turns a 250 USD tick
	// into 200 in stablecoin terms.
	pair := domain.MustNewPair(asset.WETH, asset.DAI)
	feed := &stubFeed{tick: domain.Tick{
		Price: decimal.NewFromInt(250),
		At:    time.Now(),
	}}

	cfg := testConfig()
	cfg.TargetPrice = decimal.RequireFromString("1.25")

	svc, err := NewPriceService(stubLogger{}, cfg, feed, nil)
	if err != nil {
		t.Fatalf("NewPriceService: %v", err)
	}

	ref, err := svc.ReferencePrice(context.Background(), pair)
	if err != nil {
		t.Fatalf("ReferencePrice: %v", err)
	}
	if !ref.Rate().Equal(decimal.NewFromInt(200)) {
		t.Errorf("rate = %s, want 200", ref.Rate())
	}
}

func TestReferencePrice_StaleFeedFallsBack(t *testing.T) {
	pair := domain.MustNewPair(asset.WETH, asset.DAI)
	feed := &stubFeed{tick: domain.Tick{
		Price: decimal.NewFromInt(250),
		At:    time.Now().Add(-time.Hour),
	}}
	oracle := &stubOracle{
		price: asset.NewPriceNow(asset.WETH, asset.DAI, decimal.NewFromInt(245)),
	}

	svc, err := NewPriceService(stubLogger{}, testConfig(), feed, oracle)
	if err != nil {
		t.Fatalf("NewPriceService: %v", err)
	}

	ref, err := svc.ReferencePrice(context.Background(), pair)
	if err != nil {
		t.Fatalf("ReferencePrice: %v", err)
	}
	if ref.Source != domain.SourceOracle {
		t.Errorf("source = %s, want oracle", ref.Source)
	}
	if !ref.Rate().Equal(decimal.NewFromInt(245)) {
		t.Errorf("rate = %s, want 245", ref.Rate())
	}
}

func TestReferencePrice_FeedErrorFallsBack(t *testing.T) {
	pair := domain.MustNewPair(asset.WETH, asset.DAI)
	feed := &stubFeed{err: apperror.New(apperror.CodeFeedUnavailable)}
	oracle := &stubOracle{
		price: asset.NewPriceNow(asset.WETH, asset.DAI, decimal.NewFromInt(240)),
	}

	svc, err := NewPriceService(stubLogger{}, testConfig(), feed, oracle)
	if err != nil {
		t.Fatalf("NewPriceService: %v", err)
	}

	ref, err := svc.ReferencePrice(context.Background(), pair)
	if err != nil {
		t.Fatalf("ReferencePrice: %v", err)
	}
	if ref.Source != domain.SourceOracle {
		t.Errorf("source = %s, want oracle", ref.Source)
	}
}

func TestReferencePrice_OracleInverted(t *testing.T) {
	// Oracle covers WETH-DAI; asking for DAI-WETH inverts the rate.
	pair := domain.MustNewPair(asset.DAI, asset.WETH)
	oracle := &stubOracle{
		price: asset.NewPriceNow(asset.WETH, asset.DAI, decimal.NewFromInt(250)),
	}

	svc, err := NewPriceService(stubLogger{}, testConfig(), nil, oracle)
	if err != nil {
		t.Fatalf("NewPriceService: %v", err)
	}

	ref, err := svc.ReferencePrice(context.Background(), pair)
	if err != nil {
		t.Fatalf("ReferencePrice: %v", err)
	}

	want := decimal.NewFromInt(1).Div(decimal.NewFromInt(250))
	if !ref.Rate().Equal(want) {
		t.Errorf("rate = %s, want %s", ref.Rate(), want)
	}
}

func TestReferencePrice_OracleWrongPair(t *testing.T) {
	pair := domain.MustNewPair(asset.MKR, asset.DAI)
	oracle := &stubOracle{
		price: asset.NewPriceNow(asset.WETH, asset.DAI, decimal.NewFromInt(250)),
	}

	svc, err := NewPriceService(stubLogger{}, testConfig(), nil, oracle)
	if err != nil {
		t.Fatalf("NewPriceService: %v", err)
	}

	_, err = svc.ReferencePrice(context.Background(), pair)
	if apperror.GetCode(err) != apperror.CodeFeedUnavailable {
		t.Errorf("error code = %s, want FEED_UNAVAILABLE", apperror.GetCode(err))
	}
}

func TestReferencePrice_NoSourceAnswers(t *testing.T) {
	pair := domain.MustNewPair(asset.WETH, asset.DAI)
	feed := &stubFeed{err: apperror.New(apperror.CodeFeedUnavailable)}
	oracle := &stubOracle{err: apperror.New(apperror.CodeChainRead)}

	svc, err := NewPriceService(stubLogger{}, testConfig(), feed, oracle)
	if err != nil {
		t.Fatalf("NewPriceService: %v", err)
	}

	_, err = svc.ReferencePrice(context.Background(), pair)
	if apperror.GetCode(err) != apperror.CodeFeedUnavailable {
		t.Errorf("error code = %s, want FEED_UNAVAILABLE", apperror.GetCode(err))
	}
}

func TestNewPriceService_RequiresASource(t *testing.T) {
	_, err := NewPriceService(stubLogger{}, testConfig(), nil, nil)
	if apperror.GetCode(err) != apperror.CodeConfigurationError {
		t.Errorf("error code = %s, want CONFIGURATION_ERROR", apperror.GetCode(err))
	}
}

func TestFeedSymbol(t *testing.T) {
	pair := domain.MustNewPair(asset.WETH, asset.DAI)

	svc, err := NewPriceService(stubLogger{}, testConfig(), &stubFeed{}, nil)
	if err != nil {
		t.Fatalf("NewPriceService: %v", err)
	}

	if got := svc.FeedSymbol(pair); got != "WETHUSD" {
		t.Errorf("FeedSymbol = %q, want WETHUSD", got)
	}
}
