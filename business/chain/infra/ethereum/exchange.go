package ethereum

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexkeep/keeperbot/business/chain/domain"
	marketDomain "github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
)

// AllOrders scans the book from order 1 to lastOrderId and returns the
// live entries. Orders quoting tokens the registry does not know are
// skipped; the keepers cannot price them.
func (g *Gateway) AllOrders(ctx context.Context) ([]marketDomain.Order, error) {
	ctx, span := g.tracer.Start(ctx, "exchange.all_orders")
	defer span.End()

	results, err := g.view(ctx, "exchange", g.config.Exchange, "lastOrderId")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	last, ok := results[0].(*big.Int)
	if !ok {
		span.SetStatus(codes.Error, "bad lastOrderId result")
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected lastOrderId result type"))
	}

	orders := make([]marketDomain.Order, 0)
	for id := uint64(1); id <= last.Uint64(); id++ {
		order, live, err := g.readOrder(ctx, id)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if live {
			orders = append(orders, order)
		}
	}

	span.SetAttributes(
		attribute.Int64("orders.last_id", last.Int64()),
		attribute.Int("orders.live", len(orders)),
	)
	span.SetStatus(codes.Ok, "")
	return orders, nil
}

// OrderBook returns all live orders for the pair.
func (g *Gateway) OrderBook(ctx context.Context, pair marketDomain.Pair) (*marketDomain.OrderBook, error) {
	orders, err := g.AllOrders(ctx)
	if err != nil {
		return nil, err
	}
	return marketDomain.NewOrderBook(pair, orders, time.Now()), nil
}

// Order returns a single order by ID. The second return is false when
// the order is gone from the book.
func (g *Gateway) Order(ctx context.Context, id uint64) (marketDomain.Order, bool, error) {
	return g.readOrder(ctx, id)
}

func (g *Gateway) readOrder(ctx context.Context, id uint64) (marketDomain.Order, bool, error) {
	results, err := g.view(ctx, "exchange", g.config.Exchange, "orders", new(big.Int).SetUint64(id))
	if err != nil {
		return marketDomain.Order{}, false, err
	}

	sellAmt, ok0 := results[0].(*big.Int)
	sellGem, ok1 := results[1].(common.Address)
	buyAmt, ok2 := results[2].(*big.Int)
	buyGem, ok3 := results[3].(common.Address)
	owner, ok4 := results[4].(common.Address)
	active, ok5 := results[5].(bool)
	if !ok0 || !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return marketDomain.Order{}, false, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected orders result types"))
	}

	if !active || sellAmt.Sign() == 0 {
		return marketDomain.Order{}, false, nil
	}

	chainID := g.config.Stablecoin.ChainID()
	sellAsset, okSell := g.registry.GetToken(chainID, sellGem)
	buyAsset, okBuy := g.registry.GetToken(chainID, buyGem)
	if !okSell || !okBuy {
		g.log.Debug(ctx, "skipping order with unknown token",
			"order_id", id,
			"sell_gem", sellGem.Hex(),
			"buy_gem", buyGem.Hex())
		return marketDomain.Order{}, false, nil
	}

	return marketDomain.Order{
		ID:    id,
		Owner: owner,
		Sell:  asset.NewAmount(sellAsset, sellAmt),
		Buy:   asset.NewAmount(buyAsset, buyAmt),
	}, true, nil
}

// MakeOrder places a new resting order.
func (g *Gateway) MakeOrder(ctx context.Context, order marketDomain.NewOrder) (domain.TxHandle, error) {
	ctx, span := g.tracer.Start(ctx, "exchange.make_order",
		trace.WithAttributes(
			attribute.String("pair", order.Pair.String()),
			attribute.String("side", string(order.Side)),
			attribute.String("sell", order.Sell.String()),
			attribute.String("buy", order.Buy.String()),
		))
	defer span.End()

	if err := order.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, apperror.Wrap(err, apperror.CodeOrderCreateFailed, "invalid order")
	}

	data, err := g.abis.exchange.Pack("make",
		order.Sell.Raw(), order.Sell.Asset().Address(),
		order.Buy.Raw(), order.Buy.Asset().Address())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, apperror.Wrap(err, apperror.CodeOrderCreateFailed, "pack make")
	}

	handle, err := g.submit(ctx, domain.TxRequest{
		Call: domain.Call{To: g.config.Exchange, Data: data},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, err
	}

	span.SetStatus(codes.Ok, "")
	return handle, nil
}

// CancelOrder removes one of the account's own orders.
func (g *Gateway) CancelOrder(ctx context.Context, id uint64) (domain.TxHandle, error) {
	ctx, span := g.tracer.Start(ctx, "exchange.cancel_order",
		trace.WithAttributes(attribute.Int64("order_id", int64(id))))
	defer span.End()

	data, err := g.abis.exchange.Pack("cancel", new(big.Int).SetUint64(id))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, apperror.Wrap(err, apperror.CodeOrderCancelFailed, "pack cancel")
	}

	handle, err := g.submit(ctx, domain.TxRequest{
		Call: domain.Call{To: g.config.Exchange, Data: data},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, err
	}

	span.SetStatus(codes.Ok, "")
	return handle, nil
}

// TakeOrder fills a resting order. fill is denominated in the maker's
// sell asset and may be less than the full order.
func (g *Gateway) TakeOrder(ctx context.Context, id uint64, fill asset.Amount) (domain.TxHandle, error) {
	ctx, span := g.tracer.Start(ctx, "exchange.take_order",
		trace.WithAttributes(
			attribute.Int64("order_id", int64(id)),
			attribute.String("fill", fill.String()),
		))
	defer span.End()

	call, err := g.PackTake(id, fill)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, err
	}

	handle, err := g.submit(ctx, domain.TxRequest{Call: call})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, err
	}

	span.SetStatus(codes.Ok, "")
	return handle, nil
}

// PackTake encodes a take as a raw call for batch execution.
func (g *Gateway) PackTake(id uint64, fill asset.Amount) (domain.Call, error) {
	data, err := g.abis.exchange.Pack("take", new(big.Int).SetUint64(id), fill.Raw())
	if err != nil {
		return domain.Call{}, apperror.Wrap(err, apperror.CodeContractCallFailed, "pack take")
	}
	return domain.Call{To: g.config.Exchange, Data: data}, nil
}
