package domain

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OrderBook is a point-in-time snapshot of the resting orders for one pair.
type OrderBook struct {
	Pair      Pair
	Orders    []Order
	FetchedAt time.Time
}

// NewOrderBook creates an order book snapshot, keeping only orders that
// belong to the pair.
func NewOrderBook(pair Pair, orders []Order, fetchedAt time.Time) *OrderBook {
	kept := make([]Order, 0, len(orders))
	for _, o := range orders {
		if _, err := o.SideFor(pair); err == nil {
			kept = append(kept, o)
		}
	}
	return &OrderBook{Pair: pair, Orders: kept, FetchedAt: fetchedAt}
}

// SellOrders returns the sell side of the book, cheapest first.
// Ties are broken by ascending order ID so iteration is deterministic.
func (b *OrderBook) SellOrders() []Order {
	return b.sideSorted(SideSell, true)
}

// BuyOrders returns the buy side of the book, highest bid first.
func (b *OrderBook) BuyOrders() []Order {
	return b.sideSorted(SideBuy, false)
}

// SideOrders returns one side of the book in taker-preferred order.
func (b *OrderBook) SideOrders(side Side) []Order {
	if side == SideSell {
		return b.SellOrders()
	}
	return b.BuyOrders()
}

// OwnOrders returns the orders owned by owner, both sides, by ascending ID.
func (b *OrderBook) OwnOrders(owner common.Address) []Order {
	var own []Order
	for _, o := range b.Orders {
		if o.Owner == owner {
			own = append(own, o)
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].ID < own[j].ID })
	return own
}

// BestSell returns the cheapest sell order, if any.
func (b *OrderBook) BestSell() (Order, bool) {
	sells := b.SellOrders()
	if len(sells) == 0 {
		return Order{}, false
	}
	return sells[0], true
}

// BestBuy returns the highest buy order, if any.
func (b *OrderBook) BestBuy() (Order, bool) {
	buys := b.BuyOrders()
	if len(buys) == 0 {
		return Order{}, false
	}
	return buys[0], true
}

func (b *OrderBook) sideSorted(side Side, ascending bool) []Order {
	type priced struct {
		order Order
		price decimal.Decimal
	}

	var out []priced
	for _, o := range b.Orders {
		s, err := o.SideFor(b.Pair)
		if err != nil || s != side {
			continue
		}
		p, err := o.PriceFor(b.Pair)
		if err != nil {
			continue
		}
		out = append(out, priced{order: o, price: p})
	}

	sort.SliceStable(out, func(i, j int) bool {
		cmp := out[i].price.Cmp(out[j].price)
		if cmp == 0 {
			return out[i].order.ID < out[j].order.ID
		}
		if ascending {
			return cmp < 0
		}
		return cmp > 0
	})

	orders := make([]Order, len(out))
	for i, p := range out {
		orders[i] = p.order
	}
	return orders
}
