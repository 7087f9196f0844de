package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dexkeep/keeperbot/internal/asset"
)

// PriceSource identifies where a reference price came from.
type PriceSource string

const (
	SourceFeed   PriceSource = "feed"   // external ticker feed
	SourceOracle PriceSource = "oracle" // on-chain oracle
)

// Tick is one observation from the external ticker feed.
type Tick struct {
	Symbol string
	Price  decimal.Decimal
	At     time.Time
}

// IsStale reports whether the tick is older than maxAge.
func (t Tick) IsStale(maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return time.Since(t.At) > maxAge
}

// ReferencePrice is the per-pair price the keepers steer by, together
// with the source that supplied it.
type ReferencePrice struct {
	Pair   Pair
	Value  asset.Price
	Source PriceSource
}

// Rate returns the price in quote units per base unit.
func (r ReferencePrice) Rate() decimal.Decimal {
	return r.Value.Rate()
}

// At returns the observation time of the underlying price.
func (r ReferencePrice) At() time.Time {
	return r.Value.Timestamp()
}
