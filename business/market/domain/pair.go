// Package domain contains the core domain types for the market context.
package domain

import (
	"fmt"
	"strings"

	"github.com/dexkeep/keeperbot/internal/asset"
)

// Pair identifies a tradeable market as base/quote.
// Prices for the pair are always stated in quote units per one base unit.
type Pair struct {
	base  *asset.Asset
	quote *asset.Asset
}

// NewPair creates a Pair from base and quote assets.
func NewPair(base, quote *asset.Asset) (Pair, error) {
	if base == nil || quote == nil {
		return Pair{}, fmt.Errorf("market: pair requires base and quote assets")
	}
	if base.Equals(quote) {
		return Pair{}, fmt.Errorf("market: pair base and quote must differ, got %s", base.Symbol())
	}
	return Pair{base: base, quote: quote}, nil
}

// MustNewPair creates a Pair or panics. For wiring and tests.
func MustNewPair(base, quote *asset.Asset) Pair {
	p, err := NewPair(base, quote)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePair resolves a "BASE-QUOTE" symbol string against the registry
// for one chain.
func ParsePair(s string, registry *asset.Registry, chainID uint64) (Pair, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Pair{}, fmt.Errorf("market: invalid pair %q, want BASE-QUOTE", s)
	}

	base, ok := registry.GetBySymbolAndChain(parts[0], chainID)
	if !ok {
		return Pair{}, fmt.Errorf("market: unknown base asset %q on chain %d", parts[0], chainID)
	}
	quote, ok := registry.GetBySymbolAndChain(parts[1], chainID)
	if !ok {
		return Pair{}, fmt.Errorf("market: unknown quote asset %q on chain %d", parts[1], chainID)
	}

	return NewPair(base, quote)
}

// Base returns the base asset.
func (p Pair) Base() *asset.Asset {
	return p.base
}

// Quote returns the quote asset.
func (p Pair) Quote() *asset.Asset {
	return p.quote
}

// String returns the canonical "BASE-QUOTE" form.
func (p Pair) String() string {
	if p.base == nil || p.quote == nil {
		return "?-?"
	}
	return p.base.Symbol() + "-" + p.quote.Symbol()
}

// Equals compares two pairs by asset identity.
func (p Pair) Equals(other Pair) bool {
	if p.base == nil || p.quote == nil || other.base == nil || other.quote == nil {
		return false
	}
	return p.base.Equals(other.base) && p.quote.Equals(other.quote)
}

// Contains reports whether a is one leg of the pair.
func (p Pair) Contains(a *asset.Asset) bool {
	if a == nil {
		return false
	}
	return a.Equals(p.base) || a.Equals(p.quote)
}

// Side is the direction of an order relative to the pair's base asset.
type Side string

const (
	SideBuy  Side = "buy"  // acquiring base, paying quote
	SideSell Side = "sell" // offering base, asking quote
)

// ParseSide parses a side string.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(s)) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("market: invalid side %q", s)
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}
