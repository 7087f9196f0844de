package domain

import (
	"strings"

	"github.com/dexkeep/keeperbot/internal/asset"
)

// Path length bounds. Two edges is the shortest loop that returns to the
// base asset; beyond three the gas cost dominates any realistic spread.
const (
	MinPathLen = 2
	MaxPathLen = 3
)

// Path is an ordered chain of edges that starts and ends in the base
// asset. Intermediate assets never repeat.
type Path struct {
	Edges []Edge
}

// Len returns the number of edges.
func (p Path) Len() int {
	return len(p.Edges)
}

// Start returns the asset the path consumes.
func (p Path) Start() *asset.Asset {
	return p.Edges[0].Source
}

// End returns the asset the path produces.
func (p Path) End() *asset.Asset {
	return p.Edges[len(p.Edges)-1].Target
}

// Key identifies the path within one cycle: the joined edge keys. Keys
// order deterministically, which breaks ties when two paths quote the
// same profit at the same length.
func (p Path) Key() string {
	keys := make([]string, len(p.Edges))
	for i, e := range p.Edges {
		keys[i] = e.Key()
	}
	return strings.Join(keys, "/")
}

// String describes the asset route, e.g. "WETH->DAI->WETH".
func (p Path) String() string {
	var sb strings.Builder
	sb.WriteString(p.Start().Symbol())
	for _, e := range p.Edges {
		sb.WriteString("->")
		sb.WriteString(e.Target.Symbol())
	}
	return sb.String()
}

// EnumeratePaths finds every 2- and 3-edge path through edges that starts
// and ends in base without revisiting an asset in between. Edges are
// sorted first, so the result order depends only on the edge set.
func EnumeratePaths(edges []Edge, base *asset.Asset) []Path {
	sorted := make([]Edge, len(edges))
	copy(sorted, edges)
	SortEdges(sorted)

	var paths []Path
	for _, first := range sorted {
		if !first.Source.Equals(base) || first.Target.Equals(base) {
			continue
		}
		for _, second := range sorted {
			if !second.Source.Equals(first.Target) {
				continue
			}
			if second.Target.Equals(base) {
				paths = append(paths, Path{Edges: []Edge{first, second}})
				continue
			}
			if second.Target.Equals(first.Target) {
				continue
			}
			for _, third := range sorted {
				if !third.Source.Equals(second.Target) || !third.Target.Equals(base) {
					continue
				}
				paths = append(paths, Path{Edges: []Edge{first, second, third}})
			}
		}
	}
	return paths
}
