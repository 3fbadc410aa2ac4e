package hdbscan

import (
	"cmp"
	"slices"
)

// Edge is one minimum spanning tree edge between two original point indices.
// Weight is the mutual reachability distance.
type Edge struct {
	Source int
	Target int
	Weight float64
}

// SortEdges sorts edges ascending by weight in place. Equal weights keep
// their relative order.
func SortEdges(edges []Edge) {
	slices.SortStableFunc(edges, func(a, b Edge) int {
		return cmp.Compare(a.Weight, b.Weight)
	})
}

// EdgesSorted reports whether edges are in non-decreasing weight order.
func EdgesSorted(edges []Edge) bool {
	return slices.IsSortedFunc(edges, func(a, b Edge) int {
		return cmp.Compare(a.Weight, b.Weight)
	})
}

// TotalWeight sums the edge weights.
func TotalWeight(edges []Edge) float64 {
	var total float64
	for _, e := range edges {
		total += e.Weight
	}
	return total
}

// EdgeRows returns the edges as [source, target, weight] rows.
func EdgeRows(edges []Edge) [][3]float64 {
	out := make([][3]float64, len(edges))
	for i, e := range edges {
		out[i] = [3]float64{float64(e.Source), float64(e.Target), e.Weight}
	}
	return out
}
