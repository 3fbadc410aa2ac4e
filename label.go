package hdbscan

import "github.com/cockroachdb/errors"

// Merge is one row of a single-linkage dendrogram in scipy format. Left and
// Right are point indices (< n) or earlier merges (n + row index).
type Merge struct {
	Left     int
	Right    int
	Distance float64
	Size     int
}

// SingleLinkageTree is the dendrogram built from a sorted spanning tree.
// Row i creates cluster n+i.
type SingleLinkageTree []Merge

// Len returns the number of merges.
func (t SingleLinkageTree) Len() int { return len(t) }

// Rows returns the tree as [left, right, distance, size] rows, the layout of
// scipy's linkage matrix.
func (t SingleLinkageTree) Rows() [][4]float64 {
	out := make([][4]float64, len(t))
	for i, m := range t {
		out[i] = [4]float64{float64(m.Left), float64(m.Right), m.Distance, float64(m.Size)}
	}
	return out
}

// Label converts spanning tree edges into a single-linkage dendrogram. The
// edges must already be sorted ascending by weight; use SortEdges first.
// Returns ErrUnsortedEdges when they are not, ErrEdgeOutOfRange when an edge
// names a point outside [0, n), and ErrNotATree when the edges contain a cycle.
func Label(edges []Edge, n int) (SingleLinkageTree, error) {
	if len(edges) == 0 {
		return SingleLinkageTree{}, nil
	}
	if !EdgesSorted(edges) {
		return nil, ErrUnsortedEdges
	}

	uf := NewUnionFind(n)
	result := make(SingleLinkageTree, 0, len(edges))

	for i, edge := range edges {
		if edge.Source < 0 || edge.Source >= n || edge.Target < 0 || edge.Target >= n {
			return nil, errors.Wrapf(ErrEdgeOutOfRange, "edge %d (%d, %d) with n=%d", i, edge.Source, edge.Target, n)
		}
		if i >= n-1 {
			return nil, errors.Wrapf(ErrNotATree, "%d edges for %d points", len(edges), n)
		}

		aa := uf.Find(edge.Source)
		bb := uf.Find(edge.Target)
		if aa == bb {
			return nil, errors.Wrapf(ErrNotATree, "edge %d (%d, %d) closes a cycle", i, edge.Source, edge.Target)
		}

		label := uf.Union(aa, bb)
		result = append(result, Merge{
			Left:     aa,
			Right:    bb,
			Distance: edge.Weight,
			Size:     uf.Size(label),
		})
	}

	return result, nil
}
