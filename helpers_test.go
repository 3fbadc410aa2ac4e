package hdbscan

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"
)

// bruteCoreDistances computes core distances from a full distance matrix.
func bruteCoreDistances(data []float64, n, dims, minSamples int, metric DistanceMetric) []float64 {
	minSamples = max(min(minSamples, n-1), 0)
	core := make([]float64, n)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			row[j] = metric.Distance(data[i*dims:(i+1)*dims], data[j*dims:(j+1)*dims])
		}
		sort.Float64s(row)
		core[i] = row[minSamples]
	}
	return core
}

// bruteMSTWeight is the total weight of the mutual reachability MST computed
// by dense Prim over the full matrix.
func bruteMSTWeight(data []float64, n, dims, minSamples int, metric DistanceMetric, alpha float64) float64 {
	if n <= 1 {
		return 0
	}
	core := bruteCoreDistances(data, n, dims, minSamples, metric)
	mr := func(i, j int) float64 {
		d := metric.Distance(data[i*dims:(i+1)*dims], data[j*dims:(j+1)*dims]) / alpha
		return max(d, core[i], core[j])
	}

	inTree := make([]bool, n)
	best := make([]float64, n)
	for i := range best {
		best[i] = math.Inf(1)
	}
	best[0] = 0
	total := 0.0
	for range n {
		u := -1
		for j := 0; j < n; j++ {
			if !inTree[j] && (u == -1 || best[j] < best[u]) {
				u = j
			}
		}
		inTree[u] = true
		total += best[u]
		for j := 0; j < n; j++ {
			if !inTree[j] {
				best[j] = min(best[j], mr(u, j))
			}
		}
	}
	return total
}

// randomPoints returns n uniformly distributed points in [0, scale)^dims
// from a fixed seed.
func randomPoints(seed uint64, n, dims int, scale float64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data := make([]float64, n*dims)
	for i := range data {
		data[i] = rng.Float64() * scale
	}
	return data
}

// mustKDTree builds a KD-tree or fails the test.
func mustKDTree(t testing.TB, data []float64, n, dims int, metric DistanceMetric, leafSize int) *KDTree {
	t.Helper()
	tree, err := NewKDTree(data, n, dims, metric, leafSize)
	if err != nil {
		t.Fatalf("NewKDTree: %v", err)
	}
	return tree
}

// checkSpanningTree fails the test unless edges form a spanning tree over n
// points.
func checkSpanningTree(t *testing.T, edges []Edge, n int) {
	t.Helper()
	if len(edges) != n-1 {
		t.Fatalf("expected %d edges, got %d", n-1, len(edges))
	}
	uf := newBoruvkaUnionFind(n)
	for i, e := range edges {
		if e.Source < 0 || e.Source >= n || e.Target < 0 || e.Target >= n {
			t.Fatalf("edge %d out of range: %+v", i, e)
		}
		if uf.find(e.Source) == uf.find(e.Target) {
			t.Fatalf("edge %d closes a cycle: %+v", i, e)
		}
		uf.union(e.Source, e.Target)
	}
}
