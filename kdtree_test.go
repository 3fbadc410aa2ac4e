package hdbscan

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/cockroachdb/errors"
)

// --- Construction tests ---

func TestKDTree_Construction_BasicProperties(t *testing.T) {
	// 6 points in 2D
	data := []float64{
		0, 0,
		1, 0,
		2, 0,
		0, 3,
		1, 3,
		2, 3,
	}
	n, dims := 6, 2
	tree := mustKDTree(t, data, n, dims, EuclideanMetric{}, 2)

	if tree.NumPoints() != n {
		t.Errorf("NumPoints() = %d, want %d", tree.NumPoints(), n)
	}
	if tree.NumFeatures() != dims {
		t.Errorf("NumFeatures() = %d, want %d", tree.NumFeatures(), dims)
	}
	if tree.NumNodes() < 1 {
		t.Errorf("NumNodes() = %d, want >= 1", tree.NumNodes())
	}

	// IdxArray should be a permutation of 0..n-1.
	idx := tree.IdxArray()
	if len(idx) != n {
		t.Fatalf("IdxArray length = %d, want %d", len(idx), n)
	}
	seen := make(map[int]bool)
	for _, v := range idx {
		if v < 0 || v >= n {
			t.Errorf("IdxArray contains out-of-range index %d", v)
		}
		if seen[v] {
			t.Errorf("IdxArray contains duplicate index %d", v)
		}
		seen[v] = true
	}
}

func TestKDTree_Construction_LeavesHoldLeafSize(t *testing.T) {
	n, dims := 37, 2
	data := randomPoints(7, n, dims, 10)

	for _, leafSize := range []int{1, 2, 3, 5, 40} {
		tree := mustKDTree(t, data, n, dims, EuclideanMetric{}, leafSize)
		total := 0
		for i, nd := range tree.NodeDataArray() {
			if !nd.IsLeaf {
				continue
			}
			size := nd.IdxEnd - nd.IdxStart
			if size < min(leafSize, n) {
				t.Errorf("leafSize=%d: leaf %d has %d points", leafSize, i, size)
			}
			total += size
		}
		if total != n {
			t.Errorf("leafSize=%d: leaves cover %d points, want %d", leafSize, total, n)
		}
	}
}

func TestKDTree_Construction_NodeCount(t *testing.T) {
	cases := []struct {
		n, leafSize, want int
	}{
		{1, 10, 1},
		{4, 1, 3},
		{5, 1, 7},
		{40, 40, 1},
		{41, 40, 1},
		{81, 40, 3},
		{1000, 13, 127},
	}
	for _, c := range cases {
		tree := mustKDTree(t, randomPoints(1, c.n, 2, 1), c.n, 2, EuclideanMetric{}, c.leafSize)
		if tree.NumNodes() != c.want {
			t.Errorf("n=%d leafSize=%d: NumNodes() = %d, want %d", c.n, c.leafSize, tree.NumNodes(), c.want)
		}
		if len(tree.NodeDataArray()) != tree.NumNodes() {
			t.Errorf("n=%d leafSize=%d: %d node entries for %d nodes", c.n, c.leafSize, len(tree.NodeDataArray()), tree.NumNodes())
		}
	}
}

func TestKDTree_Construction_Errors(t *testing.T) {
	if _, err := NewKDTree(nil, 0, 2, EuclideanMetric{}, 10); !errors.Is(err, ErrEmptyData) {
		t.Errorf("empty data: expected ErrEmptyData, got %v", err)
	}
	if _, err := NewKDTree([]float64{1, 2, 3}, 2, 2, EuclideanMetric{}, 10); !errors.Is(err, ErrRaggedData) {
		t.Errorf("short data: expected ErrRaggedData, got %v", err)
	}
	if _, err := NewKDTree([]float64{0, 0, math.NaN(), 0, 1, 1}, 3, 2, EuclideanMetric{}, 10); !errors.Is(err, ErrNaNData) {
		t.Errorf("NaN coordinate: expected ErrNaNData, got %v", err)
	}
	if _, err := NewKDTree([]float64{0, 0, math.Inf(1), 0, 1, 1}, 3, 2, EuclideanMetric{}, 10); err != nil {
		t.Errorf("infinite coordinate: unexpected error %v", err)
	}
	if _, err := NewKDTree([]float64{1, 2}, 1, 2, MinkowskiMetric{P: 0.5}, 10); !errors.Is(err, ErrUnsupportedMetric) {
		t.Errorf("p<1: expected ErrUnsupportedMetric, got %v", err)
	}
}

func TestKDTree_Radius_CoversPoints(t *testing.T) {
	n, dims := 64, 3
	data := randomPoints(9, n, dims, 4)
	metric := EuclideanMetric{}
	tree := mustKDTree(t, data, n, dims, metric, 4)

	for i, nd := range tree.NodeDataArray() {
		base := i * dims
		centre := make([]float64, dims)
		for d := 0; d < dims; d++ {
			centre[d] = (tree.nodeBoundsMin[base+d] + tree.nodeBoundsMax[base+d]) / 2
		}
		for j := nd.IdxStart; j < nd.IdxEnd; j++ {
			p := tree.idxArray[j]
			if d := metric.Distance(centre, data[p*dims:(p+1)*dims]); d > nd.Radius+floatTol {
				t.Errorf("node %d: point %d at %v outside radius %v", i, p, d, nd.Radius)
			}
		}
	}
}

func TestKDTree_Construction_LeafSizeLargerThanN(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	tree := mustKDTree(t, data, 2, 2, EuclideanMetric{}, 100)

	// All points fit in one leaf.
	nodes := tree.NodeDataArray()
	if len(nodes) != 1 {
		t.Errorf("expected 1 node for leafSize > n, got %d", len(nodes))
	}
	if !nodes[0].IsLeaf {
		t.Error("root should be a leaf when leafSize > n")
	}
}

func TestKDTree_Construction_SinglePoint(t *testing.T) {
	data := []float64{5, 5}
	tree := mustKDTree(t, data, 1, 2, EuclideanMetric{}, 10)

	if tree.NumPoints() != 1 {
		t.Errorf("NumPoints() = %d, want 1", tree.NumPoints())
	}
	if tree.NumNodes() != 1 {
		t.Errorf("NumNodes() = %d, want 1", tree.NumNodes())
	}
}

func TestKDTree_Construction_TwoPoints(t *testing.T) {
	data := []float64{0, 0, 10, 10}
	tree := mustKDTree(t, data, 2, 2, EuclideanMetric{}, 1)

	if tree.NumPoints() != 2 {
		t.Errorf("NumPoints() = %d, want 2", tree.NumPoints())
	}
}

// --- KNN query tests ---

func TestKDTree_KNN_BruteForceMatch(t *testing.T) {
	// 5 points in 2D: compare tree KNN to brute-force.
	data := []float64{
		0, 0,
		3, 0,
		0, 4,
		3, 4,
		1.5, 2,
	}
	n, dims := 5, 2

	for _, metric := range []DistanceMetric{
		EuclideanMetric{},
		ManhattanMetric{},
	} {
		tree := mustKDTree(t, data, n, dims, metric, 1)
		for k := 1; k <= n; k++ {
			indices, distances := tree.QueryKNN(data, n, k)
			for q := 0; q < n; q++ {
				bruteIdx, bruteDist := bruteForceKNN(data, n, dims, q, k, metric)
				if !knnResultsMatch(indices[q], distances[q], bruteIdx, bruteDist, floatTol) {
					t.Errorf("metric=%T k=%d query=%d: tree KNN doesn't match brute force.\n  tree: idx=%v dist=%v\n  brute: idx=%v dist=%v",
						metric, k, q, indices[q], distances[q], bruteIdx, bruteDist)
				}
			}
		}
	}
}

func TestKDTree_KNN_Minkowski(t *testing.T) {
	data := []float64{
		0, 0,
		1, 0,
		0, 1,
		1, 1,
	}
	n, dims := 4, 2
	metric := MinkowskiMetric{P: 3}
	tree := mustKDTree(t, data, n, dims, metric, 1)

	for k := 1; k <= n; k++ {
		indices, distances := tree.QueryKNN(data, n, k)
		for q := 0; q < n; q++ {
			bruteIdx, bruteDist := bruteForceKNN(data, n, dims, q, k, metric)
			if !knnResultsMatch(indices[q], distances[q], bruteIdx, bruteDist, floatTol) {
				t.Errorf("k=%d query=%d: tree KNN doesn't match brute force", k, q)
			}
		}
	}
}

func TestKDTree_KNN_AllSamePoints(t *testing.T) {
	// All 4 points are identical.
	data := []float64{5, 5, 5, 5, 5, 5, 5, 5}
	n, dims := 4, 2
	tree := mustKDTree(t, data, n, dims, EuclideanMetric{}, 2)

	indices, distances := tree.QueryKNN(data, n, 3)
	for q := 0; q < n; q++ {
		for j := 0; j < len(distances[q]); j++ {
			if distances[q][j] != 0 {
				t.Errorf("query %d: expected all distances 0, got %v", q, distances[q][j])
			}
		}
		if len(indices[q]) != 3 {
			t.Errorf("query %d: expected 3 results, got %d", q, len(indices[q]))
		}
	}
}

func TestKDTree_KNN_KEqualsN(t *testing.T) {
	data := []float64{0, 0, 1, 1, 2, 2}
	n, dims := 3, 2
	tree := mustKDTree(t, data, n, dims, EuclideanMetric{}, 1)

	indices, distances := tree.QueryKNN(data, n, n)
	for q := 0; q < n; q++ {
		if len(indices[q]) != n {
			t.Errorf("query %d: expected %d results, got %d", q, n, len(indices[q]))
		}
		// First distance should be 0 (self).
		if distances[q][0] != 0 {
			t.Errorf("query %d: expected self-distance 0, got %v", q, distances[q][0])
		}
	}
}

// --- MinRdistDual tests ---

func TestKDTree_MinRdistDual_SameNode(t *testing.T) {
	data := []float64{0, 0, 1, 1, 2, 2, 3, 3}
	tree := mustKDTree(t, data, 4, 2, EuclideanMetric{}, 2)

	// MinRdistDual of a node with itself should be 0.
	rdist := tree.MinRdistDual(0, 0)
	if rdist != 0 {
		t.Errorf("MinRdistDual(0, 0) = %v, want 0", rdist)
	}
}

func TestKDTree_MinRdistDual_LowerBound(t *testing.T) {
	data := []float64{
		0, 0,
		1, 0,
		10, 0,
		11, 0,
	}
	n, dims := 4, 2
	tree := mustKDTree(t, data, n, dims, EuclideanMetric{}, 2)

	// For all pairs of nodes, verify that MinRdistDual is a valid lower bound
	// on the actual reduced distance between any pair of points in the nodes.
	for i := 0; i < tree.NumNodes(); i++ {
		for j := 0; j < tree.NumNodes(); j++ {
			lb := tree.MinRdistDual(i, j)
			minActual := minRdistBetweenNodes(tree.data, tree.idxArray, tree.nodes, tree.dims, i, j, tree.metric)
			if lb > minActual+floatTol {
				t.Errorf("MinRdistDual(%d, %d) = %v > actual min rdist %v", i, j, lb, minActual)
			}
		}
	}
}

// --- MinRdistPoint tests ---

func TestKDTree_MinRdistPoint_LowerBound(t *testing.T) {
	data := []float64{
		0, 0,
		1, 1,
		5, 5,
		6, 6,
	}
	n, dims := 4, 2
	tree := mustKDTree(t, data, n, dims, EuclideanMetric{}, 2)

	testPoints := [][]float64{
		{3, 3},
		{-1, -1},
		{10, 10},
		{0, 0},
	}

	for _, pt := range testPoints {
		for nodeID := 0; nodeID < tree.NumNodes(); nodeID++ {
			lb := tree.MinRdistPoint(nodeID, pt)
			minActual := minRdistPointToNode(tree.data, tree.idxArray, tree.nodes, tree.dims, nodeID, pt, tree.metric)
			if lb > minActual+floatTol {
				t.Errorf("MinRdistPoint(%d, %v) = %v > actual %v", nodeID, pt, lb, minActual)
			}
		}
	}
}

// --- ChildNodes tests ---

func TestKDTree_ChildNodes(t *testing.T) {
	data := []float64{0, 0, 1, 1, 2, 2, 3, 3}
	tree := mustKDTree(t, data, 4, 2, EuclideanMetric{}, 1)

	left, right := tree.ChildNodes(0)
	if left != 1 || right != 2 {
		t.Errorf("ChildNodes(0) = (%d, %d), want (1, 2)", left, right)
	}
	if tree.Parent(left) != 0 || tree.Parent(right) != 0 {
		t.Errorf("Parent(%d), Parent(%d) = %d, %d, want 0, 0", left, right, tree.Parent(left), tree.Parent(right))
	}
}

// --- KDTreeIndex tests ---

func TestKDTreeIndex_BuildIndex(t *testing.T) {
	data := []float64{0, 0, 1, 1, 2, 2}
	tree, err := KDTreeIndex{}.BuildIndex(context.Background(), data, 3, 2, EuclideanMetric{}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if tree.NumPoints() != 3 {
		t.Errorf("NumPoints() = %d, want 3", tree.NumPoints())
	}
	if tree.(*KDTree).LeafSize() != 3 {
		t.Errorf("LeafSize() = %d, want 3", tree.(*KDTree).LeafSize())
	}
}

func TestKDTreeIndex_BuildIndex_EmptyIsNil(t *testing.T) {
	tree, err := KDTreeIndex{}.BuildIndex(context.Background(), nil, 0, 2, EuclideanMetric{}, 3)
	if !errors.Is(err, ErrEmptyData) {
		t.Fatalf("expected ErrEmptyData, got %v", err)
	}
	if tree != nil {
		t.Errorf("expected nil tree, got %T", tree)
	}
}

func TestKDTreeIndex_BuildIndex_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (KDTreeIndex{}).BuildIndex(ctx, []float64{0, 0}, 1, 2, EuclideanMetric{}, 3); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// --- Helper: brute-force KNN ---

func bruteForceKNN(data []float64, n, dims, queryIdx, k int, metric DistanceMetric) ([]int, []float64) {
	type distIdx struct {
		dist  float64
		index int
	}
	query := data[queryIdx*dims : (queryIdx+1)*dims]
	all := make([]distIdx, n)
	for i := 0; i < n; i++ {
		pt := data[i*dims : (i+1)*dims]
		all[i] = distIdx{dist: metric.Distance(query, pt), index: i}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].dist == all[j].dist {
			return all[i].index < all[j].index
		}
		return all[i].dist < all[j].dist
	})
	if k > n {
		k = n
	}
	idx := make([]int, k)
	dists := make([]float64, k)
	for i := 0; i < k; i++ {
		idx[i] = all[i].index
		dists[i] = all[i].dist
	}
	return idx, dists
}

// knnResultsMatch checks that two KNN results agree on distances (indices
// may differ when distances are tied).
func knnResultsMatch(idx1 []int, dist1 []float64, idx2 []int, dist2 []float64, tol float64) bool {
	if len(dist1) != len(dist2) {
		return false
	}
	for i := range dist1 {
		if !almostEqual(dist1[i], dist2[i], tol) {
			return false
		}
	}
	return true
}

// minRdistBetweenNodes computes the actual minimum reduced distance between
// any pair of points in two tree nodes.
func minRdistBetweenNodes(data []float64, idxArray []int, nodes []NodeData, dims, node1, node2 int, metric DistanceMetric) float64 {
	if node1 >= len(nodes) || node2 >= len(nodes) {
		return math.Inf(1)
	}
	n1 := nodes[node1]
	n2 := nodes[node2]
	if n1.IdxEnd == 0 && n1.IdxStart == 0 && node1 != 0 {
		return math.Inf(1)
	}
	if n2.IdxEnd == 0 && n2.IdxStart == 0 && node2 != 0 {
		return math.Inf(1)
	}
	minRdist := math.Inf(1)
	for i := n1.IdxStart; i < n1.IdxEnd; i++ {
		pi := idxArray[i]
		ptI := data[pi*dims : (pi+1)*dims]
		for j := n2.IdxStart; j < n2.IdxEnd; j++ {
			pj := idxArray[j]
			ptJ := data[pj*dims : (pj+1)*dims]
			rd := metric.ReducedDistance(ptI, ptJ)
			if rd < minRdist {
				minRdist = rd
			}
		}
	}
	return minRdist
}

// minRdistPointToNode computes the actual minimum reduced distance from
// a point to any point in a tree node.
func minRdistPointToNode(data []float64, idxArray []int, nodes []NodeData, dims, nodeID int, point []float64, metric DistanceMetric) float64 {
	if nodeID >= len(nodes) {
		return math.Inf(1)
	}
	nd := nodes[nodeID]
	if nd.IdxEnd == 0 && nd.IdxStart == 0 && nodeID != 0 {
		return math.Inf(1)
	}
	minRdist := math.Inf(1)
	for i := nd.IdxStart; i < nd.IdxEnd; i++ {
		pi := idxArray[i]
		pt := data[pi*dims : (pi+1)*dims]
		rd := metric.ReducedDistance(point, pt)
		if rd < minRdist {
			minRdist = rd
		}
	}
	return minRdist
}
