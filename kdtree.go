package hdbscan

import (
	"container/heap"
	"context"
	"math"
	"math/bits"
	"sort"

	"github.com/cockroachdb/errors"
)

// KDTree is a KD-tree spatial index for nearest-neighbor queries and
// Borůvka MST acceleration. Points are stored in a flat row-major array
// and reordered internally via an index permutation array.
//
// The tree has a fixed depth chosen from n and the leaf size, so every slot
// of the array layout is a real node:
//   - node i has children at 2*i+1 and 2*i+2
//   - nodes with 2*i+1 >= NumNodes() are leaves
//   - node bounds are stored as min/max per dimension per node
type KDTree struct {
	data     []float64 // flat row-major point data (n * dims)
	n        int       // number of points
	dims     int       // dimensionality
	leafSize int
	metric   DistanceMetric
	p        float64    // Minkowski exponent of metric, +Inf for Chebyshev
	idxArray []int      // permutation: tree-order position → original index
	nodes    []NodeData // one entry per tree node
	// nodeBoundsMin[node*dims + j] = min value of feature j in node
	nodeBoundsMin []float64
	// nodeBoundsMax[node*dims + j] = max value of feature j in node
	nodeBoundsMax []float64
	numNodes      int
}

// NewKDTree builds a KD-tree from flat row-major data with n points of
// dimensionality dims. leafSize sets the minimum number of points per leaf;
// leaves hold between leafSize and roughly 2*leafSize points.
func NewKDTree(data []float64, n, dims int, metric DistanceMetric, leafSize int) (*KDTree, error) {
	if n < 1 {
		return nil, ErrEmptyData
	}
	if dims < 1 {
		return nil, errors.Wrap(ErrEmptyData, "points have no features")
	}
	if len(data) != n*dims {
		return nil, errors.Wrapf(ErrRaggedData, "data length %d does not match %d points of %d features", len(data), n, dims)
	}
	for i, v := range data {
		if math.IsNaN(v) {
			return nil, errors.Wrapf(ErrNaNData, "point %d feature %d", i/dims, i%dims)
		}
	}
	p, ok := metricP(metric)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedMetric, "metric %T", metric)
	}
	if leafSize < 1 {
		leafSize = 1
	}

	// Copy data and build identity index array.
	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)
	idxArray := make([]int, n)
	for i := range idxArray {
		idxArray[i] = i
	}

	numNodes := (1 << kdNumLevels(n, leafSize)) - 1

	t := &KDTree{
		data:          dataCopy,
		n:             n,
		dims:          dims,
		leafSize:      leafSize,
		metric:        metric,
		p:             p,
		idxArray:      idxArray,
		nodes:         make([]NodeData, numNodes),
		nodeBoundsMin: make([]float64, numNodes*dims),
		nodeBoundsMax: make([]float64, numNodes*dims),
		numNodes:      numNodes,
	}
	t.buildNode(0, 0, n)

	return t, nil
}

// kdNumLevels returns 1 + floor(log2(max(1, (n-1)/leafSize))). With this depth
// every leaf is guaranteed at least leafSize points, so internal nodes always
// have two non-empty children.
func kdNumLevels(n, leafSize int) int {
	ratio := (n - 1) / leafSize
	if ratio < 1 {
		ratio = 1
	}
	return bits.Len(uint(ratio))
}

// buildNode recursively builds the tree for points in idxArray[start:end].
func (t *KDTree) buildNode(nodeID, start, end int) {
	t.computeNodeBounds(nodeID, start, end)

	base := nodeID * t.dims
	radius := t.metric.Distance(
		t.nodeBoundsMin[base:base+t.dims],
		t.nodeBoundsMax[base:base+t.dims],
	) / 2

	left := 2*nodeID + 1
	if left >= t.numNodes {
		t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: true, Radius: radius}
		return
	}

	// Find dimension with greatest spread.
	splitDim := 0
	maxSpread := -1.0
	for d := 0; d < t.dims; d++ {
		spread := t.nodeBoundsMax[base+d] - t.nodeBoundsMin[base+d]
		if spread > maxSpread {
			maxSpread = spread
			splitDim = d
		}
	}

	// Sort by the split dimension and split at the median.
	t.sortByDimension(start, end, splitDim)
	mid := start + (end-start)/2

	t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: false, Radius: radius}

	t.buildNode(left, start, mid)
	t.buildNode(left+1, mid, end)
}

// computeNodeBounds computes min/max per dimension for points idxArray[start:end].
func (t *KDTree) computeNodeBounds(nodeID, start, end int) {
	base := nodeID * t.dims
	for d := 0; d < t.dims; d++ {
		t.nodeBoundsMin[base+d] = math.Inf(1)
		t.nodeBoundsMax[base+d] = math.Inf(-1)
	}
	for i := start; i < end; i++ {
		ptIdx := t.idxArray[i]
		for d := 0; d < t.dims; d++ {
			v := t.data[ptIdx*t.dims+d]
			if v < t.nodeBoundsMin[base+d] {
				t.nodeBoundsMin[base+d] = v
			}
			if v > t.nodeBoundsMax[base+d] {
				t.nodeBoundsMax[base+d] = v
			}
		}
	}
}

// sortByDimension sorts idxArray[start:end] by the given dimension. The sort
// is stable so equal coordinates keep input order and builds are reproducible.
func (t *KDTree) sortByDimension(start, end, dim int) {
	sub := t.idxArray[start:end]
	dims := t.dims
	data := t.data
	sort.SliceStable(sub, func(i, j int) bool {
		return data[sub[i]*dims+dim] < data[sub[j]*dims+dim]
	})
}

// --- SpatialTree interface ---

func (t *KDTree) Data() []float64           { return t.data }
func (t *KDTree) NumPoints() int            { return t.n }
func (t *KDTree) NumFeatures() int          { return t.dims }
func (t *KDTree) IdxArray() []int           { return t.idxArray }
func (t *KDTree) NodeDataArray() []NodeData { return t.nodes }

// LeafSize returns the leaf size the tree was built with.
func (t *KDTree) LeafSize() int { return t.leafSize }

// QueryKNN finds the k nearest neighbors for each row in queryData.
func (t *KDTree) QueryKNN(queryData []float64, queryRows, k int) ([][]int, [][]float64) {
	indices := make([][]int, queryRows)
	distances := make([][]float64, queryRows)

	for q := 0; q < queryRows; q++ {
		query := queryData[q*t.dims : (q+1)*t.dims]
		h := make(knnHeap, 0, k)
		t.knnSearch(0, query, k, &h)

		// Extract results sorted by distance (ascending).
		nResults := h.Len()
		idx := make([]int, nResults)
		dist := make([]float64, nResults)
		for i := nResults - 1; i >= 0; i-- {
			item := heap.Pop(&h).(knnItem)
			idx[i] = item.index
			dist[i] = item.dist
		}
		indices[q] = idx
		distances[q] = dist
	}

	return indices, distances
}

// knnSearch performs a single-tree KNN traversal using a max-heap of size k.
func (t *KDTree) knnSearch(nodeID int, query []float64, k int, h *knnHeap) {
	node := t.nodes[nodeID]

	if node.IsLeaf {
		for i := node.IdxStart; i < node.IdxEnd; i++ {
			ptIdx := t.idxArray[i]
			pt := t.data[ptIdx*t.dims : (ptIdx+1)*t.dims]
			d := t.metric.Distance(query, pt)
			if h.Len() < k {
				heap.Push(h, knnItem{index: ptIdx, dist: d})
			} else if d < (*h)[0].dist {
				(*h)[0] = knnItem{index: ptIdx, dist: d}
				heap.Fix(h, 0)
			}
		}
		return
	}

	// Visit the nearer child first.
	left := 2*nodeID + 1
	right := left + 1

	leftRdist := t.MinRdistPoint(left, query)
	rightRdist := t.MinRdistPoint(right, query)

	nearChild, farChild := left, right
	farRdist := rightRdist
	if rightRdist < leftRdist {
		nearChild, farChild = right, left
		farRdist = leftRdist
	}

	t.knnSearch(nearChild, query, k, h)

	// Prune far child if its lower bound exceeds the current k-th distance.
	if h.Len() < k || t.metric.DistToRdist((*h)[0].dist) > farRdist {
		t.knnSearch(farChild, query, k, h)
	}
}

// --- BoruvkaTree interface ---

func (t *KDTree) NumNodes() int { return t.numNodes }

func (t *KDTree) ChildNodes(node int) (left, right int) {
	return 2*node + 1, 2*node + 2
}

func (t *KDTree) Parent(node int) int { return (node - 1) / 2 }

// MinRdistDual returns a lower bound in reduced-distance space on the
// distance between any point in node1 and any point in node2.
// For axis-aligned boxes, this computes the per-dimension gap and
// aggregates according to the metric.
func (t *KDTree) MinRdistDual(node1, node2 int) float64 {
	base1 := node1 * t.dims
	base2 := node2 * t.dims

	var rdist float64
	for j := 0; j < t.dims; j++ {
		// Gap between boxes along dimension j: max(d1, d2, 0).
		d1 := t.nodeBoundsMin[base1+j] - t.nodeBoundsMax[base2+j]
		d2 := t.nodeBoundsMin[base2+j] - t.nodeBoundsMax[base1+j]
		rdist = t.foldGap(rdist, math.Max(d1, math.Max(d2, 0)))
	}
	return rdist
}

// MinRdistPoint returns a lower bound in reduced-distance space on the
// distance between a point and any point in the given node.
func (t *KDTree) MinRdistPoint(node int, point []float64) float64 {
	base := node * t.dims

	var rdist float64
	for j := 0; j < t.dims; j++ {
		lo := t.nodeBoundsMin[base+j]
		hi := t.nodeBoundsMax[base+j]
		var d float64
		if point[j] < lo {
			d = lo - point[j]
		} else if point[j] > hi {
			d = point[j] - hi
		}
		rdist = t.foldGap(rdist, d)
	}
	return rdist
}

// foldGap adds one non-negative per-axis gap to a running reduced distance.
func (t *KDTree) foldGap(acc, gap float64) float64 {
	switch {
	case t.p == 1:
		return acc + gap
	case t.p == 2:
		return acc + gap*gap
	case math.IsInf(t.p, 1):
		return math.Max(acc, gap)
	default:
		return acc + math.Pow(gap, t.p)
	}
}

// metricP returns the Minkowski exponent of a KD-compatible metric.
// ok is false for metrics that do not decompose along coordinate axes.
func metricP(m DistanceMetric) (p float64, ok bool) {
	switch v := m.(type) {
	case EuclideanMetric:
		return 2, true
	case ManhattanMetric:
		return 1, true
	case ChebyshevMetric:
		return math.Inf(1), true
	case MinkowskiMetric:
		return v.P, v.P >= 1
	default:
		return 0, false
	}
}

// KDTreeIndex is the default IndexBuilder.
type KDTreeIndex struct{}

// BuildIndex builds a KDTree over the points.
func (KDTreeIndex) BuildIndex(ctx context.Context, data []float64, n, dims int, metric DistanceMetric, leafSize int) (BoruvkaTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tree, err := NewKDTree(data, n, dims, metric, leafSize)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// --- max-heap for KNN queries ---

type knnItem struct {
	index int
	dist  float64
}

// knnHeap is a max-heap of knnItem (largest distance on top) used as a
// bounded priority queue for KNN queries.
type knnHeap []knnItem

func (h knnHeap) Len() int           { return len(h) }
func (h knnHeap) Less(i, j int) bool { return h[i].dist > h[j].dist } // max-heap
func (h knnHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *knnHeap) Push(x any)        { *h = append(*h, x.(knnItem)) }
func (h *knnHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
