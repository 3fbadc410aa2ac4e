package hdbscan

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// boruvkaUnionFind is a lightweight union-find for Borůvka MST construction.
// It uses union by rank and path compression (halving).
type boruvkaUnionFind struct {
	parent      []int
	rank        []int
	isComponent []bool // true if this element is a component root
}

func newBoruvkaUnionFind(n int) *boruvkaUnionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	isComp := make([]bool, n)
	for i := range parent {
		parent[i] = i
		isComp[i] = true
	}
	return &boruvkaUnionFind{parent: parent, rank: rank, isComponent: isComp}
}

func (uf *boruvkaUnionFind) find(x int) int {
	// Path halving: every other node points to its grandparent.
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *boruvkaUnionFind) union(x, y int) {
	xr := uf.find(x)
	yr := uf.find(y)
	if xr == yr {
		return
	}
	switch {
	case uf.rank[xr] < uf.rank[yr]:
		uf.parent[xr] = yr
		uf.isComponent[xr] = false
	case uf.rank[xr] > uf.rank[yr]:
		uf.parent[yr] = xr
		uf.isComponent[yr] = false
	default:
		uf.parent[yr] = xr
		uf.isComponent[yr] = false
		uf.rank[xr]++
	}
}

// components returns the list of current component root indices.
func (uf *boruvkaUnionFind) components() []int {
	var out []int
	for i, v := range uf.isComponent {
		if v {
			out = append(out, i)
		}
	}
	return out
}

// boruvkaState holds the shared state for one dual-tree Borůvka run.
// All distances (core, candidate, bounds) are stored in true distance space;
// MinRdistDual results are converted before comparing with bounds.
type boruvkaState struct {
	tree       BoruvkaTree
	metric     DistanceMetric
	alpha      float64
	minSamples int
	approx     bool

	numPoints   int
	numFeatures int
	numNodes    int
	nodes       []NodeData
	idxArray    []int
	data        []float64

	// Per-point data, indexed by original point index. Candidate slots are
	// indexed by component root.
	coreDistance      []float64
	componentOfPoint  []int
	candidateNeighbor []int
	candidatePoint    []int
	candidateDist     []float64

	// Per-node data. componentOfNode is negative while a node spans more
	// than one component.
	componentOfNode []int
	bounds          []float64

	uf         *boruvkaUnionFind
	components []int

	edges []Edge
}

func newBoruvkaState(tree BoruvkaTree, params SpanningTreeParams) *boruvkaState {
	n := tree.NumPoints()
	numNodes := tree.NumNodes()

	s := &boruvkaState{
		tree:        tree,
		metric:      params.Metric,
		alpha:       params.Alpha,
		minSamples:  min(params.MinSamples, n-1),
		approx:      params.Approx,
		numPoints:   n,
		numFeatures: tree.NumFeatures(),
		numNodes:    numNodes,
		nodes:       tree.NodeDataArray(),
		idxArray:    tree.IdxArray(),
		data:        tree.Data(),

		componentOfPoint:  make([]int, n),
		candidateNeighbor: make([]int, n),
		candidatePoint:    make([]int, n),
		candidateDist:     make([]float64, n),
		componentOfNode:   make([]int, numNodes),
		bounds:            make([]float64, numNodes),

		uf:    newBoruvkaUnionFind(n),
		edges: make([]Edge, 0, n-1),
	}
	if s.alpha == 0 {
		s.alpha = 1
	}

	for i := 0; i < n; i++ {
		s.componentOfPoint[i] = i
		s.candidateNeighbor[i] = -1
		s.candidatePoint[i] = -1
		s.candidateDist[i] = math.MaxFloat64
	}
	for i := 0; i < numNodes; i++ {
		s.componentOfNode[i] = -(i + 1)
		s.bounds[i] = math.MaxFloat64
	}
	s.components = s.uf.components()

	return s
}

// computeBounds computes core distances and seeds each point's candidate
// from its own neighborhood, then applies the first round of merges.
func (s *boruvkaState) computeBounds(ctx context.Context, jobs, chunk int) error {
	nb, err := QueryAllKNN(ctx, s.tree, s.minSamples+1, jobs, chunk)
	if err != nil {
		return err
	}
	s.coreDistance = CoreDistances(nb, s.minSamples)

	// Every mutual reachability edge out of i weighs at least core[i]. A
	// neighbor m reaching that value is therefore an exact minimum.
	for i := 0; i < s.numPoints; i++ {
		for k, m := range nb.Indices[i] {
			if m == i {
				continue
			}
			if s.coreDistance[m] <= s.coreDistance[i] && nb.Distances[i][k]/s.alpha <= s.coreDistance[i] {
				s.candidatePoint[i] = i
				s.candidateNeighbor[i] = m
				s.candidateDist[i] = s.coreDistance[i]
				break
			}
		}
	}

	s.updateComponents()
	return nil
}

// updateComponents adds every component's candidate edge that still joins two
// components, refreshes component labels on points and nodes, and returns the
// number of edges added.
func (s *boruvkaState) updateComponents() int {
	added := 0
	for _, component := range s.components {
		source := s.candidatePoint[component]
		sink := s.candidateNeighbor[component]
		if source == -1 || sink == -1 {
			continue
		}
		weight := s.candidateDist[component]
		s.candidatePoint[component] = -1
		s.candidateNeighbor[component] = -1
		s.candidateDist[component] = math.MaxFloat64

		if s.uf.find(source) == s.uf.find(sink) {
			continue
		}

		s.edges = append(s.edges, Edge{Source: source, Target: sink, Weight: weight})
		s.uf.union(source, sink)
		added++

		if len(s.edges) == s.numPoints-1 {
			s.components = s.uf.components()
			return added
		}
	}

	for i := 0; i < s.numPoints; i++ {
		s.componentOfPoint[i] = s.uf.find(i)
	}

	// Children always sit after their parent, so a reverse sweep is bottom-up.
	for n := s.numNodes - 1; n >= 0; n-- {
		nd := s.nodes[n]
		if nd.IsLeaf {
			if nd.IdxStart >= nd.IdxEnd {
				continue
			}
			comp := s.componentOfPoint[s.idxArray[nd.IdxStart]]
			allSame := true
			for i := nd.IdxStart + 1; i < nd.IdxEnd; i++ {
				if s.componentOfPoint[s.idxArray[i]] != comp {
					allSame = false
					break
				}
			}
			if allSame {
				s.componentOfNode[n] = comp
			}
			continue
		}
		left, right := s.tree.ChildNodes(n)
		if s.componentOfNode[left] == s.componentOfNode[right] && s.componentOfNode[left] >= 0 {
			s.componentOfNode[n] = s.componentOfNode[left]
		}
	}

	last := len(s.components)
	s.components = s.uf.components()

	// Approximate mode keeps stale bounds unless a round stalled.
	if !s.approx || last == len(s.components) {
		for i := range s.bounds {
			s.bounds[i] = math.MaxFloat64
		}
	}

	return added
}

// nodePairDist lower-bounds the mutual reachability distance between any
// point of node1 and any point of node2.
func (s *boruvkaState) nodePairDist(node1, node2 int) float64 {
	return s.metric.RdistToDist(s.tree.MinRdistDual(node1, node2)) / s.alpha
}

func (s *boruvkaState) dualTreeTraversal(node1, node2 int) {
	nodeDist := s.nodePairDist(node1, node2)

	// Prune: nothing in node2 can beat the worst candidate in node1.
	if nodeDist >= s.bounds[node1] {
		return
	}
	// Prune: both nodes lie in the same component.
	if s.componentOfNode[node1] == s.componentOfNode[node2] && s.componentOfNode[node1] >= 0 {
		return
	}

	node1Info := s.nodes[node1]
	node2Info := s.nodes[node2]

	if node1Info.IsLeaf && node2Info.IsLeaf {
		s.processLeafPair(node1, node2)
		return
	}

	// Descend into node2 when node1 is a leaf or node2 is the larger node.
	if node1Info.IsLeaf || (!node2Info.IsLeaf && nodeSize(node2Info) > nodeSize(node1Info)) {
		left, right := s.tree.ChildNodes(node2)
		if s.nodePairDist(node1, left) < s.nodePairDist(node1, right) {
			s.dualTreeTraversal(node1, left)
			s.dualTreeTraversal(node1, right)
		} else {
			s.dualTreeTraversal(node1, right)
			s.dualTreeTraversal(node1, left)
		}
		return
	}

	left, right := s.tree.ChildNodes(node1)
	if s.nodePairDist(left, node2) < s.nodePairDist(right, node2) {
		s.dualTreeTraversal(left, node2)
		s.dualTreeTraversal(right, node2)
	} else {
		s.dualTreeTraversal(right, node2)
		s.dualTreeTraversal(left, node2)
	}
}

func nodeSize(nd NodeData) float64 {
	if nd.Radius > 0 {
		return nd.Radius
	}
	return float64(nd.IdxEnd - nd.IdxStart)
}

func (s *boruvkaState) processLeafPair(node1, node2 int) {
	dims := s.numFeatures
	n1 := s.nodes[node1]
	n2 := s.nodes[node2]

	newUpperBound := 0.0

	for i := n1.IdxStart; i < n1.IdxEnd; i++ {
		p := s.idxArray[i]
		comp1 := s.componentOfPoint[p]

		// No edge out of p can beat its component's current candidate.
		if s.coreDistance[p] > s.candidateDist[comp1] {
			continue
		}

		pSlice := s.data[p*dims : (p+1)*dims]
		for j := n2.IdxStart; j < n2.IdxEnd; j++ {
			q := s.idxArray[j]
			if s.componentOfPoint[q] == comp1 || s.coreDistance[q] > s.candidateDist[comp1] {
				continue
			}

			d := s.metric.Distance(pSlice, s.data[q*dims:(q+1)*dims]) / s.alpha
			mrDist := max(d, s.coreDistance[p], s.coreDistance[q])

			if mrDist < s.candidateDist[comp1] {
				s.candidateDist[comp1] = mrDist
				s.candidateNeighbor[comp1] = q
				s.candidatePoint[comp1] = p
			}
		}

		newUpperBound = max(newUpperBound, s.candidateDist[comp1])
	}

	if newUpperBound < s.bounds[node1] {
		s.bounds[node1] = newUpperBound
		s.propagateBoundsUp(node1)
	}
}

func (s *boruvkaState) propagateBoundsUp(node int) {
	for node > 0 {
		parent := s.tree.Parent(node)
		left, right := s.tree.ChildNodes(parent)

		bound := max(s.bounds[left], s.bounds[right])
		if bound >= s.bounds[parent] {
			return
		}
		s.bounds[parent] = bound
		node = parent
	}
}

// DualTreeBoruvka is the default SpanningTreeBuilder: dual-tree Borůvka over
// a BoruvkaTree under mutual reachability distance.
type DualTreeBoruvka struct {
	Logger *zap.Logger
}

// SpanningTree computes the n-1 spanning tree edges in original point
// indices, unsorted. With params.Approx the tree may be slightly heavier
// than the true minimum.
func (b DualTreeBoruvka) SpanningTree(ctx context.Context, tree BoruvkaTree, params SpanningTreeParams) ([]Edge, error) {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}
	n := tree.NumPoints()
	if n <= 1 {
		return []Edge{}, nil
	}
	if params.Metric == nil {
		return nil, errors.Wrap(ErrUnsupportedMetric, "no metric given to spanning tree builder")
	}

	start := time.Now()
	s := newBoruvkaState(tree, params)
	if err := s.computeBounds(ctx, params.Jobs, params.LeafSize); err != nil {
		return nil, err
	}

	rounds := 0
	stalled := 0
	for len(s.edges) < n-1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.dualTreeTraversal(0, 0)
		rounds++

		if s.updateComponents() > 0 {
			stalled = 0
			continue
		}
		stalled++
		if !s.approx || stalled > 1 {
			return nil, errors.Wrapf(ErrNoProgress, "round %d with %d components left", rounds, len(s.components))
		}
	}

	log.Debug("boruvka spanning tree built",
		zap.Int("points", n),
		zap.Int("rounds", rounds),
		zap.Bool("approx", s.approx),
		zap.Duration("elapsed", time.Since(start)),
	)
	return s.edges, nil
}
