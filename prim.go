package hdbscan

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// primCheckEvery is how many Prim steps run between context checks.
const primCheckEvery = 256

// PrimSpanningTree builds the mutual reachability spanning tree with Prim's
// algorithm, computing distances on the fly in O(n) memory. Core distances
// come from the tree's KNN queries. It is always exact and ignores
// params.Approx.
type PrimSpanningTree struct {
	Logger *zap.Logger
}

// SpanningTree returns n-1 edges. Each edge's Source is the in-tree point the
// new point was reached from.
func (b PrimSpanningTree) SpanningTree(ctx context.Context, tree BoruvkaTree, params SpanningTreeParams) ([]Edge, error) {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}
	n := tree.NumPoints()
	if n <= 1 {
		return []Edge{}, nil
	}

	core, err := ComputeCoreDistancesTree(ctx, tree, params.MinSamples, params.Jobs)
	if err != nil {
		return nil, err
	}

	alpha := params.Alpha
	if alpha == 0 {
		alpha = 1
	}
	edges, err := primMST(ctx, tree.Data(), n, tree.NumFeatures(), core, params.Metric, alpha)
	if err != nil {
		return nil, err
	}

	for _, e := range edges {
		if math.IsInf(e.Weight, 1) {
			log.Warn("spanning tree contains an infinite edge", zap.Int("source", e.Source), zap.Int("target", e.Target))
			break
		}
	}
	return edges, nil
}

// primMST runs Prim's algorithm over flat row-major data. currentDistances
// holds, for every point outside the tree, its best known edge into the tree.
func primMST(ctx context.Context, data []float64, n, dims int, core []float64, metric DistanceMetric, alpha float64) ([]Edge, error) {
	inTree := make([]bool, n)
	currentDistances := make([]float64, n)
	currentSources := make([]int, n)
	for j := range currentDistances {
		currentDistances[j] = math.Inf(1)
	}

	currentNode := 0
	edges := make([]Edge, 0, n-1)

	for i := 1; i < n; i++ {
		if i%primCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		inTree[currentNode] = true
		currentCore := core[currentNode]
		currentRow := data[currentNode*dims : (currentNode+1)*dims]

		newDistance := math.Inf(1)
		sourceNode := 0
		newNode := -1

		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}

			// Skip the distance computation when the existing edge already
			// beats either core distance.
			best := currentDistances[j]
			if currentCore <= best && core[j] <= best {
				d := metric.Distance(currentRow, data[j*dims:(j+1)*dims]) / alpha
				if mr := max(d, currentCore, core[j]); mr < best {
					currentDistances[j] = mr
					currentSources[j] = currentNode
					best = mr
				}
			}

			if newNode == -1 || best < newDistance {
				newDistance = best
				sourceNode = currentSources[j]
				newNode = j
			}
		}

		edges = append(edges, Edge{Source: sourceNode, Target: newNode, Weight: newDistance})
		currentNode = newNode
	}

	return edges, nil
}
