package hdbscan

import "context"

// NodeData describes a single node in a spatial tree.
type NodeData struct {
	IdxStart, IdxEnd int
	IsLeaf           bool
	// Radius bounds the distance from the node centre to any of its points.
	// For the KD-tree it is half the bounding-box diagonal.
	Radius float64
}

// SpatialTree is the read interface of a spatial index, used by
// tree-accelerated core distance computation. Implementations must allow
// concurrent QueryKNN calls.
type SpatialTree interface {
	// QueryKNN finds the k nearest neighbors for each row in queryData.
	// queryData is flat row-major with queryRows rows.
	// Returns per-query neighbor indices and distances (both sorted by distance).
	QueryKNN(queryData []float64, queryRows, k int) (indices [][]int, distances [][]float64)

	// Data returns the flat row-major point data owned by the tree.
	Data() []float64

	// NumPoints returns the number of points in the tree.
	NumPoints() int

	// NumFeatures returns the dimensionality of each point.
	NumFeatures() int

	// IdxArray returns the permutation array mapping tree-order positions
	// back to original point indices.
	IdxArray() []int

	// NodeDataArray returns the metadata for every node in the tree.
	NodeDataArray() []NodeData
}

// BoruvkaTree extends SpatialTree with operations needed by dual-tree
// Borůvka MST construction.
type BoruvkaTree interface {
	SpatialTree

	// MinRdistDual returns a lower bound (in reduced-distance space) on the
	// distance between any point in node1 and any point in node2.
	MinRdistDual(node1, node2 int) float64

	// MinRdistPoint returns a lower bound (in reduced-distance space) on the
	// distance between a point and any point in the given node.
	MinRdistPoint(node int, point []float64) float64

	// NumNodes returns the total number of nodes (internal + leaf) in the tree.
	NumNodes() int

	// ChildNodes returns the left and right child node indices.
	// Behavior is undefined for leaf nodes.
	ChildNodes(node int) (left, right int)

	// Parent returns the parent of a non-root node.
	Parent(node int) int
}

// IndexBuilder constructs the spatial index the spanning tree runs against.
type IndexBuilder interface {
	BuildIndex(ctx context.Context, data []float64, n, dims int, metric DistanceMetric, leafSize int) (BoruvkaTree, error)
}

// SpanningTreeParams configures a SpanningTreeBuilder run.
type SpanningTreeParams struct {
	// MinSamples is the neighbor count defining core distances. Already
	// clamped to n-1.
	MinSamples int
	Metric     DistanceMetric
	// LeafSize is the builder's own granularity; the orchestration passes a
	// third of the index leaf size.
	LeafSize int
	Alpha    float64
	// Approx allows the builder to trade exactness for fewer traversals.
	Approx bool
	// Jobs bounds the goroutines used for core distances.
	Jobs int
}

// SpanningTreeBuilder produces the mutual reachability minimum spanning tree
// over an index. Edges may come back in any order.
type SpanningTreeBuilder interface {
	SpanningTree(ctx context.Context, tree BoruvkaTree, params SpanningTreeParams) ([]Edge, error)
}
