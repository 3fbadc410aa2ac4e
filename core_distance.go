package hdbscan

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Neighbors holds per-point KNN results in original point order. Each row
// includes the point itself and is sorted by distance.
type Neighbors struct {
	Indices   [][]int
	Distances [][]float64
}

// QueryAllKNN runs a k-nearest-neighbor query for every point of the tree.
// Rows are split into at most jobs contiguous chunks of at least minChunk
// rows, queried concurrently. The result does not depend on jobs.
func QueryAllKNN(ctx context.Context, tree SpatialTree, k, jobs, minChunk int) (Neighbors, error) {
	n := tree.NumPoints()
	dims := tree.NumFeatures()
	data := tree.Data()
	k = min(k, n)

	out := Neighbors{
		Indices:   make([][]int, n),
		Distances: make([][]float64, n),
	}

	jobs = max(jobs, 1)
	chunk := max((n+jobs-1)/jobs, minChunk, 1)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			idx, dist := tree.QueryKNN(data[start*dims:end*dims], end-start, k)
			copy(out.Indices[start:end], idx)
			copy(out.Distances[start:end], dist)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Neighbors{}, err
	}
	return out, nil
}

// CoreDistances returns, for each point, the distance to its minSamples-th
// nearest neighbor counting the point itself at position 0. nb must come from
// a query with k >= minSamples+1.
func CoreDistances(nb Neighbors, minSamples int) []float64 {
	core := make([]float64, len(nb.Distances))
	for i, row := range nb.Distances {
		if len(row) == 0 {
			continue
		}
		core[i] = row[min(minSamples, len(row)-1)]
	}
	return core
}

// ComputeCoreDistancesTree computes core distances using the tree's KNN
// queries instead of a full distance matrix. minSamples is clamped to
// [0, n-1]; with 0 every core distance is 0.
func ComputeCoreDistancesTree(ctx context.Context, tree SpatialTree, minSamples, jobs int) ([]float64, error) {
	n := tree.NumPoints()
	if n == 0 {
		return nil, nil
	}
	minSamples = max(min(minSamples, n-1), 0)
	if minSamples == 0 {
		return make([]float64, n), nil
	}

	nb, err := QueryAllKNN(ctx, tree, minSamples+1, jobs, 1)
	if err != nil {
		return nil, err
	}
	return CoreDistances(nb, minSamples), nil
}
