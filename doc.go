// Package hdbscan builds the HDBSCAN single-linkage hierarchy with a
// KD-tree and dual-tree Borůvka.
//
// Points go in as rows. The result is the single-linkage tree under
// mutual reachability distance, in scipy linkage layout, and optionally the
// minimum spanning tree it was labeled from:
//
//	cfg := hdbscan.DefaultBoruvkaConfig()
//	cfg.MinSamples = 10
//	cfg.GenMinSpanTree = true
//	tree, mst, err := hdbscan.BoruvkaKDTree(ctx, data, cfg)
//	// tree[i] merges clusters tree[i].Left and tree[i].Right into cluster n+i.
//	// mst is sorted by weight.
//
// # Configuration
//
// The default metric is "minkowski" with P=2. The minkowski family requires
// a non-negative P; euclidean, manhattan and chebyshev ignore it. Leaf sizes
// below [MinLeafSize] are raised to it, MinSamples is clamped to n-1, and
// the spanning tree builder runs at a third of the index leaf size.
// Validation errors match [ErrInvalidConfig].
//
// # Backends and caching
//
// A [Runner] takes an [IndexBuilder] and a [SpanningTreeBuilder], so either
// stage can be replaced; [PrimSpanningTree] is an exact alternative to
// [DualTreeBoruvka]. [WithCache] memoizes results in a
// [github.com/TrevorS/hdbscan-boruvka/cache.Store] keyed by [CacheKey], and
// concurrent identical runs share one computation.
package hdbscan
