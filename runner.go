package hdbscan

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/mat"

	"github.com/TrevorS/hdbscan-boruvka/cache"
)

// Runner builds single-linkage trees with pluggable index and spanning
// tree backends and an optional result cache. A Runner is safe for
// concurrent use.
type Runner struct {
	index  IndexBuilder
	mst    SpanningTreeBuilder
	store  cache.Store
	logger *zap.Logger

	group singleflight.Group
}

// Option configures a Runner.
type Option func(*Runner)

// WithIndexBuilder replaces the KD-tree index.
func WithIndexBuilder(b IndexBuilder) Option {
	return func(r *Runner) { r.index = b }
}

// WithSpanningTreeBuilder replaces dual-tree Borůvka.
func WithSpanningTreeBuilder(b SpanningTreeBuilder) Option {
	return func(r *Runner) { r.mst = b }
}

// WithCache memoizes results in store, keyed by CacheKey. The Runner does
// not close the store.
func WithCache(store cache.Store) Option {
	return func(r *Runner) { r.store = store }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner returns a Runner using KDTreeIndex and DualTreeBoruvka unless
// options say otherwise.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.index == nil {
		r.index = KDTreeIndex{}
	}
	if r.mst == nil {
		r.mst = DualTreeBoruvka{Logger: r.logger}
	}
	return r
}

var defaultRunner = NewRunner()

// BoruvkaKDTree builds the single-linkage tree of data with the default
// Runner. See [Runner.BoruvkaKDTree].
func BoruvkaKDTree(ctx context.Context, data [][]float64, cfg BoruvkaConfig) (SingleLinkageTree, []Edge, error) {
	return defaultRunner.BoruvkaKDTree(ctx, data, cfg)
}

// BoruvkaKDTree builds the single-linkage tree of data under mutual
// reachability distance. Each row of data is one point; all rows must have
// the same length.
//
// The spanning tree is returned sorted by weight when cfg.GenMinSpanTree is
// set, and nil otherwise. Configuration errors match ErrInvalidConfig and
// are raised before any work starts. Errors from the index, the spanning
// tree builder and Label are returned as they are.
func (r *Runner) BoruvkaKDTree(ctx context.Context, data [][]float64, cfg BoruvkaConfig) (SingleLinkageTree, []Edge, error) {
	flat, n, dims, err := flatten(data)
	if err != nil {
		return nil, nil, err
	}
	return r.run(ctx, flat, n, dims, cfg)
}

// BoruvkaKDTreeMatrix is BoruvkaKDTree over the rows of a gonum matrix.
func (r *Runner) BoruvkaKDTreeMatrix(ctx context.Context, m mat.Matrix, cfg BoruvkaConfig) (SingleLinkageTree, []Edge, error) {
	n, dims := m.Dims()
	flat := make([]float64, n*dims)
	if d, ok := m.(*mat.Dense); ok {
		raw := d.RawMatrix()
		for i := 0; i < n; i++ {
			copy(flat[i*dims:(i+1)*dims], raw.Data[i*raw.Stride:i*raw.Stride+dims])
		}
	} else {
		for i := 0; i < n; i++ {
			for j := 0; j < dims; j++ {
				flat[i*dims+j] = m.At(i, j)
			}
		}
	}
	return r.run(ctx, flat, n, dims, cfg)
}

// flatten copies rows into one row-major slice.
func flatten(data [][]float64) ([]float64, int, int, error) {
	n := len(data)
	if n == 0 {
		return nil, 0, 0, nil
	}
	dims := len(data[0])
	flat := make([]float64, n*dims)
	for i, row := range data {
		if len(row) != dims {
			return nil, 0, 0, errors.Wrapf(ErrRaggedData, "row %d has %d features, row 0 has %d", i, len(row), dims)
		}
		copy(flat[i*dims:], row)
	}
	return flat, n, dims, nil
}

type result struct {
	tree SingleLinkageTree
	mst  []Edge
}

func (r *Runner) run(ctx context.Context, flat []float64, n, dims int, cfg BoruvkaConfig) (SingleLinkageTree, []Edge, error) {
	rc, err := ResolveConfig(cfg, n)
	if err != nil {
		return nil, nil, err
	}
	if r.store == nil {
		return r.compute(ctx, flat, n, dims, cfg, rc)
	}

	key := CacheKey(flat, n, dims, cfg)
	log := r.logger.With(zap.Stringer("key", key))

	if res, ok := r.lookup(ctx, log, key); ok {
		return res.tree, res.mst, nil
	}

	v, err, shared := r.group.Do(key.String(), func() (any, error) {
		tree, mst, err := r.compute(ctx, flat, n, dims, cfg, rc)
		if err != nil {
			return nil, err
		}
		if err := r.store.Put(ctx, key, encodeResult(tree, mst)); err != nil {
			log.Warn("cache write failed", zap.Error(err))
		}
		return result{tree: tree, mst: mst}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	res := v.(result)
	if shared {
		log.Debug("coalesced with an identical run")
	}
	return slices.Clone(res.tree), slices.Clone(res.mst), nil
}

// lookup returns a cached result. Undecodable entries count as misses, as
// do read failures that come without a value.
func (r *Runner) lookup(ctx context.Context, log *zap.Logger, key cache.Key) (result, bool) {
	b, ok, err := r.store.Get(ctx, key)
	if err != nil {
		log.Warn("cache read failed", zap.Error(err))
	}
	if !ok {
		return result{}, false
	}
	tree, mst, err := decodeResult(b)
	if err != nil {
		log.Warn("discarding cache entry", zap.Error(err))
		return result{}, false
	}
	log.Debug("cache hit")
	return result{tree: tree, mst: mst}, true
}

// compute runs the index, spanning tree and labeling stages.
func (r *Runner) compute(ctx context.Context, flat []float64, n, dims int, cfg BoruvkaConfig, rc ResolvedConfig) (SingleLinkageTree, []Edge, error) {
	r.logger.Debug("resolved config",
		zap.Int("points", n),
		zap.Int("features", dims),
		zap.String("metric", rc.MetricName),
		zap.Int("leaf_size", rc.LeafSize),
		zap.Int("min_samples", rc.MinSamples),
		zap.Float64("alpha", rc.Alpha),
		zap.Bool("approx", rc.Approx),
		zap.Int("jobs", rc.Jobs),
	)

	start := time.Now()
	tree, err := r.index.BuildIndex(ctx, flat, n, dims, rc.Metric, rc.LeafSize)
	if err != nil {
		return nil, nil, err
	}
	r.logger.Debug("index built", zap.Int("nodes", tree.NumNodes()), zap.Duration("elapsed", time.Since(start)))

	start = time.Now()
	edges, err := r.mst.SpanningTree(ctx, tree, rc.spanningTreeParams())
	if err != nil {
		return nil, nil, err
	}
	r.logger.Debug("spanning tree built", zap.Int("edges", len(edges)), zap.Duration("elapsed", time.Since(start)))

	SortEdges(edges)
	slt, err := Label(edges, n)
	if err != nil {
		return nil, nil, err
	}

	if !cfg.GenMinSpanTree {
		return slt, nil, nil
	}
	return slt, edges, nil
}
