package hdbscan

import (
	"context"
	"testing"

	"github.com/TrevorS/hdbscan-boruvka/cache"
)

func generateBenchData(n, dims int) [][]float64 {
	flat := randomPoints(42, n, dims, 100)
	data := make([][]float64, n)
	for i := range data {
		data[i] = flat[i*dims : (i+1)*dims]
	}
	return data
}

// --- KD-tree ---

func benchKDTreeBuild(b *testing.B, n int) {
	b.Helper()
	dims := 2
	data := randomPoints(42, n, dims, 100)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustKDTree(b, data, n, dims, EuclideanMetric{}, 40)
	}
}

func BenchmarkKDTreeBuild_1000(b *testing.B)  { benchKDTreeBuild(b, 1000) }
func BenchmarkKDTreeBuild_10000(b *testing.B) { benchKDTreeBuild(b, 10000) }

// --- Core Distances ---

func benchQueryAllKNN(b *testing.B, n, jobs int) {
	b.Helper()
	dims := 2
	data := randomPoints(42, n, dims, 100)
	tree := mustKDTree(b, data, n, dims, EuclideanMetric{}, 40)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := QueryAllKNN(ctx, tree, 6, jobs, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkQueryAllKNN_1000(b *testing.B)        { benchQueryAllKNN(b, 1000, 1) }
func BenchmarkQueryAllKNN_10000(b *testing.B)       { benchQueryAllKNN(b, 10000, 1) }
func BenchmarkQueryAllKNN_10000_4Jobs(b *testing.B) { benchQueryAllKNN(b, 10000, 4) }

// --- Spanning Tree ---

func benchSpanningTree(b *testing.B, builder SpanningTreeBuilder, n int, approx bool) {
	b.Helper()
	dims := 2
	data := randomPoints(42, n, dims, 100)
	tree := mustKDTree(b, data, n, dims, EuclideanMetric{}, 40)
	params := SpanningTreeParams{
		MinSamples: 5,
		Metric:     EuclideanMetric{},
		LeafSize:   13,
		Alpha:      1,
		Approx:     approx,
		Jobs:       1,
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := builder.SpanningTree(ctx, tree, params); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBoruvka_1000(b *testing.B)  { benchSpanningTree(b, DualTreeBoruvka{}, 1000, false) }
func BenchmarkBoruvka_10000(b *testing.B) { benchSpanningTree(b, DualTreeBoruvka{}, 10000, false) }
func BenchmarkBoruvkaApprox_10000(b *testing.B) {
	benchSpanningTree(b, DualTreeBoruvka{}, 10000, true)
}
func BenchmarkPrim_1000(b *testing.B) { benchSpanningTree(b, PrimSpanningTree{}, 1000, false) }

// --- Labeling ---

func BenchmarkLabel_10000(b *testing.B) {
	n := 10000
	data := randomPoints(42, n, 2, 100)
	tree := mustKDTree(b, data, n, 2, EuclideanMetric{}, 40)
	edges, err := DualTreeBoruvka{}.SpanningTree(context.Background(), tree, SpanningTreeParams{
		MinSamples: 5, Metric: EuclideanMetric{}, LeafSize: 13, Alpha: 1, Jobs: 1,
	})
	if err != nil {
		b.Fatal(err)
	}
	SortEdges(edges)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Label(edges, n); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Full Pipeline ---

func benchFullPipeline(b *testing.B, n int, opts ...Option) {
	b.Helper()
	data := generateBenchData(n, 2)
	r := NewRunner(opts...)
	cfg := DefaultBoruvkaConfig()
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := r.BoruvkaKDTree(ctx, data, cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFullPipeline_1000(b *testing.B)  { benchFullPipeline(b, 1000) }
func BenchmarkFullPipeline_10000(b *testing.B) { benchFullPipeline(b, 10000) }
func BenchmarkFullPipeline_Cached(b *testing.B) {
	benchFullPipeline(b, 10000, WithCache(cache.NewLRU(64<<20)))
}
