package hdbscan

import (
	"github.com/TrevorS/hdbscan-boruvka/cache"
)

// cacheKeyVersion changes whenever the key layout or the meaning of a
// cached result changes.
const cacheKeyVersion = 1

// CacheKey returns the content address of a run over flat row-major data.
// It covers the shape, the exact bits of every coordinate, and every config
// field as supplied (before normalization), so any input change yields a
// different key.
func CacheKey(data []float64, n, dims int, cfg BoruvkaConfig) cache.Key {
	h := cache.NewHasher().
		String("hdbscan.boruvka_kdtree").
		Int(cacheKeyVersion).
		Int(n).
		Int(dims).
		Float64s(data).
		Int(cfg.MinSamples).
		Float64(cfg.Alpha).
		String(cfg.Metric).
		Bool(cfg.P != nil)
	if cfg.P != nil {
		h.Float64(*cfg.P)
	}
	return h.
		Int(cfg.LeafSize).
		Bool(cfg.ApproxMinSpanTree).
		Bool(cfg.GenMinSpanTree).
		Int(cfg.CoreDistJobs).
		Sum()
}
