package hdbscan

import (
	"math"
	"strings"
)

// BoruvkaConfig controls a Borůvka KD-tree run.
// Start with [DefaultBoruvkaConfig] and override the fields you need.
type BoruvkaConfig struct {
	// MinSamples is the neighbor count defining a point's core distance,
	// counting the point itself. Clamped to n-1. Must be >= 1. Default: 5.
	MinSamples int

	// Alpha scales raw distances before mutual reachability:
	// mr(a, b) = max(core[a], core[b], d(a, b)/Alpha). Must be > 0. Default: 1.0.
	Alpha float64

	// Metric names the distance function. Accepted: euclidean, l2, manhattan,
	// cityblock, l1, chebyshev, infinity, minkowski, p. Default: "minkowski".
	Metric string

	// P is the Minkowski exponent. Required when Metric is "minkowski" or
	// "p"; nil means not supplied. Ignored for other metrics. Default: 2.
	P *float64

	// LeafSize is the KD-tree leaf size. Values below 3 are raised to 3.
	// The spanning tree builder works at a third of this. Default: 40.
	LeafSize int

	// ApproxMinSpanTree lets Borůvka keep stale pruning bounds between
	// rounds. Faster, with a tree that may be slightly heavier than the
	// minimum. Default: true.
	ApproxMinSpanTree bool

	// GenMinSpanTree returns the sorted spanning tree alongside the
	// single-linkage tree. Default: false.
	GenMinSpanTree bool

	// CoreDistJobs bounds the goroutines used for core distances.
	// Must be >= 1. Default: 4.
	CoreDistJobs int
}

// MinLeafSize is the smallest KD-tree leaf size a run will use.
const MinLeafSize = 3

// DefaultBoruvkaConfig returns a BoruvkaConfig with the standard defaults.
func DefaultBoruvkaConfig() BoruvkaConfig {
	p := 2.0
	return BoruvkaConfig{
		MinSamples:        5,
		Alpha:             1.0,
		Metric:            "minkowski",
		P:                 &p,
		LeafSize:          40,
		ApproxMinSpanTree: true,
		GenMinSpanTree:    false,
		CoreDistJobs:      4,
	}
}

// Float64 returns a pointer to v, for setting BoruvkaConfig.P.
func Float64(v float64) *float64 { return &v }

// ResolvedConfig is a validated BoruvkaConfig for a concrete point count.
type ResolvedConfig struct {
	Metric     DistanceMetric
	MetricName string
	// LeafSize is the effective index leaf size, at least MinLeafSize.
	LeafSize int
	// SpanningTreeLeafSize is LeafSize/3, handed to the spanning tree builder.
	SpanningTreeLeafSize int
	// MinSamples is min(cfg.MinSamples, n-1).
	MinSamples int
	Jobs       int
	Alpha      float64
	Approx     bool
}

// ResolveConfig validates cfg and normalizes it for n points. Validation
// failures match ErrInvalidConfig. A metric that cannot be built returns
// ParseMetric's error unchanged.
func ResolveConfig(cfg BoruvkaConfig, n int) (ResolvedConfig, error) {
	p := math.NaN()
	if IsMinkowskiFamily(cfg.Metric) {
		if cfg.P == nil {
			return ResolvedConfig{}, newConfigError(ErrMissingP,
				"set P (for example 2 for euclidean)", "metric %q", cfg.Metric)
		}
		if *cfg.P < 0 {
			return ResolvedConfig{}, newConfigError(ErrNegativeP, "", "p=%v", *cfg.P)
		}
		p = *cfg.P
	}

	leafSize := max(cfg.LeafSize, MinLeafSize)

	if cfg.CoreDistJobs < 1 {
		return ResolvedConfig{}, newConfigError(ErrInvalidJobs, "", "got %d", cfg.CoreDistJobs)
	}
	if cfg.MinSamples < 1 {
		return ResolvedConfig{}, newConfigError(ErrInvalidMinSamples, "", "got %d", cfg.MinSamples)
	}
	if !(cfg.Alpha > 0) {
		return ResolvedConfig{}, newConfigError(ErrInvalidAlpha, "", "got %v", cfg.Alpha)
	}

	metric, err := ParseMetric(cfg.Metric, p)
	if err != nil {
		return ResolvedConfig{}, err
	}

	return ResolvedConfig{
		Metric:               metric,
		MetricName:           strings.ToLower(cfg.Metric),
		LeafSize:             leafSize,
		SpanningTreeLeafSize: leafSize / 3,
		MinSamples:           min(cfg.MinSamples, n-1),
		Jobs:                 cfg.CoreDistJobs,
		Alpha:                cfg.Alpha,
		Approx:               cfg.ApproxMinSpanTree,
	}, nil
}

// spanningTreeParams returns the builder parameters for a resolved config.
func (rc ResolvedConfig) spanningTreeParams() SpanningTreeParams {
	return SpanningTreeParams{
		MinSamples: rc.MinSamples,
		Metric:     rc.Metric,
		LeafSize:   rc.SpanningTreeLeafSize,
		Alpha:      rc.Alpha,
		Approx:     rc.Approx,
		Jobs:       rc.Jobs,
	}
}
