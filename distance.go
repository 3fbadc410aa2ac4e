package hdbscan

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
)

// DistanceMetric provides distance computation with a reduced distance for
// tree pruning (e.g. squared Euclidean skips the sqrt). DistToRdist and
// RdistToDist convert between the two spaces and must be monotonic.
type DistanceMetric interface {
	Distance(a, b []float64) float64
	ReducedDistance(a, b []float64) float64
	DistToRdist(d float64) float64
	RdistToDist(r float64) float64
}

// EuclideanMetric computes the Euclidean (L2) distance.
// ReducedDistance returns squared Euclidean distance (skips sqrt).
type EuclideanMetric struct{}

func (EuclideanMetric) Distance(a, b []float64) float64 {
	return math.Sqrt(euclideanSumOfSquares(a, b))
}

func (EuclideanMetric) ReducedDistance(a, b []float64) float64 {
	return euclideanSumOfSquares(a, b)
}

func (EuclideanMetric) DistToRdist(d float64) float64 { return d * d }
func (EuclideanMetric) RdistToDist(r float64) float64 { return math.Sqrt(r) }

func euclideanSumOfSquares(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// ManhattanMetric computes the Manhattan (L1 / city-block) distance.
type ManhattanMetric struct{}

func (ManhattanMetric) Distance(a, b []float64) float64 { return floats.Distance(a, b, 1) }

func (m ManhattanMetric) ReducedDistance(a, b []float64) float64 { return m.Distance(a, b) }
func (ManhattanMetric) DistToRdist(d float64) float64            { return d }
func (ManhattanMetric) RdistToDist(r float64) float64            { return r }

// ChebyshevMetric computes the Chebyshev (L-infinity) distance.
type ChebyshevMetric struct{}

func (ChebyshevMetric) Distance(a, b []float64) float64 { return floats.Distance(a, b, math.Inf(1)) }

func (m ChebyshevMetric) ReducedDistance(a, b []float64) float64 { return m.Distance(a, b) }
func (ChebyshevMetric) DistToRdist(d float64) float64            { return d }
func (ChebyshevMetric) RdistToDist(r float64) float64            { return r }

// MinkowskiMetric computes the Minkowski distance parameterized by P.
// ReducedDistance returns sum(|a[i]-b[i]|^P) without the final root.
// Build one through ParseMetric, which rejects P < 1.
type MinkowskiMetric struct {
	P float64
}

func (m MinkowskiMetric) Distance(a, b []float64) float64 {
	return floats.Distance(a, b, m.P)
}

func (m MinkowskiMetric) ReducedDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Pow(math.Abs(a[i]-b[i]), m.P)
	}
	return sum
}

func (m MinkowskiMetric) DistToRdist(d float64) float64 { return math.Pow(d, m.P) }
func (m MinkowskiMetric) RdistToDist(r float64) float64 { return math.Pow(r, 1.0/m.P) }

// IsMinkowskiFamily reports whether the metric name takes a p parameter.
func IsMinkowskiFamily(name string) bool {
	switch strings.ToLower(name) {
	case "minkowski", "p":
		return true
	default:
		return false
	}
}

// KDTreeValidMetrics lists the metric names accepted by ParseMetric.
var KDTreeValidMetrics = []string{
	"euclidean", "l2", "minkowski", "p",
	"manhattan", "cityblock", "l1",
	"chebyshev", "infinity",
}

// ParseMetric resolves a metric name into a DistanceMetric. p is only read for
// the Minkowski family, where the common exponents collapse to their
// specialised metrics.
func ParseMetric(name string, p float64) (DistanceMetric, error) {
	switch strings.ToLower(name) {
	case "euclidean", "l2":
		return EuclideanMetric{}, nil
	case "manhattan", "cityblock", "l1":
		return ManhattanMetric{}, nil
	case "chebyshev", "infinity":
		return ChebyshevMetric{}, nil
	case "minkowski", "p":
		switch {
		case math.IsNaN(p) || p < 1:
			return nil, errors.Wrapf(ErrInvalidMinkowskiP, "got p=%v", p)
		case p == 1:
			return ManhattanMetric{}, nil
		case p == 2:
			return EuclideanMetric{}, nil
		case math.IsInf(p, 1):
			return ChebyshevMetric{}, nil
		default:
			return MinkowskiMetric{P: p}, nil
		}
	default:
		return nil, errors.WithHintf(
			errors.Wrapf(ErrUnsupportedMetric, "metric %q", name),
			"valid metrics: %s", strings.Join(KDTreeValidMetrics, ", "),
		)
	}
}
