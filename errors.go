package hdbscan

import "github.com/cockroachdb/errors"

// ErrInvalidConfig marks every parameter validation failure. Use
// errors.Is(err, ErrInvalidConfig) to tell configuration mistakes apart from
// failures inside the index or spanning tree backends.
var ErrInvalidConfig = errors.New("hdbscan: invalid configuration")

// Configuration errors. Each is also marked with ErrInvalidConfig.
var (
	ErrMissingP          = errors.New("hdbscan: minkowski metric given but no p value supplied")
	ErrNegativeP         = errors.New("hdbscan: minkowski metric with negative p value is not defined")
	ErrInvalidJobs       = errors.New("hdbscan: parallel core distance computation requires 1 or more jobs")
	ErrInvalidMinSamples = errors.New("hdbscan: min samples must be >= 1")
	ErrInvalidAlpha      = errors.New("hdbscan: alpha must be > 0")
)

// Index and backend errors. These come from delegated components and reach
// the caller unmodified.
var (
	ErrEmptyData         = errors.New("hdbscan: no points supplied")
	ErrRaggedData        = errors.New("hdbscan: points have inconsistent dimensionality")
	ErrNaNData           = errors.New("hdbscan: points contain NaN coordinates")
	ErrUnsupportedMetric = errors.New("hdbscan: metric is not supported by the KD-tree")
	ErrInvalidMinkowskiP = errors.New("hdbscan: minkowski p must be >= 1")
	ErrNoProgress        = errors.New("hdbscan: spanning tree round added no edges")
)

// Labeling errors.
var (
	ErrUnsortedEdges  = errors.New("hdbscan: spanning tree edges are not sorted by weight")
	ErrEdgeOutOfRange = errors.New("hdbscan: spanning tree edge references an unknown point")
	ErrNotATree       = errors.New("hdbscan: edges do not form a spanning forest")
)

// ErrCorruptCacheEntry is returned when a cached result cannot be decoded.
var ErrCorruptCacheEntry = errors.New("hdbscan: corrupt cache entry")

// configError is a validation failure. It unwraps to the specific sentinel
// and also matches ErrInvalidConfig, under both the standard library and
// cockroachdb errors.Is.
type configError struct {
	cause error
}

func (e *configError) Error() string { return e.cause.Error() }

func (e *configError) Unwrap() error { return e.cause }

func (e *configError) Is(target error) bool { return target == ErrInvalidConfig }

// newConfigError wraps sentinel with a message and an optional hint.
func newConfigError(sentinel error, hint string, format string, args ...any) error {
	var err error = &configError{cause: errors.Wrapf(sentinel, format, args...)}
	if hint != "" {
		err = errors.WithHint(err, hint)
	}
	return err
}
