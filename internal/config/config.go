// Package config loads command line settings from a YAML file, HDBSCAN_*
// environment variables and built-in defaults, in decreasing precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	hdbscan "github.com/TrevorS/hdbscan-boruvka"
)

// EnvPrefix prefixes every environment override, e.g. HDBSCAN_MIN_SAMPLES or
// HDBSCAN_CACHE_DIR.
const EnvPrefix = "HDBSCAN"

// Config is the file layout.
type Config struct {
	MinSamples        int      `mapstructure:"min_samples" yaml:"min_samples"`
	Alpha             float64  `mapstructure:"alpha" yaml:"alpha"`
	Metric            string   `mapstructure:"metric" yaml:"metric"`
	P                 *float64 `mapstructure:"p" yaml:"p"`
	LeafSize          int      `mapstructure:"leaf_size" yaml:"leaf_size"`
	ApproxMinSpanTree bool     `mapstructure:"approx_min_span_tree" yaml:"approx_min_span_tree"`
	GenMinSpanTree    bool     `mapstructure:"gen_min_span_tree" yaml:"gen_min_span_tree"`
	CoreDistJobs      int      `mapstructure:"core_dist_n_jobs" yaml:"core_dist_n_jobs"`

	Cache Cache `mapstructure:"cache" yaml:"cache"`
	Log   Log   `mapstructure:"log" yaml:"log"`
}

// Cache selects a result store. Dir and SQLite are mutually exclusive; both
// empty disables caching.
type Cache struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	SQLite      string `mapstructure:"sqlite" yaml:"sqlite"`
	Compression string `mapstructure:"compression" yaml:"compression"`
	// MemoryBytes, when positive, puts an in-process LRU of this size in
	// front of the persistent store.
	MemoryBytes int64 `mapstructure:"memory_bytes" yaml:"memory_bytes"`
}

// Log configures the logger.
type Log struct {
	Format string `mapstructure:"format" yaml:"format"`
	Level  string `mapstructure:"level" yaml:"level"`
}

// SetDefaults registers the default value of every key. Keys without a
// default are invisible to environment overrides.
func SetDefaults(v *viper.Viper) {
	d := hdbscan.DefaultBoruvkaConfig()
	v.SetDefault("min_samples", d.MinSamples)
	v.SetDefault("alpha", d.Alpha)
	v.SetDefault("metric", d.Metric)
	v.SetDefault("p", *d.P)
	v.SetDefault("leaf_size", d.LeafSize)
	v.SetDefault("approx_min_span_tree", d.ApproxMinSpanTree)
	v.SetDefault("gen_min_span_tree", d.GenMinSpanTree)
	v.SetDefault("core_dist_n_jobs", d.CoreDistJobs)

	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.sqlite", "")
	v.SetDefault("cache.compression", "zstd")
	v.SetDefault("cache.memory_bytes", 0)

	v.SetDefault("log.format", "console")
	v.SetDefault("log.level", "")
}

// NewViper returns a viper instance with defaults and environment binding.
// path, when set, is read as YAML.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
	}
	return v, nil
}

// Load reads the configuration. An empty path uses defaults and the
// environment only.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes a prepared viper instance, for callers that bind flags
// onto it first.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if cfg.Cache.Dir != "" && cfg.Cache.SQLite != "" {
		return nil, errors.WithHint(
			errors.New("cache.dir and cache.sqlite are both set"),
			"pick one cache backend",
		)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	d := hdbscan.DefaultBoruvkaConfig()
	return Config{
		MinSamples:        d.MinSamples,
		Alpha:             d.Alpha,
		Metric:            d.Metric,
		P:                 d.P,
		LeafSize:          d.LeafSize,
		ApproxMinSpanTree: d.ApproxMinSpanTree,
		GenMinSpanTree:    d.GenMinSpanTree,
		CoreDistJobs:      d.CoreDistJobs,
		Cache:             Cache{Compression: "zstd"},
		Log:               Log{Format: "console"},
	}
}

// BoruvkaConfig converts the file settings into library parameters.
func (c *Config) BoruvkaConfig() hdbscan.BoruvkaConfig {
	return hdbscan.BoruvkaConfig{
		MinSamples:        c.MinSamples,
		Alpha:             c.Alpha,
		Metric:            c.Metric,
		P:                 c.P,
		LeafSize:          c.LeafSize,
		ApproxMinSpanTree: c.ApproxMinSpanTree,
		GenMinSpanTree:    c.GenMinSpanTree,
		CoreDistJobs:      c.CoreDistJobs,
	}
}

// WriteDefault writes the default configuration as YAML to path. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}
	out, err := yaml.Marshal(Default())
	if err != nil {
		return errors.Wrap(err, "encoding default config")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}
