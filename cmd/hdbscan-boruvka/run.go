package main

import (
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	hdbscan "github.com/TrevorS/hdbscan-boruvka"
	"github.com/TrevorS/hdbscan-boruvka/cache"
	"github.com/TrevorS/hdbscan-boruvka/internal/config"
	"github.com/TrevorS/hdbscan-boruvka/internal/logging"
)

// flagKeys maps run flags onto config keys. A flag only overrides the file
// and environment when it is set explicitly.
var flagKeys = map[string]string{
	"min-samples":       "min_samples",
	"alpha":             "alpha",
	"metric":            "metric",
	"p":                 "p",
	"leaf-size":         "leaf_size",
	"approx":            "approx_min_span_tree",
	"gen-mst":           "gen_min_span_tree",
	"jobs":              "core_dist_n_jobs",
	"cache-dir":         "cache.dir",
	"cache-sqlite":      "cache.sqlite",
	"cache-compression": "cache.compression",
	"cache-memory":      "cache.memory_bytes",
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		outputPath string
		format     string
		header     bool
	)
	cmd := &cobra.Command{
		Use:   "run <points.csv>",
		Short: "Build the single-linkage tree of a CSV point set",
		Long: `Reads one point per CSV row ("-" for stdin) and writes the single-linkage
tree, and with --gen-mst the sorted minimum spanning tree, as JSON or YAML.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.NewViper(root.configPath)
			if err != nil {
				return err
			}
			for flag, key := range flagKeys {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return errors.Wrapf(err, "binding --%s", flag)
				}
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}

			log, err := newLogger(root, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := openStore(cfg.Cache)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			points, err := readPointsFile(args[0], cmd.InOrStdin(), header)
			if err != nil {
				return err
			}

			opts := []hdbscan.Option{hdbscan.WithLogger(log)}
			if store != nil {
				opts = append(opts, hdbscan.WithCache(store))
			}
			runner := hdbscan.NewRunner(opts...)

			n, dims := points.Dims()
			start := time.Now()
			tree, mst, err := runner.BoruvkaKDTreeMatrix(cmd.Context(), points, cfg.BoruvkaConfig())
			if err != nil {
				return err
			}
			fields := []zap.Field{
				zap.Int("points", n),
				zap.Int("features", dims),
				zap.Int("merges", tree.Len()),
				zap.Duration("elapsed", time.Since(start)),
			}
			if store != nil {
				st := store.Stats()
				fields = append(fields, zap.Int64("cache_hits", st.Hits), zap.Int64("cache_misses", st.Misses))
			}
			log.Info("single-linkage tree built", fields...)

			out := cmd.OutOrStdout()
			if outputPath != "" && outputPath != "-" {
				f, err := os.Create(outputPath)
				if err != nil {
					return errors.Wrap(err, "creating output file")
				}
				defer f.Close()
				out = f
			}
			return writeResult(out, format, tree, mst)
		},
	}

	d := hdbscan.DefaultBoruvkaConfig()
	f := cmd.Flags()
	f.Int("min-samples", d.MinSamples, "Neighbors defining a core distance, counting the point itself")
	f.Float64("alpha", d.Alpha, "Distance scaling for mutual reachability")
	f.String("metric", d.Metric, "Distance metric: euclidean, manhattan, chebyshev, minkowski, ...")
	f.Float64("p", *d.P, "Minkowski exponent")
	f.Int("leaf-size", d.LeafSize, "KD-tree leaf size (minimum 3)")
	f.Bool("approx", d.ApproxMinSpanTree, "Allow an approximate spanning tree for speed")
	f.Bool("gen-mst", d.GenMinSpanTree, "Also output the sorted minimum spanning tree")
	f.Int("jobs", d.CoreDistJobs, "Goroutines for core distance computation")
	f.String("cache-dir", "", "Cache results as files under this directory")
	f.String("cache-sqlite", "", "Cache results in this SQLite database")
	f.String("cache-compression", "zstd", "Disk cache codec: zstd, lz4 or none")
	f.Int64("cache-memory", 0, "Bytes of in-memory cache in front of the persistent one")

	f.StringVarP(&outputPath, "output", "o", "", "Write the result here instead of stdout")
	f.StringVarP(&format, "format", "f", formatJSON, "Output format: json or yaml")
	f.BoolVar(&header, "header", false, "Skip the first CSV row")
	return cmd
}

func newLogger(root *rootOptions, cfg *config.Config, w io.Writer) (*zap.Logger, error) {
	opts := logging.Options{
		Format:    cfg.Log.Format,
		Level:     cfg.Log.Level,
		Verbosity: root.verbose,
		Writer:    w,
	}
	if root.logFormat != "" {
		opts.Format = root.logFormat
	}
	if root.verbose > 0 {
		opts.Level = ""
	}
	return logging.New(opts)
}

// openStore builds the configured result store, or nil when caching is off.
func openStore(c config.Cache) (cache.Store, error) {
	var back cache.Store
	switch {
	case c.Dir != "":
		comp, err := cache.ParseCompression(c.Compression)
		if err != nil {
			return nil, err
		}
		disk, err := cache.OpenDisk(c.Dir, cache.WithCompression(comp))
		if err != nil {
			return nil, err
		}
		back = disk
	case c.SQLite != "":
		db, err := cache.OpenSQLite(c.SQLite)
		if err != nil {
			return nil, err
		}
		back = db
	}

	if c.MemoryBytes <= 0 {
		return back, nil
	}
	front := cache.NewLRU(c.MemoryBytes)
	if back == nil {
		return front, nil
	}
	return cache.NewTiered(front, back), nil
}
