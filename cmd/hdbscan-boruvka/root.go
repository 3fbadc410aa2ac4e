package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    int
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "hdbscan-boruvka",
		Short:         "Single-linkage trees under mutual reachability",
		Long:          "hdbscan-boruvka builds the HDBSCAN single-linkage hierarchy of a point set using a KD-tree and dual-tree Borůvka.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().CountVarP(&opts.verbose, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: console or json")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}
