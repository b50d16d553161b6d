//go:build unix

package main

import (
	"github.com/spf13/cobra"
)

func newConfigCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the effective configuration as TOML: the defaults, overlaid with
the config file and flags. The output is a valid config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.config.Encode(cmd.OutOrStdout())
		},
	}
}
