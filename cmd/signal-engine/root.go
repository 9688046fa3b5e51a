package main

import (
	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "signal-engine",
		Short: "Daily stock signal engine",
		Long: `signal-engine turns daily price bars into standardized trading signals:
indicators, z-scores against each symbol's own history, a weighted composite,
a quality audit of every batch and exactly one stored snapshot per symbol per day.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration (env overrides apply)")

	root.AddCommand(serveCmd(), runCmd(), cleanupCmd(), migrateCmd())
	return root
}
