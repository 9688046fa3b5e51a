package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trogers1052/stock-signal-engine/internal/database"
)

func runCmd() *cobra.Command {
	var symbols string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute, audit and publish one batch, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			list := a.cfg.Symbols
			if symbols != "" {
				list = strings.Split(strings.ToUpper(symbols), ",")
			}
			batch, err := a.pipeline.RunBatch(ctx, list)
			if batch == nil {
				return err
			}
			for _, r := range batch.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %-18s %s\n", r.Symbol, r.Status, r.Reason)
			}
			if batch.Audit != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "batch %s: %s (real data %.1f%%)\n",
					batch.ID, batch.Audit.Recommendation, batch.Audit.RealDataRatio*100)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&symbols, "symbols", "", "Comma separated symbols (defaults to configuration)")
	return cmd
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove duplicate snapshots for the current and previous trading day",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			return a.cleanup(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back) database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.NewWithOptions(cmd.Context(), cfg.Database.ConnectionString(), cfg.Database.Options())
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if down > 0 {
				err = db.MigrateDown(down)
			} else {
				err = db.Migrate()
			}
			if err != nil {
				return err
			}
			version, dirty, err := db.MigrationVersion()
			if err != nil {
				return err
			}
			log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Migrations complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "Roll back this many migrations")
	return cmd
}
