package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbanrisk-labs/climate-cli/internal/fetcher"
	"github.com/urbanrisk-labs/climate-cli/internal/ingest"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
)

var ingestSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync upstream sources",
	Long: `Sync upstream sources into climate.* tables.

By default, syncs all sources whose ShouldRun() returns true.
Use --sources for specific sources.
Use --force to ignore ShouldRun() scheduling logic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "ingest.sync"))

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		pool, err := ingestPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Ensure migrations are current.
		if err := ingest.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "ingest sync: migrate")
		}

		opts := parseSyncOpts(cmd)

		cities, err := registry.LoadCities(cfg.Ingest.CitiesFile)
		if err != nil {
			return eris.Wrap(err, "ingest sync: load cities")
		}

		// Create temp directory.
		tempDir := cfg.Ingest.TempDir
		if err := os.MkdirAll(tempDir, 0o755); err != nil {
			return eris.Wrapf(err, "ingest sync: create temp dir %s", tempDir)
		}

		// Build fetcher.
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			MaxRetries: 3,
		})

		// Build engine.
		syncLog := ingest.NewLog(pool)
		reg := ingest.NewRegistry(cities, ingest.Options{
			MeteostatBaseURL: cfg.Ingest.MeteostatBaseURL,
			MeteostatMirror:  cfg.Ingest.MeteostatMirror,
			WorldBankBaseURL: cfg.Ingest.WorldBankBaseURL,
			SVIURL:           cfg.Ingest.SVIURL,
			SVIReleaseMonth:  time.Month(cfg.Ingest.SVIReleaseMonth),
		})
		engine := ingest.NewEngine(pool, f, syncLog, reg, tempDir, nil)

		log.Info("starting ingest",
			zap.Strings("sources", opts.Sources),
			zap.Bool("force", opts.Force),
			zap.Int("cities", len(cities)),
		)

		if err := engine.Run(ctx, opts); err != nil {
			return eris.Wrap(err, "ingest sync")
		}

		fmt.Println("Sync complete")
		return nil
	},
}

func init() {
	ingestSyncCmd.Flags().String("sources", "", "comma-separated source names (e.g., weather,svi)")
	ingestSyncCmd.Flags().Bool("force", false, "ignore ShouldRun() scheduling logic")
	ingestCmd.AddCommand(ingestSyncCmd)
}

// parseSyncOpts extracts ingest.RunOpts from the cobra command flags.
func parseSyncOpts(cmd *cobra.Command) ingest.RunOpts {
	sourcesStr, _ := cmd.Flags().GetString("sources")
	force, _ := cmd.Flags().GetBool("force")

	opts := ingest.RunOpts{Force: force}
	if sourcesStr != "" {
		opts.Sources = strings.Split(sourcesStr, ",")
		for i := range opts.Sources {
			opts.Sources[i] = strings.TrimSpace(opts.Sources[i])
		}
	}
	return opts
}
