package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbanrisk-labs/climate-cli/internal/index"
	"github.com/urbanrisk-labs/climate-cli/internal/ingest"
	"github.com/urbanrisk-labs/climate-cli/internal/model"
	"github.com/urbanrisk-labs/climate-cli/internal/pipeline"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
	"github.com/urbanrisk-labs/climate-cli/internal/store"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Compute the composite vulnerability index",
	Long: `Score every registry city on the 0-1 composite climate vulnerability index.

Tables come from the store by default. Use --from-files to score a
self-contained dataset directory (cities.yaml plus one directory per city)
without a database.

Ranked records, exclusions with reasons, per-city quality reports, and the
batch correlation summary make up one run.

Examples:
  # Score cities from synced store tables and persist the run
  climate-cli index --save

  # Score a dataset directory and export records as CSV
  climate-cli index --from-files ./exports --format csv --output scores.csv

  # Full machine-readable batch
  climate-cli index --format json`,
	RunE: runIndex,
}

func init() {
	f := indexCmd.Flags()
	f.String("cities", "", "city registry YAML (default: ingest.cities_file)")
	f.String("from-files", "", "score a dataset directory instead of the store")
	f.Int("concurrency", 0, "max cities scored concurrently (overrides config)")
	f.String("output", "", "output file path (default: stdout)")
	f.String("format", "table", "output format: table, csv, or json")
	f.Bool("save", false, "save the run to the store")

	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fromFiles, _ := cmd.Flags().GetString("from-files")
	citiesPath, _ := cmd.Flags().GetString("cities")
	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	save, _ := cmd.Flags().GetBool("save")

	if format != "table" && format != "csv" && format != "json" {
		return eris.Errorf("index: --format must be table, csv, or json (got %q)", format)
	}

	log := zap.L().With(zap.String("command", "index"))

	// A store is needed for table input and for --save; a pure file run
	// stays database-free.
	var st store.Store
	if fromFiles == "" || save {
		if err := cfg.Validate("index"); err != nil {
			return err
		}
		var err error
		st, err = initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "index: migrate")
		}
	}

	var (
		cities []model.City
		tables map[string]map[model.Source][]model.Table
	)
	if fromFiles != "" {
		var err error
		cities, tables, err = ingest.LoadDir(ctx, fromFiles)
		if err != nil {
			return eris.Wrap(err, "index: load dataset dir")
		}
	} else {
		if citiesPath == "" {
			citiesPath = cfg.Ingest.CitiesFile
		}
		var err error
		cities, err = registry.LoadCities(citiesPath)
		if err != nil {
			return err
		}
		tables, err = st.LoadCityTables(ctx, cities)
		if err != nil {
			return eris.Wrap(err, "index: load city tables")
		}
	}

	params := pipeline.Params{
		Cities: cities,
		Thresholds: index.Thresholds{
			LowMax:      cfg.Index.Thresholds.LowMax,
			ModerateMax: cfg.Index.Thresholds.ModerateMax,
			HighMax:     cfg.Index.Thresholds.HighMax,
		},
		Concurrency: cfg.Index.Concurrency,
	}
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		params.Concurrency = v
	}

	log.Info("starting index run",
		zap.Int("cities", len(cities)),
		zap.Int("concurrency", params.Concurrency),
		zap.Bool("from_files", fromFiles != ""),
	)

	batch, err := pipeline.Run(ctx, params, pipeline.Inputs{Tables: tables})
	if err != nil {
		return eris.Wrap(err, "index: run")
	}

	log.Info("index run complete",
		zap.String("run_id", batch.RunID),
		zap.Int("scored", len(batch.Records)),
		zap.Int("excluded", len(batch.Exclusions)),
	)

	if err := outputBatch(batch, format, outputPath); err != nil {
		return err
	}

	if save {
		if err := st.SaveBatch(ctx, batch); err != nil {
			return eris.Wrap(err, "index: save")
		}
		fmt.Printf("Saved run %s\n", batch.RunID)
	}

	if format == "table" || outputPath != "" {
		printBatchSummary(batch)
	}
	return nil
}

// outputBatch writes the run to the output file or stdout in the requested format.
func outputBatch(b *model.BatchResult, format, outputPath string) error {
	var w *os.File
	if outputPath != "" {
		var err error
		w, err = os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "index: create output file %s", outputPath)
		}
		defer w.Close() //nolint:errcheck
	} else {
		w = os.Stdout
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	case "csv":
		return writeRecordsCSV(w, b.Records)
	case "table":
		return writeRecordsTable(w, b)
	default:
		return eris.Errorf("index: unsupported format %q", format)
	}
}

func writeRecordsCSV(w io.Writer, records []model.VulnerabilityRecord) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"rank", "city", "country_code", "score", "category", "climate_risk", "adaptive_capacity", "reduced_confidence"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "index: write CSV header")
	}

	for _, r := range records {
		row := []string{
			strconv.Itoa(r.Rank),
			r.City,
			r.CountryCode,
			strconv.FormatFloat(r.Score, 'f', 4, 64),
			string(r.Category),
			strconv.FormatFloat(r.ClimateRisk, 'f', 4, 64),
			strconv.FormatFloat(r.AdaptiveCapacity, 'f', 4, 64),
			strconv.FormatBool(r.ReducedConfidence),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "index: write CSV row")
		}
	}
	return nil
}

func writeRecordsTable(w io.Writer, b *model.BatchResult) error {
	header := fmt.Sprintf("%-5s %-28s %-4s %8s %-10s %6s %6s %s\n",
		"RANK", "CITY", "CC", "SCORE", "CATEGORY", "RISK", "ADAPT", "CONFIDENCE")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "index: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 82)); err != nil {
		return eris.Wrap(err, "index: write table separator")
	}

	for _, r := range b.Records {
		name := r.City
		if len(name) > 28 {
			name = name[:25] + "..."
		}
		conf := "full"
		if r.ReducedConfidence {
			conf = "reduced"
		}
		line := fmt.Sprintf("%-5d %-28s %-4s %8.4f %-10s %6.3f %6.3f %s\n",
			r.Rank, name, r.CountryCode, r.Score, r.Category, r.ClimateRisk, r.AdaptiveCapacity, conf)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "index: write table row")
		}
	}

	if len(b.Exclusions) > 0 {
		if _, err := fmt.Fprintln(w, "\nExcluded:"); err != nil {
			return eris.Wrap(err, "index: write exclusions header")
		}
		for _, e := range b.Exclusions {
			detail := ""
			if e.Detail != "" {
				detail = " (" + e.Detail + ")"
			}
			if _, err := fmt.Fprintf(w, "  %-28s %s%s\n", e.City, e.Reason, detail); err != nil {
				return eris.Wrap(err, "index: write exclusion row")
			}
		}
	}
	return nil
}

// printBatchSummary prints run-level counts to stdout.
func printBatchSummary(b *model.BatchResult) {
	counts := make(map[model.CategoryLabel]int, 4)
	for _, r := range b.Records {
		counts[r.Category]++
	}
	defined := 0
	for _, c := range b.Correlations {
		if c.Defined {
			defined++
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Run ID:       %s\n", b.RunID)
	fmt.Printf("Attempted:    %d\n", b.Attempted)
	fmt.Printf("Scored:       %d\n", len(b.Records))
	fmt.Printf("Excluded:     %d\n", len(b.Exclusions))
	fmt.Printf("Categories:   Low %d, Moderate %d, High %d, Severe %d\n",
		counts[model.CategoryLow], counts[model.CategoryModerate],
		counts[model.CategoryHigh], counts[model.CategorySevere])
	fmt.Printf("Correlations: %d of %d defined\n", defined, len(b.Correlations))
}
