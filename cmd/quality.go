package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/urbanrisk-labs/climate-cli/internal/ingest"
	"github.com/urbanrisk-labs/climate-cli/internal/model"
	"github.com/urbanrisk-labs/climate-cli/internal/quality"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Report per-city data quality without scoring",
	Long:  "Runs the admission gate over every registry city and reports which sources are usable. No index is computed; use this to preview what a run would exclude.",
	RunE:  runQuality,
}

func init() {
	f := qualityCmd.Flags()
	f.String("cities", "", "city registry YAML (default: ingest.cities_file)")
	f.String("from-files", "", "assess a dataset directory instead of the store")
	f.String("format", "table", "output format: table or json")

	rootCmd.AddCommand(qualityCmd)
}

func runQuality(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fromFiles, _ := cmd.Flags().GetString("from-files")
	citiesPath, _ := cmd.Flags().GetString("cities")
	format, _ := cmd.Flags().GetString("format")

	if format != "table" && format != "json" {
		return eris.Errorf("quality: --format must be table or json (got %q)", format)
	}

	var (
		cities []model.City
		tables map[string]map[model.Source][]model.Table
	)
	if fromFiles != "" {
		var err error
		cities, tables, err = ingest.LoadDir(ctx, fromFiles)
		if err != nil {
			return eris.Wrap(err, "quality: load dataset dir")
		}
	} else {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "quality: migrate")
		}

		if citiesPath == "" {
			citiesPath = cfg.Ingest.CitiesFile
		}
		cities, err = registry.LoadCities(citiesPath)
		if err != nil {
			return err
		}
		tables, err = st.LoadCityTables(ctx, cities)
		if err != nil {
			return eris.Wrap(err, "quality: load city tables")
		}
	}

	reports := assessCities(cities, tables)

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	formatQualityReports(os.Stdout, reports)
	return nil
}

// assessCities runs the gate for every registry city. Table keys are matched
// by folded name, same as the pipeline.
func assessCities(cities []model.City, tables map[string]map[model.Source][]model.Table) []model.CityQuality {
	folded := make(map[string]map[model.Source][]model.Table, len(tables))
	for name, t := range tables {
		folded[registry.FoldName(name)] = t
	}

	reports := make([]model.CityQuality, 0, len(cities))
	for _, c := range cities {
		reports = append(reports, quality.Assess(c.Name, folded[registry.FoldName(c.Name)]))
	}
	return reports
}

// formatQualityReports writes one row per city with a cell per source.
func formatQualityReports(out io.Writer, reports []model.CityQuality) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CITY\tADMITTED\tWEATHER\tWORLDBANK\tSVI")
	_, _ = fmt.Fprintln(w, "----\t--------\t-------\t---------\t---")

	for _, r := range reports {
		cells := make(map[model.Source]string, len(r.Sources))
		for _, a := range r.Sources {
			cell := string(a.Status)
			if a.Status == model.StatusSuccess {
				cell = fmt.Sprintf("%s (%.0f%%)", a.Status, a.Completeness)
			}
			cells[a.Source] = cell
		}

		_, _ = fmt.Fprintf(w, "%s\t%v\t%s\t%s\t%s\n",
			r.City,
			r.Admitted,
			cells[model.SourceWeather],
			cells[model.SourceWorldBank],
			cells[model.SourceSVI],
		)
	}
	_ = w.Flush()
}
