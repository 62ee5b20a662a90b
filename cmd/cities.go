package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbanrisk-labs/climate-cli/internal/fetcher"
	"github.com/urbanrisk-labs/climate-cli/internal/geounit"
	"github.com/urbanrisk-labs/climate-cli/internal/model"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
)

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "Inspect the city registry",
	Long:  "Commands for listing registry cities and resolving their coordinates to county geographic units.",
}

// -- cities list --

var citiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry cities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cities, err := loadCitiesFlag(cmd)
		if err != nil {
			return err
		}

		formatCities(os.Stdout, cities)
		return nil
	},
}

// -- cities resolve --

var citiesResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve city coordinates to county FIPS codes",
	Long: `Resolve every registry city's lat/lon against a TIGER county shapefile.

The --shapefile flag accepts the .shp directly or the .zip archive TIGER
distributes, which is extracted alongside its sidecars first.

Cities inside a county polygon report its GEOID; cities outside every
polygon (non-US cities) report unresolved, which downstream treats as a
missing sub-national source, not an error.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		shpPath, _ := cmd.Flags().GetString("shapefile")
		if shpPath == "" {
			return eris.New("cities resolve: --shapefile is required")
		}
		if strings.EqualFold(filepath.Ext(shpPath), ".zip") {
			var err error
			shpPath, err = extractShapefile(shpPath)
			if err != nil {
				return err
			}
		}

		cities, err := loadCitiesFlag(cmd)
		if err != nil {
			return err
		}

		resolver, err := geounit.Load(shpPath)
		if err != nil {
			return err
		}

		matches := resolver.ResolveCities(cities)

		resolved := 0
		for _, m := range matches {
			if m.Resolved {
				resolved++
			}
		}
		zap.L().Info("resolution complete",
			zap.Int("cities", len(matches)),
			zap.Int("resolved", resolved),
		)

		formatMatches(os.Stdout, matches)
		return nil
	},
}

func init() {
	citiesListCmd.Flags().String("cities", "", "city registry YAML (default: ingest.cities_file)")
	citiesResolveCmd.Flags().String("cities", "", "city registry YAML (default: ingest.cities_file)")
	citiesResolveCmd.Flags().String("shapefile", "", "TIGER county shapefile (.shp or zipped archive)")

	citiesCmd.AddCommand(citiesListCmd)
	citiesCmd.AddCommand(citiesResolveCmd)
	rootCmd.AddCommand(citiesCmd)
}

// extractShapefile unpacks a zipped TIGER archive into a temp directory and
// returns the .shp member. The sidecars (.shx, .dbf, .prj) land next to it,
// which the shapefile reader requires.
func extractShapefile(zipPath string) (string, error) {
	dir, err := os.MkdirTemp("", "tiger-*")
	if err != nil {
		return "", eris.Wrap(err, "cities resolve: temp dir")
	}

	files, err := fetcher.ExtractZIP(zipPath, dir)
	if err != nil {
		return "", err
	}
	for _, p := range files {
		if strings.EqualFold(filepath.Ext(p), ".shp") {
			return p, nil
		}
	}
	return "", eris.Errorf("cities resolve: no .shp member in %s", filepath.Base(zipPath))
}

// loadCitiesFlag loads the registry named by --cities, falling back to config.
func loadCitiesFlag(cmd *cobra.Command) ([]model.City, error) {
	path, _ := cmd.Flags().GetString("cities")
	if path == "" {
		path = cfg.Ingest.CitiesFile
	}
	return registry.LoadCities(path)
}

// formatCities writes a tabular list of registry cities to w.
func formatCities(out io.Writer, cities []model.City) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCOUNTRY\tCC\tLAT\tLON\tCOUNTY_FIPS\tPOPULATION")
	_, _ = fmt.Fprintln(w, "----\t-------\t--\t---\t---\t-----------\t----------")

	for _, c := range cities {
		fips := c.CountyFIPS
		if fips == "" {
			fips = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.4f\t%s\t%d\n",
			c.Name,
			c.Country,
			c.CountryCode,
			c.Lat,
			c.Lon,
			fips,
			c.Population,
		)
	}
	_ = w.Flush()
}

// formatMatches writes per-city resolution results to w.
func formatMatches(out io.Writer, matches []geounit.Match) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CITY\tCC\tFIPS\tCOUNTY\tRESOLVED")
	_, _ = fmt.Fprintln(w, "----\t--\t----\t------\t--------")

	for _, m := range matches {
		fips := m.FIPS
		if fips == "" {
			fips = "-"
		}
		name := m.Name
		if name == "" {
			name = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n",
			m.City.Name,
			m.City.CountryCode,
			fips,
			name,
			m.Resolved,
		)
	}
	_ = w.Flush()
}
