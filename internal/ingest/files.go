package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/urbanrisk-labs/climate-cli/internal/fetcher"
	"github.com/urbanrisk-labs/climate-cli/internal/model"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
)

// LoadDir reads a self-contained dataset directory into pipeline inputs, so
// the index can run without a database:
//
//	dir/
//	  cities.yaml
//	  <city>/
//	    weather.csv
//	    indicators.csv
//	    svi.csv
//
// Filename prefixes map to sources; a _fixed suffix (indicators_fixed.csv)
// marks a corrected copy that wins dedup over the original. A missing file
// means that source is absent for the city. An unreadable file loads as an
// empty table, which the quality gate reports as an error, so one bad file
// never aborts the run.
func LoadDir(ctx context.Context, dir string) ([]model.City, map[string]map[model.Source][]model.Table, error) {
	log := zap.L().With(zap.String("component", "ingest.files"))

	cities, err := registry.LoadCities(filepath.Join(dir, "cities.yaml"))
	if err != nil {
		return nil, nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	// City directories are matched by folded name so the on-disk spelling
	// may differ from the registry spelling in accents or case.
	dirs := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			dirs[registry.FoldName(e.Name())] = e.Name()
		}
	}

	tables := make(map[string]map[model.Source][]model.Table, len(cities))
	for _, city := range cities {
		sub, ok := dirs[registry.FoldName(city.Name)]
		if !ok {
			continue
		}
		cityTables, err := loadCityDir(ctx, filepath.Join(dir, sub), city.Name, log)
		if err != nil {
			return nil, nil, err
		}
		if len(cityTables) > 0 {
			tables[city.Name] = cityTables
		}
	}

	log.Info("loaded dataset directory",
		zap.String("dir", dir),
		zap.Int("cities", len(cities)),
		zap.Int("with_tables", len(tables)))
	return cities, tables, nil
}

// loadCityDir reads every recognized CSV in one city's directory.
func loadCityDir(ctx context.Context, dir, cityName string, log *zap.Logger) (map[model.Source][]model.Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	out := make(map[model.Source][]model.Table)

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}

		base := strings.TrimSuffix(e.Name(), ".csv")
		fixed := strings.HasSuffix(base, "_fixed")
		base = strings.TrimSuffix(base, "_fixed")

		src, ok := sourceForFile(base)
		if !ok {
			log.Warn("unrecognized data file", zap.String("city", cityName), zap.String("file", e.Name()))
			continue
		}

		tbl := model.Table{
			City:   cityName,
			Source: src,
			Name:   e.Name(),
			Fixed:  fixed,
		}

		columns, rows, err := readCSVFile(ctx, filepath.Join(dir, e.Name()))
		if err != nil {
			// An empty table surfaces in the quality report as an
			// unreadable source for this city.
			log.Warn("unreadable data file",
				zap.String("city", cityName),
				zap.String("file", e.Name()),
				zap.Error(err))
		} else {
			tbl.Columns = columns
			tbl.Rows = rows
		}

		out[src] = append(out[src], tbl)
	}

	return out, nil
}

// sourceForFile maps a filename stem to its source.
func sourceForFile(base string) (model.Source, bool) {
	switch {
	case strings.HasPrefix(base, "weather"):
		return model.SourceWeather, true
	case strings.HasPrefix(base, "indicators"), strings.HasPrefix(base, "worldbank"):
		return model.SourceWorldBank, true
	case strings.HasPrefix(base, "svi"):
		return model.SourceSVI, true
	}
	return "", false
}

// readCSVFile loads an entire CSV into a header and row slice.
func readCSVFile(ctx context.Context, path string) ([]string, [][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, file, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var rows [][]string
	for rec := range rowCh {
		rows = append(rows, rec)
	}
	if err := <-errCh; err != nil {
		return nil, nil, err
	}

	var columns []string
	select {
	case columns = <-headerCh:
	default:
		// Zero-row file with no header at all.
	}

	return columns, rows, nil
}
