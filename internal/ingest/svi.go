package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbanrisk-labs/climate-cli/internal/db"
	"github.com/urbanrisk-labs/climate-cli/internal/fetcher"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
)

const defaultSVIURL = "https://www.atsdr.cdc.gov/placeandhealth/svi/data/SVI2020_US_county.csv"

// SVISource syncs the county-level social vulnerability survey. The provider
// has published vintages as a plain CSV, an XLSX workbook, and a zipped
// bundle, so the fetch path follows the configured URL's extension. We keep
// only the estimate variables the catalog consumes, mapping the -999 missing
// flag to NULL.
type SVISource struct {
	opts Options
}

func (s *SVISource) Name() string     { return "svi" }
func (s *SVISource) Table() string    { return "climate.svi_wide" }
func (s *SVISource) Cadence() Cadence { return Annual }

// ShouldRun gates on the vintage release month (October unless configured)
// so a new release is picked up once per year without hammering the host.
func (s *SVISource) ShouldRun(now time.Time, lastSync *time.Time) bool {
	month := s.opts.SVIReleaseMonth
	if month == 0 {
		month = time.October
	}
	return AnnualAfter(now, lastSync, month)
}

func (s *SVISource) url() string {
	if s.opts.SVIURL != "" {
		return s.opts.SVIURL
	}
	return defaultSVIURL
}

func (s *SVISource) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error) {
	log := zap.L().With(zap.String("source", s.Name()))
	log.Info("syncing county vulnerability survey", zap.String("url", s.url()))

	// The vintage ETag from the previous successful sync lets us skip the
	// download when the release has not moved.
	lastETag, err := NewLog(pool).LastETag(ctx, s.Name())
	if err != nil {
		return nil, eris.Wrap(err, "svi: last etag")
	}

	vars := registry.SVIVariables()

	allRows, etag, unchanged, err := fetchCountyRows(ctx, f, s.url(), tempDir, vars, lastETag)
	if err != nil {
		return nil, err
	}
	if unchanged {
		log.Info("vintage unchanged upstream", zap.String("etag", etag))
		return &SyncResult{Metadata: map[string]any{"etag": etag, "unchanged": true}}, nil
	}

	columns := []string{"fips", "county", "st_abbr"}
	for _, v := range vars {
		columns = append(columns, strings.ToLower(v))
	}

	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        s.Table(),
		Columns:      columns,
		ConflictKeys: []string{"fips"},
	}, allRows)
	if err != nil {
		return nil, eris.Wrap(err, "svi: upsert")
	}

	log.Info("svi sync complete", zap.Int64("counties", n))
	meta := map[string]any{"variables": len(vars)}
	if etag != "" {
		meta["etag"] = etag
	}
	return &SyncResult{RowsSynced: n, Metadata: meta}, nil
}

// fetchCountyRows downloads the vintage and parses it into upsert rows,
// returning (rows, etag, unchanged, error). Workbooks and zipped bundles go
// through a temp file since the XLSX reader needs a seekable path; plain CSV
// streams straight off the response body with a conditional GET.
func fetchCountyRows(ctx context.Context, f fetcher.Fetcher, url, tempDir string, vars []string, lastETag string) ([][]any, string, bool, error) {
	switch {
	case hasExt(url, ".xlsx"), hasExt(url, ".zip"):
		etag, err := f.HeadETag(ctx, url)
		if err != nil {
			zap.L().Warn("etag check failed", zap.String("source", "svi"), zap.Error(err))
		}
		if etag != "" && etag == lastETag {
			return nil, etag, true, nil
		}

		path := filepath.Join(tempDir, filepath.Base(url))
		if _, err := f.DownloadToFile(ctx, url, path); err != nil {
			return nil, "", false, eris.Wrap(err, "svi: download")
		}
		if hasExt(path, ".zip") {
			path, err = sviArchiveMember(path, tempDir)
			if err != nil {
				return nil, "", false, err
			}
		}
		rows, err := countyRowsFromFile(ctx, path, vars)
		return rows, etag, false, err

	default:
		body, etag, changed, err := f.DownloadIfChanged(ctx, url, lastETag)
		if err != nil {
			return nil, "", false, eris.Wrap(err, "svi: download")
		}
		if !changed {
			return nil, etag, true, nil
		}
		defer body.Close() //nolint:errcheck
		rows, err := countyRows(ctx, body, vars)
		return rows, etag, false, err
	}
}

// sviArchiveMember extracts a zipped bundle and returns the data table
// inside it. The bundles ship documentation alongside a single CSV or XLSX
// member.
func sviArchiveMember(zipPath, destDir string) (string, error) {
	files, err := fetcher.ExtractZIP(zipPath, destDir)
	if err != nil {
		return "", eris.Wrap(err, "svi: extract archive")
	}
	for _, p := range files {
		if hasExt(p, ".csv") || hasExt(p, ".xlsx") {
			return p, nil
		}
	}
	return "", eris.Errorf("svi: no data table in archive %s", filepath.Base(zipPath))
}

// countyRowsFromFile parses a downloaded vintage, dispatching on extension.
func countyRowsFromFile(ctx context.Context, path string, vars []string) ([][]any, error) {
	if hasExt(path, ".xlsx") {
		return countyRowsXLSX(ctx, path, vars)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "svi: open download")
	}
	defer file.Close() //nolint:errcheck
	return countyRows(ctx, file, vars)
}

// countyRows parses a CSV vintage.
func countyRows(ctx context.Context, r io.Reader, vars []string) ([][]any, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})
	return collectCountyRows(headerCh, rowCh, errCh, vars)
}

// countyRowsXLSX parses a workbook vintage. The data sheet is the first one
// and carries the same columns as the CSV, header on row one.
func countyRowsXLSX(ctx context.Context, path string, vars []string) ([][]any, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamXLSX(ctx, path, fetcher.XLSXOptions{
		SkipRows: 1,
		HeaderCh: headerCh,
	})
	return collectCountyRows(headerCh, rowCh, errCh, vars)
}

// collectCountyRows drains a parsed vintage into upsert rows: FIPS, county
// name, state, then one value per requested variable. Rows without a FIPS
// are summary lines and are skipped.
func collectCountyRows(headerCh <-chan []string, rowCh <-chan []string, errCh <-chan error, vars []string) ([][]any, error) {
	var colIdx map[string]int
	var rows [][]any

	for rec := range rowCh {
		if colIdx == nil {
			colIdx = mapColumns(<-headerCh)
		}

		fips := getCol(rec, colIdx, "FIPS")
		if fips == "" {
			continue
		}

		row := []any{
			fips,
			getCol(rec, colIdx, "COUNTY"),
			getCol(rec, colIdx, "ST_ABBR"),
		}
		for _, v := range vars {
			row = append(row, sviFloat(getCol(rec, colIdx, v)))
		}
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "svi: parse")
	}
	return rows, nil
}

func hasExt(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}
