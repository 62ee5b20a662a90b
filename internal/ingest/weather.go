package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbanrisk-labs/climate-cli/internal/db"
	"github.com/urbanrisk-labs/climate-cli/internal/fetcher"
	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

const defaultMeteostatBaseURL = "https://bulk.meteostat.net/v2"

// WeatherSource syncs daily station observations from the meteostat-style
// bulk archive. Each city maps to one station file, a gzipped CSV without
// a header row: date, tavg, tmin, tmax, prcp, then columns we ignore.
type WeatherSource struct {
	cities []model.City
	opts   Options
}

func (s *WeatherSource) Name() string     { return "weather" }
func (s *WeatherSource) Table() string    { return "climate.weather_daily" }
func (s *WeatherSource) Cadence() Cadence { return Monthly }

func (s *WeatherSource) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return MonthlySchedule(now, lastSync)
}

func (s *WeatherSource) baseURL() string {
	if s.opts.MeteostatBaseURL != "" {
		return strings.TrimRight(s.opts.MeteostatBaseURL, "/")
	}
	return defaultMeteostatBaseURL
}

func (s *WeatherSource) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error) {
	log := zap.L().With(zap.String("source", s.Name()))
	log.Info("syncing station weather", zap.Int("cities", len(s.cities)))

	var allRows [][]any
	var synced, skipped int

	for _, city := range s.cities {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if city.WeatherStation == "" {
			log.Warn("city has no weather station mapped", zap.String("city", city.Name))
			skipped++
			continue
		}

		rows, err := s.stationRows(ctx, f, city)
		if err != nil {
			log.Warn("skip station",
				zap.String("city", city.Name),
				zap.String("station", city.WeatherStation),
				zap.Error(err))
			skipped++
			continue
		}

		allRows = append(allRows, rows...)
		synced++
	}

	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        s.Table(),
		Columns:      []string{"city", "obs_date", "tavg", "tmin", "tmax", "prcp"},
		ConflictKeys: []string{"city", "obs_date"},
	}, allRows)
	if err != nil {
		return nil, eris.Wrap(err, "weather: upsert")
	}

	log.Info("weather sync complete", zap.Int64("rows", n), zap.Int("stations", synced))
	return &SyncResult{
		RowsSynced: n,
		Metadata:   map[string]any{"stations_synced": synced, "stations_skipped": skipped},
	}, nil
}

// stationRows downloads and parses one station's daily bulk file.
func (s *WeatherSource) stationRows(ctx context.Context, f fetcher.Fetcher, city model.City) ([][]any, error) {
	url := fmt.Sprintf("%s/daily/%s.csv.gz", s.baseURL(), city.WeatherStation)

	body, err := f.Download(ctx, url)
	if err != nil {
		if s.opts.MeteostatMirror == "" {
			return nil, err
		}
		body, err = s.mirrorDownload(ctx, city.WeatherStation)
		if err != nil {
			return nil, err
		}
	}
	defer body.Close()

	plain, err := fetcher.Decompress(body)
	if err != nil {
		return nil, eris.Wrapf(err, "weather: decompress station %s", city.WeatherStation)
	}

	rowCh, errCh := fetcher.StreamCSV(ctx, plain, fetcher.CSVOptions{TrimSpace: true})

	var rows [][]any
	for rec := range rowCh {
		if len(rec) < 5 {
			continue
		}
		obsDate, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			continue
		}
		rows = append(rows, []any{
			city.Name,
			obsDate,
			nullableFloat(rec[1]),
			nullableFloat(rec[2]),
			nullableFloat(rec[3]),
			nullableFloat(rec[4]),
		})
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "weather: parse station %s", city.WeatherStation)
	}
	return rows, nil
}

// mirrorDownload falls back to the FTP mirror for station archives the
// primary endpoint failed to serve.
func (s *WeatherSource) mirrorDownload(ctx context.Context, station string) (io.ReadCloser, error) {
	ftpf := fetcher.NewFTPFetcher(fetcher.FTPOptions{})
	url := fmt.Sprintf("%s/daily/%s.csv.gz", strings.TrimRight(s.opts.MeteostatMirror, "/"), station)
	return ftpf.Download(ctx, url)
}
