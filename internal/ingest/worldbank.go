package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbanrisk-labs/climate-cli/internal/db"
	"github.com/urbanrisk-labs/climate-cli/internal/fetcher"
	"github.com/urbanrisk-labs/climate-cli/internal/model"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
)

const defaultWorldBankBaseURL = "https://api.worldbank.org/v2"

// WorldBankSource syncs the national development indicators the catalog
// maps onto sub-index inputs. The API wraps every response in a two-element
// array: paging metadata first, then the observation list.
type WorldBankSource struct {
	cities []model.City
	opts   Options
}

func (s *WorldBankSource) Name() string     { return "worldbank" }
func (s *WorldBankSource) Table() string    { return "climate.indicator_obs" }
func (s *WorldBankSource) Cadence() Cadence { return Monthly }

func (s *WorldBankSource) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return MonthlySchedule(now, lastSync)
}

func (s *WorldBankSource) baseURL() string {
	if s.opts.WorldBankBaseURL != "" {
		return strings.TrimRight(s.opts.WorldBankBaseURL, "/")
	}
	return defaultWorldBankBaseURL
}

type wbPage struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
}

type wbObservation struct {
	Indicator struct {
		ID string `json:"id"`
	} `json:"indicator"`
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
}

func (s *WorldBankSource) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error) {
	log := zap.L().With(zap.String("source", s.Name()))

	countries := s.countryCodes()
	codes := registry.WorldBankCodes()
	log.Info("syncing national indicators",
		zap.Int("countries", len(countries)),
		zap.Int("indicators", len(codes)))

	var allRows [][]any

	for _, country := range countries {
		for _, code := range codes {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			rows, err := s.seriesRows(ctx, f, country, code)
			if err != nil {
				log.Warn("skip series",
					zap.String("country", country),
					zap.String("indicator", code),
					zap.Error(err))
				continue
			}
			allRows = append(allRows, rows...)
		}
	}

	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        s.Table(),
		Columns:      []string{"country_code", "indicator_id", "year", "value"},
		ConflictKeys: []string{"country_code", "indicator_id", "year"},
	}, allRows)
	if err != nil {
		return nil, eris.Wrap(err, "worldbank: upsert")
	}

	log.Info("worldbank sync complete", zap.Int64("rows", n))
	return &SyncResult{
		RowsSynced: n,
		Metadata:   map[string]any{"countries": len(countries), "indicators": len(codes)},
	}, nil
}

// seriesRows pages through one country+indicator series. Null observations
// (years the country never reported) are dropped here rather than stored.
func (s *WorldBankSource) seriesRows(ctx context.Context, f fetcher.Fetcher, country, code string) ([][]any, error) {
	var rows [][]any

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/country/%s/indicator/%s?format=json&per_page=200&page=%d",
			s.baseURL(), country, code, page)

		body, err := f.Download(ctx, url)
		if err != nil {
			return nil, err
		}

		envelope, err := fetcher.DecodeJSONObject[[]json.RawMessage](body)
		body.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "worldbank: decode %s/%s page %d", country, code, page)
		}
		if len(*envelope) < 2 {
			return nil, eris.Errorf("worldbank: response for %s/%s has no observation element", country, code)
		}

		var meta wbPage
		if err := json.Unmarshal((*envelope)[0], &meta); err != nil {
			return nil, eris.Wrapf(err, "worldbank: decode paging for %s/%s", country, code)
		}

		var obs []wbObservation
		if err := json.Unmarshal((*envelope)[1], &obs); err != nil {
			return nil, eris.Wrapf(err, "worldbank: decode observations for %s/%s", country, code)
		}

		for _, o := range obs {
			if o.Value == nil {
				continue
			}
			year, err := strconv.Atoi(o.Date)
			if err != nil {
				continue
			}
			rows = append(rows, []any{country, o.Indicator.ID, year, *o.Value})
		}

		if meta.Page >= meta.Pages {
			break
		}
	}

	return rows, nil
}

// countryCodes returns the distinct ISO alpha-3 codes across the roster,
// sorted for deterministic request order.
func (s *WorldBankSource) countryCodes() []string {
	seen := make(map[string]bool, len(s.cities))
	var codes []string
	for _, c := range s.cities {
		if c.CountryCode == "" || seen[c.CountryCode] {
			continue
		}
		seen[c.CountryCode] = true
		codes = append(codes, c.CountryCode)
	}
	sort.Strings(codes)
	return codes
}
