// Package ingest synchronizes the upstream climate and vulnerability data
// into Postgres: daily station weather, national development indicators, and
// the county vulnerability survey. Each source knows its own cadence and
// wire format; the engine schedules them and records outcomes in
// climate.ingest_log.
package ingest

import (
	"context"
	"time"

	"github.com/urbanrisk-labs/climate-cli/internal/db"
	"github.com/urbanrisk-labs/climate-cli/internal/fetcher"
)

// Cadence describes how often a source publishes new data.
type Cadence string

const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
	Annual  Cadence = "annual"
)

// SyncResult holds the outcome of a source sync.
type SyncResult struct {
	RowsSynced int64          `json:"rows_synced"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Options carries source endpoints and tunables. Zero values select the
// public production endpoints.
type Options struct {
	MeteostatBaseURL string // daily bulk archive, default https://bulk.meteostat.net/v2
	MeteostatMirror  string // optional ftp:// mirror tried when HTTPS fails
	WorldBankBaseURL string // default https://api.worldbank.org/v2
	SVIURL           string // county vulnerability CSV, default the 2020 US release
	SVIReleaseMonth  time.Month
}

// Source defines the interface each upstream dataset implements.
type Source interface {
	// Name returns the unique identifier for this source (e.g., "weather").
	Name() string

	// Table returns the primary target table (e.g., "climate.weather_daily").
	Table() string

	// Cadence returns how often this source is updated upstream.
	Cadence() Cadence

	// ShouldRun decides if this source needs syncing given the current time
	// and the time of the last successful sync (nil if never synced).
	ShouldRun(now time.Time, lastSync *time.Time) bool

	// Sync performs the actual download, parse, and load into Postgres.
	// tempDir is a working directory for temporary files.
	Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error)
}
