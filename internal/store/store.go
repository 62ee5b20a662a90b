// Package store persists pipeline batches and assembles pipeline inputs
// from ingested observations. Two implementations exist: Postgres for the
// shared deployment and SQLite for local runs; config picks the driver.
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Attempted   int       `json:"attempted"`
	Scored      int       `json:"scored"`
	Excluded    int       `json:"excluded"`
}

// Store defines the persistence interface for the index pipeline. Batches
// are immutable once saved: a rerun writes a new run_id, never updates an
// old one, so result sets stay diffable across runs.
type Store interface {
	// SaveBatch persists a complete pipeline result set.
	SaveBatch(ctx context.Context, batch *model.BatchResult) error

	// GetBatch reassembles a saved batch. Records come back in rank order;
	// other sections in deterministic (not original) order.
	GetBatch(ctx context.Context, runID string) (*model.BatchResult, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// LoadCityTables assembles per-city raw tables from ingested rows:
	// weather as a daily series, national indicators long, the county
	// vulnerability row wide (so the production path exercises the same
	// pivot as file input).
	LoadCityTables(ctx context.Context, cities []model.City) (map[string]map[model.Source][]model.Table, error)

	// Migrate brings the schema up to date.
	Migrate(ctx context.Context) error

	Close() error
}

// fstr formats an optional observation for a raw table cell. Absent values
// become empty cells, which the harmonizer and weather parser drop.
func fstr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
