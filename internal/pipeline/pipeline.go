// Package pipeline orchestrates a batch index run: per-city gate and
// harmonization fan out concurrently, a barrier collects every indicator's
// cross-sectional raw values, then normalization, aggregation, and
// composition fan out again. Per-city problems become statuses and
// exclusions; only structural failures (an empty registry) abort the run.
package pipeline

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/urbanrisk-labs/climate-cli/internal/index"
	"github.com/urbanrisk-labs/climate-cli/internal/model"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
)

// Params is the explicit configuration for one run. Everything the pipeline
// consults lives here; there is no ambient state.
type Params struct {
	Cities      []model.City
	Thresholds  index.Thresholds
	Concurrency int
	Clock       clockwork.Clock
}

// Inputs carries the per-city raw tables, keyed by city name as the loader
// found it. Lookup folds accents and case so table keys need not byte-match
// the registry.
type Inputs struct {
	Tables map[string]map[model.Source][]model.Table
}

const defaultConcurrency = 8

// Run executes the full batch and returns an immutable result set. Every
// registry city appears in the result exactly once: scored in Records or
// explained in Exclusions.
func Run(ctx context.Context, params Params, inputs Inputs) (*model.BatchResult, error) {
	if len(params.Cities) == 0 {
		return nil, eris.New("pipeline: city registry is empty")
	}
	if err := params.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if params.Concurrency <= 0 {
		params.Concurrency = defaultConcurrency
	}
	if params.Clock == nil {
		params.Clock = clockwork.NewRealClock()
	}

	log := zap.L().With(zap.String("component", "pipeline"))
	log.Info("starting batch", zap.Int("cities", len(params.Cities)), zap.Int("concurrency", params.Concurrency))

	// Stage 1: gate + harmonize + weather derivation, one city at a time,
	// no shared mutable state.
	harvests := make([]harvest, len(params.Cities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(params.Concurrency)
	for i, city := range params.Cities {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			harvests[i] = harvestCity(city, lookupTables(inputs, city.Name))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: harvest stage")
	}

	// Barrier: cross-sectional statistics need every city's raw values
	// before any single city can be normalized.
	normalized := normalizeAll(harvests)

	// Stage 2: per-city aggregation and composition over the now-frozen
	// statistics.
	records := make([]*model.VulnerabilityRecord, len(params.Cities))
	exclusions := make([]*model.Exclusion, len(params.Cities))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(params.Concurrency)
	for i, city := range params.Cities {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h := harvests[i]
			if !h.quality.Admitted {
				exclusions[i] = &model.Exclusion{
					City:   city.Name,
					Reason: model.ExclusionNoUsableSources,
					Detail: "every source was missing or unreadable",
				}
				return nil
			}
			subs := index.AggregateAll(cityInputs(normalized, city.Name))
			rec, excl := index.Compose(city, subs, params.Thresholds)
			if excl != nil {
				exclusions[i] = excl
				return nil
			}
			rec.Sources = h.quality.Sources
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: scoring stage")
	}

	result := &model.BatchResult{
		RunID:       uuid.NewString(),
		GeneratedAt: params.Clock.Now().UTC(),
		Attempted:   len(params.Cities),
	}
	for i := range params.Cities {
		result.Quality = append(result.Quality, harvests[i].quality)
		if records[i] != nil {
			records[i].RunID = result.RunID
			records[i].GeneratedAt = result.GeneratedAt
			result.Records = append(result.Records, *records[i])
		}
		if exclusions[i] != nil {
			result.Exclusions = append(result.Exclusions, *exclusions[i])
		}
	}

	rank(result.Records)
	result.Correlations = correlate(result.Records)

	log.Info("batch complete",
		zap.String("run_id", result.RunID),
		zap.Int("scored", len(result.Records)),
		zap.Int("excluded", len(result.Exclusions)),
	)
	return result, nil
}

// lookupTables finds a city's tables under any spelling that folds to the
// registry name.
func lookupTables(inputs Inputs, cityName string) map[model.Source][]model.Table {
	if tables, ok := inputs.Tables[cityName]; ok {
		return tables
	}
	want := registry.FoldName(cityName)
	for key, tables := range inputs.Tables {
		if registry.FoldName(key) == want {
			return tables
		}
	}
	return nil
}

// rank orders records by score descending with the city name as a
// deterministic tiebreak, then stamps 1-based ranks.
func rank(records []model.VulnerabilityRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].City < records[j].City
	})
	for i := range records {
		records[i].Rank = i + 1
	}
}
