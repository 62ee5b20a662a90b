package pipeline

import (
	"github.com/urbanrisk-labs/climate-cli/internal/harmonize"
	"github.com/urbanrisk-labs/climate-cli/internal/model"
	"github.com/urbanrisk-labs/climate-cli/internal/normalize"
	"github.com/urbanrisk-labs/climate-cli/internal/quality"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
	"github.com/urbanrisk-labs/climate-cli/internal/weather"
)

// harvest is the stage-1 product for one city: the gate report plus the raw
// material scoring needs. City keys downstream always use the registry
// spelling, never the loader's.
type harvest struct {
	city    string
	quality model.CityQuality
	records []model.RawIndicatorRecord
	weather map[string]*float64
}

// harvestCity gates one city's tables and extracts harmonized records and
// derived weather inputs from every usable source. Unusable sources
// contribute nothing here; their story is told by the quality report.
func harvestCity(city model.City, tables map[model.Source][]model.Table) harvest {
	h := harvest{
		city:    city.Name,
		quality: quality.Assess(city.Name, tables),
	}
	if !h.quality.Admitted {
		return h
	}

	usable := make(map[model.Source]bool, len(h.quality.Sources))
	for _, a := range h.quality.Sources {
		usable[a.Source] = a.Status.Usable()
	}

	if usable[model.SourceWeather] {
		if tbl := harmonize.SelectPreferred(tables[model.SourceWeather]); tbl != nil {
			if days, err := weather.FromTable(*tbl); err == nil {
				h.weather = weather.Derive(days)
			}
		}
	}

	for _, src := range []model.Source{model.SourceWorldBank, model.SourceSVI} {
		if !usable[src] {
			continue
		}
		if tbl := harmonize.SelectPreferred(tables[src]); tbl != nil {
			h.records = append(h.records, harmonize.Harmonize(*tbl).Records...)
		}
	}
	return h
}

// rawObs tracks the authoritative observation for one (city, indicator):
// the latest period wins, with the later record breaking period ties.
type rawObs struct {
	value float64
	year  int
	set   bool
}

// normalizeAll is the barrier step: it assembles every indicator's raw
// cross-sectional vector, freezes min/max statistics, and returns the
// normalized value of every input for every city, keyed input → city.
func normalizeAll(harvests []harvest) map[string]map[string]*float64 {
	components := collectComponents(harvests)

	// Normalize each catalog component against its own cross-section.
	componentNorm := make(map[string]map[string]*float64)
	for _, def := range registry.Definitions() {
		for _, in := range def.Inputs {
			if in.Kind != registry.KindComposite {
				continue
			}
			for _, comp := range in.Components {
				vector := make(map[string]*float64, len(harvests))
				for _, h := range harvests {
					if obs, ok := components[comp.IndicatorID][h.city]; ok && obs.set {
						v := comp.Adjust(obs.value)
						vector[h.city] = &v
					} else {
						vector[h.city] = nil
					}
				}
				componentNorm[comp.IndicatorID] = normalize.Normalize(vector, def.Polarity)
			}
		}
	}

	inputs := make(map[string]map[string]*float64)
	for _, def := range registry.Definitions() {
		for _, in := range def.Inputs {
			switch in.Kind {
			case registry.KindWeather:
				vector := make(map[string]*float64, len(harvests))
				for _, h := range harvests {
					vector[h.city] = h.weather[in.Key]
				}
				inputs[in.Key] = normalize.Normalize(vector, def.Polarity)

			case registry.KindShares:
				vector := make(map[string]*float64, len(harvests))
				for _, h := range harvests {
					vector[h.city] = sharesDiversity(in, components, h.city)
				}
				inputs[in.Key] = normalize.Normalize(vector, def.Polarity)

			case registry.KindComposite:
				vector := make(map[string]*float64, len(harvests))
				for _, h := range harvests {
					vector[h.city] = compositeMean(in, componentNorm, h.city)
				}
				inputs[in.Key] = vector
			}
		}
	}
	return inputs
}

// collectComponents picks the authoritative raw observation per
// (indicator, city) out of the harmonized records.
func collectComponents(harvests []harvest) map[string]map[string]rawObs {
	components := make(map[string]map[string]rawObs)
	for _, h := range harvests {
		for _, rec := range h.records {
			byCity := components[rec.IndicatorID]
			if byCity == nil {
				byCity = make(map[string]rawObs)
				components[rec.IndicatorID] = byCity
			}
			if cur := byCity[h.city]; !cur.set || rec.Year >= cur.year {
				byCity[h.city] = rawObs{value: rec.Value, year: rec.Year, set: true}
			}
		}
	}
	return components
}

// compositeMean averages the normalized components present for a city.
// Components are each already on [0,1], so no raw-scale mixing occurs; at
// least one must be present or the input is missing.
func compositeMean(in registry.Input, componentNorm map[string]map[string]*float64, city string) *float64 {
	var sum float64
	var n int
	for _, comp := range in.Components {
		if v := componentNorm[comp.IndicatorID][city]; v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

// sharesDiversity computes one minus the Herfindahl concentration over the
// present sector shares, renormalized to sum to one so a missing sector
// measures concentration among the observed ones. A measured zero share is a
// present observation (a fully services economy has zero agriculture, not
// missing agriculture); only negative values, which the provider publishes
// for some net-taxes adjustments, are skipped. Needs at least two present
// shares; the result is raw and gets normalized cross-sectionally like any
// other input.
func sharesDiversity(in registry.Input, components map[string]map[string]rawObs, city string) *float64 {
	var shares []float64
	var total float64
	for _, comp := range in.Components {
		if obs, ok := components[comp.IndicatorID][city]; ok && obs.set && obs.value >= 0 {
			shares = append(shares, obs.value)
			total += obs.value
		}
	}
	if len(shares) < 2 || total == 0 {
		return nil
	}

	var hhi float64
	for _, s := range shares {
		f := s / total
		hhi += f * f
	}
	v := 1 - hhi
	return &v
}

// cityInputs flattens the normalized batch values into one city's input map
// for aggregation.
func cityInputs(normalized map[string]map[string]*float64, city string) map[string]*float64 {
	inputs := make(map[string]*float64, len(normalized))
	for key, byCity := range normalized {
		inputs[key] = byCity[city]
	}
	return inputs
}
