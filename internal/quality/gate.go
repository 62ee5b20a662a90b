// Package quality implements the data-quality gate: the per-city, per-source
// status and completeness assessment that decides whether a city enters the
// index computation at all. The gate only reports; it never repairs data and
// never aborts a batch.
package quality

import (
	"github.com/urbanrisk-labs/climate-cli/internal/harmonize"
	"github.com/urbanrisk-labs/climate-cli/internal/model"
	"github.com/urbanrisk-labs/climate-cli/internal/weather"
)

// Assess evaluates every source for one city and derives the admission
// decision: at least one source must be usable (success or needs_conversion)
// for the city to enter the pipeline. needs_conversion stays distinct from
// success throughout; callers that only want scorable sources must check
// both.
func Assess(city string, tables map[model.Source][]model.Table) model.CityQuality {
	cq := model.CityQuality{City: city, Sources: make([]model.SourceAssessment, 0, len(model.Sources))}

	for _, src := range model.Sources {
		tbl := harmonize.SelectPreferred(tables[src])
		var a model.SourceAssessment
		if tbl == nil {
			a = model.SourceAssessment{Source: src, Status: model.StatusMissing}
		} else if src == model.SourceWeather {
			a = assessWeather(*tbl)
		} else {
			a = assessIndicators(*tbl)
		}
		cq.Sources = append(cq.Sources, a)
		if a.Status.Usable() {
			cq.Admitted = true
		}
	}
	return cq
}

// assessWeather checks the daily series. Each row contributes two possible
// data points, one temperature and one precipitation; a row whose date does
// not parse contributes its possible points but no present ones.
func assessWeather(tbl model.Table) model.SourceAssessment {
	days, err := weather.FromTable(tbl)
	if err != nil {
		return model.SourceAssessment{
			Source: model.SourceWeather,
			Status: model.StatusError,
			Rows:   len(tbl.Rows),
			Detail: err.Error(),
		}
	}

	possible := 2 * len(tbl.Rows)
	present := 0
	for _, d := range days {
		if d.TempObserved() {
			present++
		}
		if d.PrcpObserved() {
			present++
		}
	}

	return model.SourceAssessment{
		Source:       model.SourceWeather,
		Status:       model.StatusSuccess,
		Completeness: percent(present, possible),
		Rows:         len(tbl.Rows),
	}
}

// assessIndicators classifies an indicator table through the harmonizer's
// layout detection and counts parseable value cells against possible ones.
func assessIndicators(tbl model.Table) model.SourceAssessment {
	out := harmonize.Harmonize(tbl)
	a := model.SourceAssessment{
		Source: tbl.Source,
		Status: out.Status,
		Rows:   len(tbl.Rows),
		Detail: out.Detail,
	}
	if out.Status == model.StatusError {
		return a
	}

	colIdx := harmonize.MapColumns(tbl.Columns)
	var possible, present int

	switch l := out.Layout.(type) {
	case harmonize.LongLayout:
		possible = len(tbl.Rows)
		for _, row := range tbl.Rows {
			if harmonize.ParseValue(harmonize.Col(row, colIdx, l.ValueColumn)) != nil {
				present++
			}
		}
	case harmonize.WideLayout:
		possible = len(tbl.Rows) * len(l.CodeColumns)
		for _, row := range tbl.Rows {
			for _, code := range l.CodeColumns {
				if harmonize.ParseValue(harmonize.Col(row, colIdx, code)) != nil {
					present++
				}
			}
		}
	}

	a.Completeness = percent(present, possible)
	return a
}

func percent(present, possible int) float64 {
	if possible == 0 {
		return 0
	}
	return float64(present) / float64(possible) * 100
}
