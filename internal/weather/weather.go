// Package weather parses daily station observation tables and derives the
// per-city climate-risk inputs from them. Derivations produce raw values
// that are normalized cross-sectionally downstream like any other indicator.
package weather

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/urbanrisk-labs/climate-cli/internal/harmonize"
	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

// Day is one parsed daily observation. Any field other than the date may be
// missing.
type Day struct {
	Date time.Time
	TAvg *float64
	TMin *float64
	TMax *float64
	Prcp *float64
}

// MeanTemp is the day's mean temperature: tavg when observed, otherwise the
// tmin/tmax midpoint, otherwise nil.
func (d Day) MeanTemp() *float64 {
	if d.TAvg != nil {
		return d.TAvg
	}
	if d.TMin != nil && d.TMax != nil {
		m := (*d.TMin + *d.TMax) / 2
		return &m
	}
	return nil
}

// TempObserved reports whether the day carries a usable temperature point.
func (d Day) TempObserved() bool { return d.MeanTemp() != nil }

// PrcpObserved reports whether the day carries a precipitation point.
func (d Day) PrcpObserved() bool { return d.Prcp != nil }

var (
	dateColumns = []string{"date", "time"}
	tavgColumns = []string{"temp_avg", "tavg"}
	tminColumns = []string{"temp_min", "tmin"}
	tmaxColumns = []string{"temp_max", "tmax"}
	prcpColumns = []string{"precipitation_mm", "prcp", "precip"}
)

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006"}

// Station archives encode absent observations as large negative sentinels
// (-999, -9999.9). Anything below this floor is treated as missing.
const sentinelFloor = -95.0

// FromTable parses a raw weather table into ordered days. The only hard
// error is a header without a date column; individual bad rows and sentinel
// cells are dropped, which the completeness percentage then reflects.
func FromTable(tbl model.Table) ([]Day, error) {
	dateCol, ok := harmonize.FirstCol(tbl.Columns, dateColumns...)
	if !ok {
		return nil, eris.Errorf("weather: table for %s has no date column", tbl.City)
	}

	colIdx := harmonize.MapColumns(tbl.Columns)
	days := make([]Day, 0, len(tbl.Rows))

	for _, row := range tbl.Rows {
		date, ok := parseDate(harmonize.Col(row, colIdx, dateCol))
		if !ok {
			continue
		}
		days = append(days, Day{
			Date: date,
			TAvg: tempCell(row, colIdx, tavgColumns),
			TMin: tempCell(row, colIdx, tminColumns),
			TMax: tempCell(row, colIdx, tmaxColumns),
			Prcp: prcpCell(row, colIdx),
		})
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func tempCell(row []string, colIdx map[string]int, candidates []string) *float64 {
	for _, name := range candidates {
		v := harmonize.ParseValue(harmonize.Col(row, colIdx, name))
		if v == nil {
			continue
		}
		if *v <= sentinelFloor {
			return nil
		}
		return v
	}
	return nil
}

func prcpCell(row []string, colIdx map[string]int) *float64 {
	for _, name := range prcpColumns {
		v := harmonize.ParseValue(harmonize.Col(row, colIdx, name))
		if v == nil {
			continue
		}
		if *v < 0 {
			return nil
		}
		return v
	}
	return nil
}
