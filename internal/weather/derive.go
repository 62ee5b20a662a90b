package weather

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Input keys produced by Derive. They match the weather-kind inputs of the
// sub-index catalog.
const (
	InputHeatExtremeFreq = "temp.heat_extreme_freq"
	InputTempVariability = "temp.variability"
	InputWarmingTrend    = "temp.warming_trend"
	InputFloodProxy      = "precip.flood_proxy"
	InputDroughtFreq     = "precip.drought_freq"
	InputPrecipVariation = "precip.variability"
)

// Fixed derivation parameters. Each derivation returns nil instead of a
// default when its minimum data requirement is unmet, so thin records never
// masquerade as measurements.
const (
	// hotDayThresholdC is the absolute hot-day cutoff. A city-relative
	// percentile would put ~10% of days above it for every city and carry no
	// cross-sectional signal.
	hotDayThresholdC = 35.0
	// dryDayThresholdMM is the daily precipitation below which a day extends
	// a dry spell.
	dryDayThresholdMM = 1.0
	// drySpellDays is the minimum consecutive dry run counted as a spell.
	drySpellDays = 14

	minTempDays       = 30
	minPrcpDays       = 30
	minDroughtDays    = 90
	minYearObs        = 300
	minTrendYears     = 2
	minMonthObs       = 15
	minVariableMonths = 3
)

// Derive computes the six raw climate-risk inputs from a city's daily
// series. Every key is always present in the result; unmet minimums yield
// nil values.
func Derive(days []Day) map[string]*float64 {
	return map[string]*float64{
		InputHeatExtremeFreq: heatExtremeFreq(days),
		InputTempVariability: tempVariability(days),
		InputWarmingTrend:    warmingTrend(days),
		InputFloodProxy:      floodProxy(days),
		InputDroughtFreq:     droughtFreq(days),
		InputPrecipVariation: precipVariability(days),
	}
}

// heatExtremeFreq is the fraction of observed tmax days at or above the
// hot-day threshold.
func heatExtremeFreq(days []Day) *float64 {
	var observed, hot int
	for _, d := range days {
		if d.TMax == nil {
			continue
		}
		observed++
		if *d.TMax >= hotDayThresholdC {
			hot++
		}
	}
	if observed < minTempDays {
		return nil
	}
	v := float64(hot) / float64(observed)
	return &v
}

// tempVariability is the standard deviation of the daily mean temperature.
func tempVariability(days []Day) *float64 {
	var temps []float64
	for _, d := range days {
		if t := d.MeanTemp(); t != nil {
			temps = append(temps, *t)
		}
	}
	if len(temps) < minTempDays {
		return nil
	}
	v := stat.StdDev(temps, nil)
	return &v
}

// warmingTrend is the least-squares slope of annual mean temperature in
// degrees per year, over years with enough coverage to mean something.
func warmingTrend(days []Day) *float64 {
	type yearAgg struct {
		sum float64
		n   int
	}
	byYear := make(map[int]*yearAgg)
	for _, d := range days {
		t := d.MeanTemp()
		if t == nil {
			continue
		}
		agg := byYear[d.Date.Year()]
		if agg == nil {
			agg = &yearAgg{}
			byYear[d.Date.Year()] = agg
		}
		agg.sum += *t
		agg.n++
	}

	var years []int
	for y, agg := range byYear {
		if agg.n >= minYearObs {
			years = append(years, y)
		}
	}
	if len(years) < minTrendYears {
		return nil
	}
	sort.Ints(years)

	xs := make([]float64, len(years))
	ys := make([]float64, len(years))
	for i, y := range years {
		xs[i] = float64(y)
		agg := byYear[y]
		ys[i] = agg.sum / float64(agg.n)
	}

	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return &slope
}

// floodProxy is the maximum one-day precipitation over the window (Rx1day).
func floodProxy(days []Day) *float64 {
	var observed int
	var max float64
	for _, d := range days {
		if d.Prcp == nil {
			continue
		}
		observed++
		if *d.Prcp > max {
			max = *d.Prcp
		}
	}
	if observed < minPrcpDays {
		return nil
	}
	return &max
}

// droughtFreq counts dry spells of at least drySpellDays consecutive
// calendar days, per 365 days of precipitation record. A missing observation
// or a calendar gap breaks the run.
func droughtFreq(days []Day) *float64 {
	var observed, spells, run int
	var prevDate time.Time

	flush := func() {
		if run >= drySpellDays {
			spells++
		}
		run = 0
	}

	for _, d := range days {
		if d.Prcp == nil {
			flush()
			prevDate = time.Time{}
			continue
		}
		observed++
		if !prevDate.IsZero() && d.Date.Sub(prevDate) != 24*time.Hour {
			flush()
		}
		prevDate = d.Date
		if *d.Prcp < dryDayThresholdMM {
			run++
		} else {
			flush()
		}
	}
	flush()

	if observed < minDroughtDays {
		return nil
	}
	v := float64(spells) / (float64(observed) / 365.0)
	return &v
}

// precipVariability is the coefficient of variation of calendar-month
// precipitation totals. Months with thin coverage are excluded; a city with
// no rain at all has no defined variability.
func precipVariability(days []Day) *float64 {
	type monthAgg struct {
		total float64
		n     int
	}
	byMonth := make(map[string]*monthAgg)
	for _, d := range days {
		if d.Prcp == nil {
			continue
		}
		key := d.Date.Format("2006-01")
		agg := byMonth[key]
		if agg == nil {
			agg = &monthAgg{}
			byMonth[key] = agg
		}
		agg.total += *d.Prcp
		agg.n++
	}

	var totals []float64
	for _, agg := range byMonth {
		if agg.n >= minMonthObs {
			totals = append(totals, agg.total)
		}
	}
	if len(totals) < minVariableMonths {
		return nil
	}

	mean := stat.Mean(totals, nil)
	if mean == 0 {
		return nil
	}
	v := stat.StdDev(totals, nil) / mean
	return &v
}
