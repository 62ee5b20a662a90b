// Package normalize rescales raw indicator values onto [0,1] against the
// batch's own cross-sectional distribution. Nothing here is stateful: the
// reference min/max always comes from the values supplied in the call, never
// from a fixed global scale.
package normalize

import "github.com/urbanrisk-labs/climate-cli/internal/model"

// Stats is the cross-sectional min/max for one indicator, computed once at
// the batch barrier and read-only afterwards.
type Stats struct {
	Min float64
	Max float64
	N   int
}

// Compute scans the non-missing values of one indicator across the batch.
func Compute(values map[string]*float64) Stats {
	var s Stats
	for _, v := range values {
		if v == nil {
			continue
		}
		if s.N == 0 || *v < s.Min {
			s.Min = *v
		}
		if s.N == 0 || *v > s.Max {
			s.Max = *v
		}
		s.N++
	}
	return s
}

// Degenerate reports a zero-variance distribution (single city or constant
// indicator). Not an error: every present value maps to the 0.5 neutral.
func (s Stats) Degenerate() bool {
	return s.N > 0 && s.Max == s.Min
}

// Apply rescales one raw value. Callers must only pass values that were part
// of the batch Compute ran over.
func (s Stats) Apply(v float64) float64 {
	if s.Degenerate() {
		return 0.5
	}
	return (v - s.Min) / (s.Max - s.Min)
}

// Normalize maps each city's raw value onto [0,1] by cross-sectional
// min-max. Missing values pass through as nil; substituting zero or the mean
// would silently bias the index. The polarity is recorded by the caller per
// indicator; both polarities scale identically here because capacity
// indicators that run in the risk direction are already inverted upstream
// from the fixed catalog, never inferred.
func Normalize(values map[string]*float64, polarity model.Polarity) map[string]*float64 {
	stats := Compute(values)

	out := make(map[string]*float64, len(values))
	for city, v := range values {
		if v == nil {
			out[city] = nil
			continue
		}
		n := stats.Apply(*v)
		out[city] = &n
	}
	return out
}
