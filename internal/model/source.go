package model

// Source identifies one of the upstream dataset families a city can have
// tables for.
type Source string

const (
	// SourceWeather is the daily station observation series (date, tavg,
	// tmin, tmax, prcp).
	SourceWeather Source = "weather"
	// SourceWorldBank is the national socioeconomic indicator table, long or
	// wide, keyed by indicator code.
	SourceWorldBank Source = "worldbank"
	// SourceSVI is the sub-national social-vulnerability table, wide by
	// geographic unit.
	SourceSVI Source = "svi"
)

// Sources lists every source in report order.
var Sources = []Source{SourceWeather, SourceWorldBank, SourceSVI}

// SourceStatus is the data-quality verdict for one city+source pair.
type SourceStatus string

const (
	// StatusMissing means no table was supplied for the pair.
	StatusMissing SourceStatus = "missing"
	// StatusError means a table was supplied but could not be interpreted.
	StatusError SourceStatus = "error"
	// StatusNeedsConversion means the table is usable but in a layout that
	// requires pivoting before use. Never collapsed into success.
	StatusNeedsConversion SourceStatus = "needs_conversion"
	// StatusSuccess means the table is usable as supplied.
	StatusSuccess SourceStatus = "success"
)

// Usable reports whether the gate admits this status as a contributing
// source.
func (s SourceStatus) Usable() bool {
	return s == StatusSuccess || s == StatusNeedsConversion
}
