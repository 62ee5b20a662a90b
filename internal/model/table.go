package model

// Table is an uninterpreted tabular dataset for one city and source, as
// loaded from a file or assembled from store rows. Cells stay strings until
// the harmonizer parses them; nothing upstream of the gate is trusted to be
// numeric.
type Table struct {
	City    string     `json:"city"`
	Source  Source     `json:"source"`
	Name    string     `json:"name,omitempty"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`

	// Fixed marks a harmonized copy of a table that also exists in its
	// original form. When both are present for a city+source, the fixed copy
	// wins dedup.
	Fixed bool `json:"fixed,omitempty"`
}

// IndicatorCategory is the coarse grouping assigned to harmonized records
// from the indicator-code prefix.
type IndicatorCategory string

const (
	CategoryEconomic   IndicatorCategory = "economic"
	CategoryEmployment IndicatorCategory = "employment"
	CategoryEducation  IndicatorCategory = "education"
	CategoryHealth     IndicatorCategory = "health"
	CategoryRights     IndicatorCategory = "rights"
	CategoryOther      IndicatorCategory = "other"
)

// RawIndicatorRecord is the canonical long-format observation produced by the
// harmonizer: one city, one indicator code, one period, one value.
type RawIndicatorRecord struct {
	City        string            `json:"city"`
	IndicatorID string            `json:"indicator_id"`
	Category    IndicatorCategory `json:"category"`
	Year        int               `json:"year"`
	Value       float64           `json:"value"`
}
