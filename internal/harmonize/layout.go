package harmonize

import "regexp"

// Layout is the detected shape of an indicator table. It is a closed set:
// exactly LongLayout, WideLayout, or UnknownLayout.
type Layout interface {
	isLayout()
	Name() string
}

// LongLayout: one observation per row, indicator identified by a column.
type LongLayout struct {
	IDColumn    string
	ValueColumn string
	YearColumn  string
}

// WideLayout: one indicator per column, column names are indicator codes.
type WideLayout struct {
	YearColumn  string
	CodeColumns []string
}

// UnknownLayout: neither shape was recognized. Columns carries the header
// for error reporting.
type UnknownLayout struct {
	Columns []string
}

func (LongLayout) isLayout()    {}
func (WideLayout) isLayout()    {}
func (UnknownLayout) isLayout() {}

func (LongLayout) Name() string    { return "long" }
func (WideLayout) Name() string    { return "wide" }
func (UnknownLayout) Name() string { return "unknown" }

// idColumnCandidates is the ordered priority list for long-format detection.
// First present candidate wins; order is load-bearing.
var idColumnCandidates = []string{"indicator_id", "indicatorID", "id", "indicator"}

var valueColumnCandidates = []string{"value", "obs_value"}

var yearColumnCandidates = []string{"year", "date", "period", "time"}

// wbCodeRe matches World-Bank-style indicator codes used as wide columns:
// a two-letter topic, a 2-3 letter general subject, then one or more
// dot-separated segments ("NY.GDP.PCAP.CD", "EN.CLC.HEAT.XD").
var wbCodeRe = regexp.MustCompile(`^[A-Z]{2}\.[A-Z]{2,3}(\.[A-Z0-9]{1,8})+$`)

// sviVarRe matches sub-national vulnerability variable columns
// ("EP_POV150", "RPL_THEMES").
var sviVarRe = regexp.MustCompile(`^(EP|EPL|SPL|RPL)_[A-Z0-9]+$`)

// DetectLayout classifies a header by running the detection strategies in
// order: long-format identifier column first, then wide-format code columns,
// then unknown. The first strategy that matches decides.
func DetectLayout(columns []string) Layout {
	if l, ok := detectLong(columns); ok {
		return l
	}
	if l, ok := detectWide(columns); ok {
		return l
	}
	return UnknownLayout{Columns: columns}
}

func detectLong(columns []string) (Layout, bool) {
	idCol, ok := FirstCol(columns, idColumnCandidates...)
	if !ok {
		return nil, false
	}
	l := LongLayout{IDColumn: idCol}
	if valCol, ok := FirstCol(columns, valueColumnCandidates...); ok {
		l.ValueColumn = valCol
	}
	if yearCol, ok := FirstCol(columns, yearColumnCandidates...); ok {
		l.YearColumn = yearCol
	}
	return l, true
}

func detectWide(columns []string) (Layout, bool) {
	var codes []string
	for _, col := range columns {
		if wbCodeRe.MatchString(col) || sviVarRe.MatchString(col) {
			codes = append(codes, col)
		}
	}
	if len(codes) == 0 {
		return nil, false
	}
	l := WideLayout{CodeColumns: codes}
	if yearCol, ok := FirstCol(columns, yearColumnCandidates...); ok {
		l.YearColumn = yearCol
	}
	return l, true
}
