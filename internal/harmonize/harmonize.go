// Package harmonize reconciles heterogeneous indicator tables into canonical
// long-format records: it detects the table layout, pivots wide tables,
// tags categories, and encodes every per-table problem as a status value
// instead of an error that would unwind the batch.
package harmonize

import (
	"fmt"
	"strings"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

// Outcome is the result of harmonizing one table. Status mirrors the
// data-quality vocabulary: success for long tables, needs_conversion for
// wide tables (Records are still produced by the pivot), error when the
// table could not be interpreted.
type Outcome struct {
	Status  model.SourceStatus
	Layout  Layout
	Records []model.RawIndicatorRecord
	Detail  string
}

// Harmonize reconciles one indicator table into canonical records. It never
// returns an error; everything lands in the Outcome status.
func Harmonize(tbl model.Table) Outcome {
	layout := DetectLayout(tbl.Columns)

	switch l := layout.(type) {
	case LongLayout:
		if l.ValueColumn == "" {
			return Outcome{
				Status: model.StatusError,
				Layout: l,
				Detail: fmt.Sprintf("long table missing a value column, have: %s", strings.Join(tbl.Columns, ", ")),
			}
		}
		return Outcome{
			Status:  model.StatusSuccess,
			Layout:  l,
			Records: longToRecords(tbl, l),
		}
	case WideLayout:
		return Outcome{
			Status:  model.StatusNeedsConversion,
			Layout:  l,
			Records: pivotWide(tbl, l),
		}
	default:
		return Outcome{
			Status: model.StatusError,
			Layout: layout,
			Detail: fmt.Sprintf("unrecognized layout, columns: %s", strings.Join(tbl.Columns, ", ")),
		}
	}
}

// longToRecords reads a long-format table. Rows with a blank identifier or a
// missing value are skipped, not errors: absence is data here.
func longToRecords(tbl model.Table, l LongLayout) []model.RawIndicatorRecord {
	colIdx := MapColumns(tbl.Columns)
	records := make([]model.RawIndicatorRecord, 0, len(tbl.Rows))
	seen := make(map[recordKey]int)

	for _, row := range tbl.Rows {
		id := Col(row, colIdx, l.IDColumn)
		if id == "" {
			continue
		}
		v := ParseValue(Col(row, colIdx, l.ValueColumn))
		if v == nil {
			continue
		}
		year := 0
		if l.YearColumn != "" {
			year = ParseYear(Col(row, colIdx, l.YearColumn))
		}
		records = appendDedup(records, seen, model.RawIndicatorRecord{
			City:        tbl.City,
			IndicatorID: id,
			Category:    CategoryFor(id),
			Year:        year,
			Value:       *v,
		})
	}
	return records
}

type recordKey struct {
	id   string
	year int
}

// appendDedup keeps the last occurrence of a (indicator, year) pair, the
// convention providers use when re-publishing corrected rows.
func appendDedup(records []model.RawIndicatorRecord, seen map[recordKey]int, rec model.RawIndicatorRecord) []model.RawIndicatorRecord {
	key := recordKey{id: rec.IndicatorID, year: rec.Year}
	if i, ok := seen[key]; ok {
		records[i] = rec
		return records
	}
	seen[key] = len(records)
	return append(records, rec)
}

// SelectPreferred picks one table per city+source when several are present:
// a harmonized (fixed) copy beats the original, otherwise the first supplied
// table wins. Returns nil for an empty slice.
func SelectPreferred(tables []model.Table) *model.Table {
	if len(tables) == 0 {
		return nil
	}
	for i := range tables {
		if tables[i].Fixed {
			return &tables[i]
		}
	}
	return &tables[0]
}
