package ingest

import (
	"strconv"
	"strings"
)

// nullableFloat parses a float, mapping empty and unparseable values to NULL.
func nullableFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// sviFloat parses a vulnerability estimate, mapping the provider's -999
// missing flag to NULL.
func sviFloat(s string) *float64 {
	v := nullableFloat(s)
	if v != nil && *v == -999 {
		return nil
	}
	return v
}

// mapColumns builds a lowercased column name -> index map from a header row.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

// getCol gets a column value by name, or "" when the column is absent.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[strings.ToLower(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}
