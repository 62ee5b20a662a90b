package harmonize

import (
	"regexp"
	"strconv"
	"strings"
)

// missingEncodings lists the literal cell values the upstream providers use
// for absent observations: World Bank exports "..", FRED-style series ".",
// plus the usual NA spellings.
var missingEncodings = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"null": true,
	"..":   true,
	".":    true,
}

// NormalizeCol lowercases and strips spaces and underscores for cross-format
// column matching. "Indicator_ID" and "indicatorID" both map to
// "indicatorid".
func NormalizeCol(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// MapColumns builds a normalized column name → index map.
func MapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[NormalizeCol(col)] = i
	}
	return m
}

// Col gets a cell by normalized column name, empty when absent.
func Col(row []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[NormalizeCol(name)]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// FirstCol returns the first of the named columns present in the header, in
// the order given. Candidate priority is positional, never alphabetical.
func FirstCol(header []string, names ...string) (string, bool) {
	idx := MapColumns(header)
	for _, name := range names {
		if _, ok := idx[NormalizeCol(name)]; ok {
			return name, true
		}
	}
	return "", false
}

// ParseValue parses an observation cell. Missing encodings and unparseable
// text return nil rather than zero so absent data stays distinguishable from
// a measured zero.
func ParseValue(s string) *float64 {
	s = strings.TrimSpace(s)
	if missingEncodings[strings.ToLower(s)] {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

var yearRe = regexp.MustCompile(`(\d{4})`)

// ParseYear extracts a four-digit year from period cells like "2021",
// "2021 [YR2021]", or "2021-06-30". Returns 0 when no year is present.
func ParseYear(s string) int {
	m := yearRe.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return y
}
