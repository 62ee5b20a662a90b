// Package registry loads the city registry and defines the fixed indicator
// catalog that maps harmonized indicator codes onto sub-index inputs.
package registry

import (
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

type cityFile struct {
	Cities []model.City `yaml:"cities"`
}

var countryCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// LoadCities reads a city registry YAML file and validates every entry.
// Duplicate city names (after accent folding) are rejected so downstream
// joins stay unambiguous.
func LoadCities(path string) ([]model.City, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read city file %s", path)
	}

	var f cityFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrapf(err, "registry: parse city file %s", path)
	}
	if len(f.Cities) == 0 {
		return nil, eris.Errorf("registry: city file %s contains no cities", path)
	}

	seen := make(map[string]string, len(f.Cities))
	for i := range f.Cities {
		c := &f.Cities[i]
		if err := ValidateCity(*c); err != nil {
			return nil, eris.Wrapf(err, "registry: city %d", i)
		}
		key := FoldName(c.Name)
		if prev, ok := seen[key]; ok {
			return nil, eris.Errorf("registry: duplicate city %q collides with %q", c.Name, prev)
		}
		seen[key] = c.Name
	}

	return f.Cities, nil
}

// ValidateCity checks the fields every pipeline stage depends on.
func ValidateCity(c model.City) error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return eris.New("registry: city name is empty")
	case !countryCodeRe.MatchString(c.CountryCode):
		return eris.Errorf("registry: city %q: country code %q is not ISO alpha-3", c.Name, c.CountryCode)
	case c.Lat < -90 || c.Lat > 90:
		return eris.Errorf("registry: city %q: latitude %v out of range", c.Name, c.Lat)
	case c.Lon < -180 || c.Lon > 180:
		return eris.Errorf("registry: city %q: longitude %v out of range", c.Name, c.Lon)
	}
	return nil
}

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// FoldName standardizes a city name for matching across datasets by:
//  1. Stripping diacritics (São Paulo and Sao Paulo must join)
//  2. Lowercasing
//  3. Collapsing runs of whitespace
func FoldName(name string) string {
	folded, _, err := transform.String(foldChain, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	folded = multiSpaceRe.ReplaceAllString(folded, " ")
	return folded
}
