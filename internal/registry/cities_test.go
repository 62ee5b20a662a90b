package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

func writeCityFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadCities(t *testing.T) {
	path := writeCityFile(t, `
cities:
  - name: Phoenix
    country: United States
    country_code: USA
    lat: 33.4484
    lon: -112.0740
    state_fips: "04"
    county_fips: "04013"
  - name: São Paulo
    country: Brazil
    country_code: BRA
    lat: -23.5505
    lon: -46.6333
`)

	cities, err := LoadCities(path)
	require.NoError(t, err)
	require.Len(t, cities, 2)
	assert.Equal(t, "Phoenix", cities[0].Name)
	assert.Equal(t, "04013", cities[0].CountyFIPS)
	assert.Equal(t, "BRA", cities[1].CountryCode)
}

func TestLoadCitiesRejectsDuplicatesAfterFolding(t *testing.T) {
	path := writeCityFile(t, `
cities:
  - name: São Paulo
    country: Brazil
    country_code: BRA
    lat: -23.5505
    lon: -46.6333
  - name: Sao Paulo
    country: Brazil
    country_code: BRA
    lat: -23.55
    lon: -46.63
`)

	_, err := LoadCities(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate city")
}

func TestLoadCitiesEmptyFile(t *testing.T) {
	path := writeCityFile(t, "cities: []\n")
	_, err := LoadCities(path)
	assert.Error(t, err)
}

func TestLoadCitiesMissingFile(t *testing.T) {
	_, err := LoadCities(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateCity(t *testing.T) {
	valid := model.City{Name: "Houston", Country: "United States", CountryCode: "USA", Lat: 29.76, Lon: -95.36}

	tests := []struct {
		name    string
		mutate  func(*model.City)
		wantErr string
	}{
		{name: "valid", mutate: func(*model.City) {}},
		{name: "empty name", mutate: func(c *model.City) { c.Name = " " }, wantErr: "name is empty"},
		{name: "alpha-2 country code", mutate: func(c *model.City) { c.CountryCode = "US" }, wantErr: "not ISO alpha-3"},
		{name: "lowercase country code", mutate: func(c *model.City) { c.CountryCode = "usa" }, wantErr: "not ISO alpha-3"},
		{name: "latitude out of range", mutate: func(c *model.City) { c.Lat = 91 }, wantErr: "latitude"},
		{name: "longitude out of range", mutate: func(c *model.City) { c.Lon = -181 }, wantErr: "longitude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := ValidateCity(c)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFoldName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"São Paulo", "sao paulo"},
		{"Sao Paulo", "sao paulo"},
		{"  PHOENIX  ", "phoenix"},
		{"New   York", "new york"},
		{"Zürich", "zurich"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldName(tt.in))
		})
	}
}
