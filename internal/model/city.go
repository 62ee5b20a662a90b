package model

// City is one row of the city registry. CountryCode is ISO 3166-1 alpha-3,
// matching the national indicator provider's country dimension. StateFIPS and
// CountyFIPS locate the city for sub-national joins and may be empty until
// resolved against a county boundary file.
type City struct {
	Name        string  `json:"name" yaml:"name"`
	Country     string  `json:"country" yaml:"country"`
	CountryCode string  `json:"country_code" yaml:"country_code"`
	Lat         float64 `json:"lat" yaml:"lat"`
	Lon         float64 `json:"lon" yaml:"lon"`
	StateFIPS   string  `json:"state_fips,omitempty" yaml:"state_fips,omitempty"`
	CountyFIPS  string  `json:"county_fips,omitempty" yaml:"county_fips,omitempty"`
	Population  int64   `json:"population,omitempty" yaml:"population,omitempty"`
	ClimateZone string  `json:"climate_zone,omitempty" yaml:"climate_zone,omitempty"`

	// WeatherStation overrides the station/bulk-file identifier used by the
	// weather sync when the provider's ID differs from the city name.
	WeatherStation string `json:"weather_station,omitempty" yaml:"weather_station,omitempty"`
}
