package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

func TestWorldBankSource_Metadata(t *testing.T) {
	s := &WorldBankSource{}
	assert.Equal(t, "worldbank", s.Name())
	assert.Equal(t, "climate.indicator_obs", s.Table())
	assert.Equal(t, Monthly, s.Cadence())
}

func TestWorldBankSource_ShouldRun(t *testing.T) {
	s := &WorldBankSource{}

	t.Run("nil lastSync", func(t *testing.T) {
		assert.True(t, s.ShouldRun(time.Now(), nil))
	})

	t.Run("synced this month", func(t *testing.T) {
		now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
		last := time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC)
		assert.False(t, s.ShouldRun(now, &last))
	})
}

func TestWorldBankSource_SeriesRowsPaging(t *testing.T) {
	// Two-page series; null observations and non-year dates must be dropped.
	pages := map[int]string{
		1: `[{"page":1,"pages":2,"total":3},[
			{"indicator":{"id":"NY.GDP.PCAP.CD"},"countryiso3code":"USA","date":"2021","value":70248.6},
			{"indicator":{"id":"NY.GDP.PCAP.CD"},"countryiso3code":"USA","date":"2020","value":null}
		]]`,
		2: `[{"page":2,"pages":2,"total":3},[
			{"indicator":{"id":"NY.GDP.PCAP.CD"},"countryiso3code":"USA","date":"2019","value":65120.4}
		]]`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/country/USA/indicator/NY.GDP.PCAP.CD", r.URL.Path)
		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			fmt.Fprint(w, pages[1])
		case "2":
			fmt.Fprint(w, pages[2])
		default:
			http.Error(w, "bad page", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	s := &WorldBankSource{opts: Options{WorldBankBaseURL: srv.URL}}

	rows, err := s.seriesRows(context.Background(), testHTTPFetcher(), "USA", "NY.GDP.PCAP.CD")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []any{"USA", "NY.GDP.PCAP.CD", 2021, 70248.6}, rows[0])
	assert.Equal(t, []any{"USA", "NY.GDP.PCAP.CD", 2019, 65120.4}, rows[1])
}

func TestWorldBankSource_SeriesRows_MalformedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Error payloads come back as a one-element envelope.
		fmt.Fprint(w, `[{"message":[{"id":"120","value":"Invalid indicator"}]}]`)
	}))
	defer srv.Close()

	s := &WorldBankSource{opts: Options{WorldBankBaseURL: srv.URL}}

	_, err := s.seriesRows(context.Background(), testHTTPFetcher(), "USA", "BOGUS")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no observation element")
}

func TestWorldBankSource_CountryCodesDeduped(t *testing.T) {
	s := &WorldBankSource{cities: []model.City{
		{Name: "Phoenix", CountryCode: "USA"},
		{Name: "Tucson", CountryCode: "USA"},
		{Name: "Oslo", CountryCode: "NOR"},
		{Name: "Nameless", CountryCode: ""},
	}}

	assert.Equal(t, []string{"NOR", "USA"}, s.countryCodes())
}
