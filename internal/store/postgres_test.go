package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func fptr(v float64) *float64 { return &v }

func sampleBatch() *model.BatchResult {
	generated := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &model.BatchResult{
		RunID:       "run-abc",
		GeneratedAt: generated,
		Attempted:   3,
		Records: []model.VulnerabilityRecord{
			{
				City:             "Phoenix",
				CountryCode:      "USA",
				Rank:             1,
				Score:            0.81,
				Category:         model.CategorySevere,
				ClimateRisk:      0.92,
				AdaptiveCapacity: 0.35,
				SubIndices: map[model.SubIndexKey]model.SubIndexScore{
					model.SubIndexTemperature: {Value: fptr(0.95), ComponentsUsed: 2, ComponentsExpected: 2},
				},
				Sources: []model.SourceAssessment{
					{Source: model.SourceWeather, Status: model.StatusSuccess, Completeness: 99.1, Rows: 3650},
				},
			},
			{
				City:             "Oslo",
				CountryCode:      "NOR",
				Rank:             2,
				Score:            0.22,
				Category:         model.CategoryLow,
				ClimateRisk:      0.31,
				AdaptiveCapacity: 0.88,
				SubIndices:       map[model.SubIndexKey]model.SubIndexScore{},
				Sources:          nil,
			},
		},
		Exclusions: []model.Exclusion{
			{City: "Atlantis", Reason: model.ExclusionNoUsableSources, Detail: "all sources missing"},
		},
		Quality: []model.CityQuality{
			{City: "Atlantis", Admitted: false},
			{City: "Phoenix", Admitted: true},
		},
		Correlations: []model.CorrelationPair{
			{X: "temperature_risk", Y: "economic_resilience", R: -0.42, N: 2, Defined: true},
		},
	}
}

func TestPostgresStore_SaveBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	batch := sampleBatch()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO climate.runs`).
		WithArgs("run-abc", batch.GeneratedAt, 3, 2, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(
		pgx.Identifier{"climate", "vulnerability_records"},
		[]string{"run_id", "city", "country_code", "rank", "score", "category",
			"climate_risk", "adaptive_capacity", "reduced_confidence", "sub_indices", "sources"},
	).WillReturnResult(2)
	mock.ExpectCopyFrom(
		pgx.Identifier{"climate", "exclusions"},
		[]string{"run_id", "city", "reason", "component", "detail"},
	).WillReturnResult(1)
	mock.ExpectCopyFrom(
		pgx.Identifier{"climate", "quality_reports"},
		[]string{"run_id", "city", "admitted", "sources"},
	).WillReturnResult(2)
	mock.ExpectCopyFrom(
		pgx.Identifier{"climate", "correlations"},
		[]string{"run_id", "x", "y", "r", "n", "defined"},
	).WillReturnResult(1)
	mock.ExpectCommit()

	err := s.SaveBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBatch_SkipsEmptySections(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	batch := sampleBatch()
	batch.Exclusions = nil
	batch.Quality = nil
	batch.Correlations = nil

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO climate.runs`).
		WithArgs("run-abc", batch.GeneratedAt, 3, 2, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(
		pgx.Identifier{"climate", "vulnerability_records"},
		[]string{"run_id", "city", "country_code", "rank", "score", "category",
			"climate_risk", "adaptive_capacity", "reduced_confidence", "sub_indices", "sources"},
	).WillReturnResult(2)
	mock.ExpectCommit()

	err := s.SaveBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBatch_NoRunID(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	err := s.SaveBatch(context.Background(), &model.BatchResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no run id")
}

func TestPostgresStore_SaveBatch_InsertError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	batch := sampleBatch()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO climate.runs`).
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := s.SaveBatch(context.Background(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert run")
}

func TestPostgresStore_GetBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	generated := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT run_id, generated_at, attempted, scored, excluded FROM climate.runs WHERE run_id = \$1`).
		WithArgs("run-abc").
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "generated_at", "attempted", "scored", "excluded"}).
			AddRow("run-abc", generated, 3, 1, 1))

	mock.ExpectQuery(`FROM climate.vulnerability_records WHERE run_id = \$1 ORDER BY rank`).
		WithArgs("run-abc").
		WillReturnRows(pgxmock.NewRows([]string{"city", "country_code", "rank", "score", "category",
			"climate_risk", "adaptive_capacity", "reduced_confidence", "sub_indices", "sources"}).
			AddRow("Phoenix", "USA", 1, 0.81, "Severe", 0.92, 0.35, true,
				[]byte(`{"temperature_risk":{"value":0.95,"components_used":2,"components_expected":2}}`),
				[]byte(`[{"source":"weather","status":"success","completeness":99.1,"rows":3650}]`)))

	mock.ExpectQuery(`FROM climate.exclusions WHERE run_id = \$1 ORDER BY city`).
		WithArgs("run-abc").
		WillReturnRows(pgxmock.NewRows([]string{"city", "reason", "component", "detail"}).
			AddRow("Atlantis", "no_usable_sources", "", "all sources missing"))

	mock.ExpectQuery(`FROM climate.quality_reports WHERE run_id = \$1 ORDER BY city`).
		WithArgs("run-abc").
		WillReturnRows(pgxmock.NewRows([]string{"city", "admitted", "sources"}).
			AddRow("Phoenix", true, []byte(`[{"source":"svi","status":"needs_conversion","completeness":100,"rows":1}]`)))

	mock.ExpectQuery(`FROM climate.correlations WHERE run_id = \$1 ORDER BY x, y`).
		WithArgs("run-abc").
		WillReturnRows(pgxmock.NewRows([]string{"x", "y", "r", "n", "defined"}).
			AddRow("temperature_risk", "economic_resilience", -0.42, 2, true))

	batch, err := s.GetBatch(context.Background(), "run-abc")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "run-abc", batch.RunID)
	assert.Equal(t, generated, batch.GeneratedAt)
	assert.Equal(t, 3, batch.Attempted)

	require.Len(t, batch.Records, 1)
	rec := batch.Records[0]
	assert.Equal(t, "Phoenix", rec.City)
	assert.Equal(t, model.CategorySevere, rec.Category)
	assert.True(t, rec.ReducedConfidence)
	assert.Equal(t, "run-abc", rec.RunID)
	assert.Equal(t, generated, rec.GeneratedAt)
	require.Contains(t, rec.SubIndices, model.SubIndexTemperature)
	require.NotNil(t, rec.SubIndices[model.SubIndexTemperature].Value)
	assert.InDelta(t, 0.95, *rec.SubIndices[model.SubIndexTemperature].Value, 1e-9)
	require.Len(t, rec.Sources, 1)
	assert.Equal(t, model.SourceWeather, rec.Sources[0].Source)
	assert.Equal(t, model.StatusSuccess, rec.Sources[0].Status)

	require.Len(t, batch.Exclusions, 1)
	assert.Equal(t, model.ExclusionNoUsableSources, batch.Exclusions[0].Reason)

	require.Len(t, batch.Quality, 1)
	assert.True(t, batch.Quality[0].Admitted)
	require.Len(t, batch.Quality[0].Sources, 1)
	assert.Equal(t, model.StatusNeedsConversion, batch.Quality[0].Sources[0].Status)

	require.Len(t, batch.Correlations, 1)
	assert.True(t, batch.Correlations[0].Defined)
	assert.InDelta(t, -0.42, batch.Correlations[0].R, 1e-9)
}

func TestPostgresStore_GetBatch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM climate.runs WHERE run_id = \$1`).
		WithArgs("missing-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBatch(context.Background(), "missing-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM climate.runs ORDER BY generated_at DESC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "generated_at", "attempted", "scored", "excluded"}).
			AddRow("run-2", now, 3, 2, 1).
			AddRow("run-1", now.Add(-24*time.Hour), 3, 3, 0))

	runs, err := s.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, 2, runs[0].Scored)
	assert.Equal(t, "run-1", runs[1].RunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM climate.runs ORDER BY generated_at DESC LIMIT \$1`).
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "generated_at", "attempted", "scored", "excluded"}))

	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadCityTables(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cities := []model.City{
		{Name: "Phoenix", CountryCode: "USA", CountyFIPS: "04013"},
	}

	mock.ExpectQuery(`FROM climate.weather_daily WHERE city = \$1 ORDER BY obs_date`).
		WithArgs("Phoenix").
		WillReturnRows(pgxmock.NewRows([]string{"obs_date", "tavg", "tmin", "tmax", "prcp"}).
			AddRow(time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC), fptr(12.5), nil, fptr(20.1), fptr(0.0)).
			AddRow(time.Date(2020, 1, 16, 0, 0, 0, 0, time.UTC), fptr(13.0), fptr(6.2), fptr(21.4), fptr(2.5)))

	mock.ExpectQuery(`FROM climate.indicator_obs WHERE country_code = \$1`).
		WithArgs("USA").
		WillReturnRows(pgxmock.NewRows([]string{"indicator_id", "year", "value"}).
			AddRow("NY.GDP.PCAP.CD", 2021, 70248.6).
			AddRow("SP.POP.TOTL", 2021, 331900000.0))

	mock.ExpectQuery(`FROM climate.svi_wide WHERE fips = \$1`).
		WithArgs("04013").
		WillReturnRows(pgxmock.NewRows([]string{"county", "ep_age17", "ep_age65", "ep_limeng", "ep_munit", "ep_nohsdp", "ep_noveh", "ep_pov150"}).
			AddRow("Maricopa", fptr(22.1), fptr(15.3), fptr(4.8), fptr(9.0), nil, fptr(5.1), fptr(21.4)))

	tables, err := s.LoadCityTables(context.Background(), cities)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Contains(t, tables, "Phoenix")
	phoenix := tables["Phoenix"]

	require.Len(t, phoenix[model.SourceWeather], 1)
	weather := phoenix[model.SourceWeather][0]
	assert.Equal(t, []string{"date", "tavg", "tmin", "tmax", "prcp"}, weather.Columns)
	require.Len(t, weather.Rows, 2)
	assert.Equal(t, []string{"2020-01-15", "12.5", "", "20.1", "0"}, weather.Rows[0])

	require.Len(t, phoenix[model.SourceWorldBank], 1)
	indicators := phoenix[model.SourceWorldBank][0]
	assert.Equal(t, []string{"indicator_id", "year", "value"}, indicators.Columns)
	assert.Equal(t, []string{"NY.GDP.PCAP.CD", "2021", "70248.6"}, indicators.Rows[0])

	require.Len(t, phoenix[model.SourceSVI], 1)
	svi := phoenix[model.SourceSVI][0]
	assert.Equal(t, "county", svi.Columns[0])
	assert.Contains(t, svi.Columns, "EP_POV150")
	require.Len(t, svi.Rows, 1)
	assert.Equal(t, "Maricopa", svi.Rows[0][0])
	assert.Contains(t, svi.Rows[0], "21.4")
	assert.Contains(t, svi.Rows[0], "")
}

func TestPostgresStore_LoadCityTables_NoData(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cities := []model.City{
		{Name: "Oslo", CountryCode: "NOR"},
	}

	mock.ExpectQuery(`FROM climate.weather_daily WHERE city = \$1`).
		WithArgs("Oslo").
		WillReturnRows(pgxmock.NewRows([]string{"obs_date", "tavg", "tmin", "tmax", "prcp"}))

	mock.ExpectQuery(`FROM climate.indicator_obs WHERE country_code = \$1`).
		WithArgs("NOR").
		WillReturnRows(pgxmock.NewRows([]string{"indicator_id", "year", "value"}))

	tables, err := s.LoadCityTables(context.Background(), cities)
	require.NoError(t, err)
	assert.NotContains(t, tables, "Oslo")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadCityTables_SVINotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cities := []model.City{
		{Name: "Phoenix", CountryCode: "USA", CountyFIPS: "99999"},
	}

	mock.ExpectQuery(`FROM climate.weather_daily WHERE city = \$1`).
		WithArgs("Phoenix").
		WillReturnRows(pgxmock.NewRows([]string{"obs_date", "tavg", "tmin", "tmax", "prcp"}).
			AddRow(time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC), fptr(12.5), fptr(5.0), fptr(20.1), fptr(0.0)))

	mock.ExpectQuery(`FROM climate.indicator_obs WHERE country_code = \$1`).
		WithArgs("USA").
		WillReturnRows(pgxmock.NewRows([]string{"indicator_id", "year", "value"}))

	mock.ExpectQuery(`FROM climate.svi_wide WHERE fips = \$1`).
		WithArgs("99999").
		WillReturnError(pgx.ErrNoRows)

	tables, err := s.LoadCityTables(context.Background(), cities)
	require.NoError(t, err)

	require.Contains(t, tables, "Phoenix")
	assert.Contains(t, tables["Phoenix"], model.SourceWeather)
	assert.NotContains(t, tables["Phoenix"], model.SourceSVI)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_LockError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).
		WillReturnError(errors.New("connection refused"))

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advisory lock")
}
