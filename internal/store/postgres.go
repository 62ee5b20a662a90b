package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/urbanrisk-labs/climate-cli/internal/db"
	"github.com/urbanrisk-labs/climate-cli/internal/ingest"
	"github.com/urbanrisk-labs/climate-cli/internal/model"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_run":   `SELECT run_id, generated_at, attempted, scored, excluded FROM climate.runs WHERE run_id = $1`,
	"list_runs": `SELECT run_id, generated_at, attempted, scored, excluded FROM climate.runs ORDER BY generated_at DESC LIMIT $1`,
	"get_records": `SELECT city, country_code, rank, score, category, climate_risk, adaptive_capacity, reduced_confidence, sub_indices, sources
		FROM climate.vulnerability_records WHERE run_id = $1 ORDER BY rank`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., the ingest engine).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate applies the embedded schema migrations. Results and ingest tables
// share one migration chain, so `ingest migrate` and a store-driven migrate
// converge on the same schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return ingest.Migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveBatch(ctx context.Context, batch *model.BatchResult) error {
	if batch == nil || batch.RunID == "" {
		return eris.New("postgres: batch has no run id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO climate.runs (run_id, generated_at, attempted, scored, excluded) VALUES ($1, $2, $3, $4, $5)`,
		batch.RunID, batch.GeneratedAt, batch.Attempted, len(batch.Records), len(batch.Exclusions),
	); err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", batch.RunID)
	}

	recRows := make([][]any, 0, len(batch.Records))
	for _, r := range batch.Records {
		subJSON, err := json.Marshal(r.SubIndices)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal sub-indices for %s", r.City)
		}
		srcJSON, err := json.Marshal(r.Sources)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal sources for %s", r.City)
		}
		recRows = append(recRows, []any{
			batch.RunID, r.City, r.CountryCode, r.Rank, r.Score, string(r.Category),
			r.ClimateRisk, r.AdaptiveCapacity, r.ReducedConfidence, subJSON, srcJSON,
		})
	}
	if len(recRows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"climate", "vulnerability_records"},
			[]string{"run_id", "city", "country_code", "rank", "score", "category",
				"climate_risk", "adaptive_capacity", "reduced_confidence", "sub_indices", "sources"},
			pgx.CopyFromRows(recRows),
		); err != nil {
			return eris.Wrap(err, "postgres: copy records")
		}
	}

	exclRows := make([][]any, 0, len(batch.Exclusions))
	for _, e := range batch.Exclusions {
		exclRows = append(exclRows, []any{batch.RunID, e.City, string(e.Reason), e.Component, e.Detail})
	}
	if len(exclRows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"climate", "exclusions"},
			[]string{"run_id", "city", "reason", "component", "detail"},
			pgx.CopyFromRows(exclRows),
		); err != nil {
			return eris.Wrap(err, "postgres: copy exclusions")
		}
	}

	qualRows := make([][]any, 0, len(batch.Quality))
	for _, q := range batch.Quality {
		srcJSON, err := json.Marshal(q.Sources)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal quality for %s", q.City)
		}
		qualRows = append(qualRows, []any{batch.RunID, q.City, q.Admitted, srcJSON})
	}
	if len(qualRows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"climate", "quality_reports"},
			[]string{"run_id", "city", "admitted", "sources"},
			pgx.CopyFromRows(qualRows),
		); err != nil {
			return eris.Wrap(err, "postgres: copy quality reports")
		}
	}

	corrRows := make([][]any, 0, len(batch.Correlations))
	for _, c := range batch.Correlations {
		corrRows = append(corrRows, []any{batch.RunID, c.X, c.Y, c.R, c.N, c.Defined})
	}
	if len(corrRows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"climate", "correlations"},
			[]string{"run_id", "x", "y", "r", "n", "defined"},
			pgx.CopyFromRows(corrRows),
		); err != nil {
			return eris.Wrap(err, "postgres: copy correlations")
		}
	}

	return eris.Wrapf(tx.Commit(ctx), "postgres: commit run %s", batch.RunID)
}

func (s *PostgresStore) GetBatch(ctx context.Context, runID string) (*model.BatchResult, error) {
	var b model.BatchResult
	var scored, excluded int
	err := s.pool.QueryRow(ctx,
		`SELECT run_id, generated_at, attempted, scored, excluded FROM climate.runs WHERE run_id = $1`,
		runID,
	).Scan(&b.RunID, &b.GeneratedAt, &b.Attempted, &scored, &excluded)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if b.Records, err = s.getRecords(ctx, &b); err != nil {
		return nil, err
	}
	if b.Exclusions, err = s.getExclusions(ctx, runID); err != nil {
		return nil, err
	}
	if b.Quality, err = s.getQuality(ctx, runID); err != nil {
		return nil, err
	}
	if b.Correlations, err = s.getCorrelations(ctx, runID); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) getRecords(ctx context.Context, b *model.BatchResult) ([]model.VulnerabilityRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT city, country_code, rank, score, category, climate_risk, adaptive_capacity, reduced_confidence, sub_indices, sources
		FROM climate.vulnerability_records WHERE run_id = $1 ORDER BY rank`,
		b.RunID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query records")
	}
	defer rows.Close()

	var records []model.VulnerabilityRecord
	for rows.Next() {
		var r model.VulnerabilityRecord
		var category string
		var subJSON, srcJSON []byte
		if err := rows.Scan(&r.City, &r.CountryCode, &r.Rank, &r.Score, &category,
			&r.ClimateRisk, &r.AdaptiveCapacity, &r.ReducedConfidence, &subJSON, &srcJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		r.Category = model.CategoryLabel(category)
		if err := json.Unmarshal(subJSON, &r.SubIndices); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal sub-indices for %s", r.City)
		}
		if err := json.Unmarshal(srcJSON, &r.Sources); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal sources for %s", r.City)
		}
		r.RunID = b.RunID
		r.GeneratedAt = b.GeneratedAt
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate records")
}

func (s *PostgresStore) getExclusions(ctx context.Context, runID string) ([]model.Exclusion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT city, reason, component, detail FROM climate.exclusions WHERE run_id = $1 ORDER BY city`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query exclusions")
	}
	defer rows.Close()

	var exclusions []model.Exclusion
	for rows.Next() {
		var e model.Exclusion
		var reason string
		if err := rows.Scan(&e.City, &reason, &e.Component, &e.Detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan exclusion")
		}
		e.Reason = model.ExclusionReason(reason)
		exclusions = append(exclusions, e)
	}
	return exclusions, eris.Wrap(rows.Err(), "postgres: iterate exclusions")
}

func (s *PostgresStore) getQuality(ctx context.Context, runID string) ([]model.CityQuality, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT city, admitted, sources FROM climate.quality_reports WHERE run_id = $1 ORDER BY city`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query quality reports")
	}
	defer rows.Close()

	var quality []model.CityQuality
	for rows.Next() {
		var q model.CityQuality
		var srcJSON []byte
		if err := rows.Scan(&q.City, &q.Admitted, &srcJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quality report")
		}
		if err := json.Unmarshal(srcJSON, &q.Sources); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal quality for %s", q.City)
		}
		quality = append(quality, q)
	}
	return quality, eris.Wrap(rows.Err(), "postgres: iterate quality reports")
}

func (s *PostgresStore) getCorrelations(ctx context.Context, runID string) ([]model.CorrelationPair, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT x, y, r, n, defined FROM climate.correlations WHERE run_id = $1 ORDER BY x, y`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query correlations")
	}
	defer rows.Close()

	var pairs []model.CorrelationPair
	for rows.Next() {
		var c model.CorrelationPair
		if err := rows.Scan(&c.X, &c.Y, &c.R, &c.N, &c.Defined); err != nil {
			return nil, eris.Wrap(err, "postgres: scan correlation")
		}
		pairs = append(pairs, c)
	}
	return pairs, eris.Wrap(rows.Err(), "postgres: iterate correlations")
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, generated_at, attempted, scored, excluded FROM climate.runs ORDER BY generated_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.GeneratedAt, &r.Attempted, &r.Scored, &r.Excluded); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) LoadCityTables(ctx context.Context, cities []model.City) (map[string]map[model.Source][]model.Table, error) {
	out := make(map[string]map[model.Source][]model.Table, len(cities))

	for _, city := range cities {
		tables := make(map[model.Source][]model.Table)

		weather, err := s.weatherTable(ctx, city.Name)
		if err != nil {
			return nil, err
		}
		if weather != nil {
			tables[model.SourceWeather] = append(tables[model.SourceWeather], *weather)
		}

		indicators, err := s.indicatorTable(ctx, city.Name, city.CountryCode)
		if err != nil {
			return nil, err
		}
		if indicators != nil {
			tables[model.SourceWorldBank] = append(tables[model.SourceWorldBank], *indicators)
		}

		if city.CountyFIPS != "" {
			svi, err := s.sviTable(ctx, city.Name, city.CountyFIPS)
			if err != nil {
				return nil, err
			}
			if svi != nil {
				tables[model.SourceSVI] = append(tables[model.SourceSVI], *svi)
			}
		}

		if len(tables) > 0 {
			out[city.Name] = tables
		}
	}
	return out, nil
}

// weatherTable reads a city's daily series back into raw-table form.
func (s *PostgresStore) weatherTable(ctx context.Context, cityName string) (*model.Table, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT obs_date, tavg, tmin, tmax, prcp FROM climate.weather_daily WHERE city = $1 ORDER BY obs_date`,
		cityName,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query weather for %s", cityName)
	}
	defer rows.Close()

	var tblRows [][]string
	for rows.Next() {
		var day time.Time
		var tavg, tmin, tmax, prcp *float64
		if err := rows.Scan(&day, &tavg, &tmin, &tmax, &prcp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan weather row")
		}
		tblRows = append(tblRows, []string{
			day.Format("2006-01-02"), fstr(tavg), fstr(tmin), fstr(tmax), fstr(prcp),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate weather rows")
	}
	if len(tblRows) == 0 {
		return nil, nil
	}
	return &model.Table{
		City:    cityName,
		Source:  model.SourceWeather,
		Name:    "climate.weather_daily",
		Columns: []string{"date", "tavg", "tmin", "tmax", "prcp"},
		Rows:    tblRows,
	}, nil
}

// indicatorTable reads the national indicator series for a city's country,
// long form, the shape the harmonizer classifies as success directly.
func (s *PostgresStore) indicatorTable(ctx context.Context, cityName, countryCode string) (*model.Table, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT indicator_id, year, value FROM climate.indicator_obs WHERE country_code = $1 ORDER BY indicator_id, year`,
		countryCode,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query indicators for %s", countryCode)
	}
	defer rows.Close()

	var tblRows [][]string
	for rows.Next() {
		var id string
		var year int
		var value float64
		if err := rows.Scan(&id, &year, &value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan indicator row")
		}
		tblRows = append(tblRows, []string{id, strconv.Itoa(year), fstr(&value)})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate indicator rows")
	}
	if len(tblRows) == 0 {
		return nil, nil
	}
	return &model.Table{
		City:    cityName,
		Source:  model.SourceWorldBank,
		Name:    "climate.indicator_obs",
		Columns: []string{"indicator_id", "year", "value"},
		Rows:    tblRows,
	}, nil
}

// sviTable reads a city's county vulnerability row, wide and year-less, so
// downstream takes the needs_conversion pivot exactly as with file input.
func (s *PostgresStore) sviTable(ctx context.Context, cityName, fips string) (*model.Table, error) {
	vars := registry.SVIVariables()

	dbCols := make([]string, 0, len(vars))
	for _, v := range vars {
		dbCols = append(dbCols, strings.ToLower(v))
	}
	query := fmt.Sprintf(
		`SELECT county, %s FROM climate.svi_wide WHERE fips = $1`,
		strings.Join(dbCols, ", "),
	)

	var county string
	values := make([]*float64, len(vars))
	dest := make([]any, 0, len(vars)+1)
	dest = append(dest, &county)
	for i := range values {
		dest = append(dest, &values[i])
	}

	err := s.pool.QueryRow(ctx, query, fips).Scan(dest...)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: query svi for fips %s", fips)
	}

	row := make([]string, 0, len(vars)+1)
	row = append(row, county)
	for _, v := range values {
		row = append(row, fstr(v))
	}

	return &model.Table{
		City:    cityName,
		Source:  model.SourceSVI,
		Name:    "climate.svi_wide",
		Columns: append([]string{"county"}, vars...),
		Rows:    [][]string{row},
	}, nil
}
