package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	generated_at DATETIME NOT NULL,
	attempted    INTEGER NOT NULL,
	scored       INTEGER NOT NULL,
	excluded     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vulnerability_records (
	run_id             TEXT NOT NULL REFERENCES runs(run_id),
	city               TEXT NOT NULL,
	country_code       TEXT NOT NULL,
	rank               INTEGER NOT NULL,
	score              REAL NOT NULL,
	category           TEXT NOT NULL,
	climate_risk       REAL NOT NULL,
	adaptive_capacity  REAL NOT NULL,
	reduced_confidence BOOLEAN NOT NULL DEFAULT 0,
	sub_indices        TEXT NOT NULL,
	sources            TEXT NOT NULL,
	PRIMARY KEY (run_id, city)
);

CREATE TABLE IF NOT EXISTS exclusions (
	run_id    TEXT NOT NULL REFERENCES runs(run_id),
	city      TEXT NOT NULL,
	reason    TEXT NOT NULL,
	component TEXT NOT NULL DEFAULT '',
	detail    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, city)
);

CREATE TABLE IF NOT EXISTS quality_reports (
	run_id   TEXT NOT NULL REFERENCES runs(run_id),
	city     TEXT NOT NULL,
	admitted BOOLEAN NOT NULL,
	sources  TEXT NOT NULL,
	PRIMARY KEY (run_id, city)
);

CREATE TABLE IF NOT EXISTS correlations (
	run_id  TEXT NOT NULL REFERENCES runs(run_id),
	x       TEXT NOT NULL,
	y       TEXT NOT NULL,
	r       REAL NOT NULL,
	n       INTEGER NOT NULL,
	defined BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, x, y)
);

CREATE TABLE IF NOT EXISTS weather_daily (
	city     TEXT NOT NULL,
	obs_date TEXT NOT NULL,
	tavg     REAL,
	tmin     REAL,
	tmax     REAL,
	prcp     REAL,
	PRIMARY KEY (city, obs_date)
);

CREATE TABLE IF NOT EXISTS indicator_obs (
	country_code TEXT NOT NULL,
	indicator_id TEXT NOT NULL,
	year         INTEGER NOT NULL,
	value        REAL NOT NULL,
	PRIMARY KEY (country_code, indicator_id, year)
);

CREATE TABLE IF NOT EXISTS svi_wide (
	fips      TEXT PRIMARY KEY,
	county    TEXT NOT NULL DEFAULT '',
	st_abbr   TEXT NOT NULL DEFAULT '',
	ep_pov150 REAL,
	ep_nohsdp REAL,
	ep_age65  REAL,
	ep_age17  REAL,
	ep_munit  REAL,
	ep_limeng REAL,
	ep_noveh  REAL
);

CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs(generated_at);
CREATE INDEX IF NOT EXISTS idx_records_run_id ON vulnerability_records(run_id);
CREATE INDEX IF NOT EXISTS idx_exclusions_run_id ON exclusions(run_id);
CREATE INDEX IF NOT EXISTS idx_svi_wide_county ON svi_wide(county);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveBatch(ctx context.Context, batch *model.BatchResult) error {
	if batch == nil || batch.RunID == "" {
		return eris.New("sqlite: batch has no run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, generated_at, attempted, scored, excluded) VALUES (?, ?, ?, ?, ?)`,
		batch.RunID, batch.GeneratedAt.UTC(), batch.Attempted, len(batch.Records), len(batch.Exclusions),
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", batch.RunID)
	}

	for _, r := range batch.Records {
		subJSON, err := json.Marshal(r.SubIndices)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal sub-indices for %s", r.City)
		}
		srcJSON, err := json.Marshal(r.Sources)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal sources for %s", r.City)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vulnerability_records
			(run_id, city, country_code, rank, score, category, climate_risk, adaptive_capacity, reduced_confidence, sub_indices, sources)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batch.RunID, r.City, r.CountryCode, r.Rank, r.Score, string(r.Category),
			r.ClimateRisk, r.AdaptiveCapacity, r.ReducedConfidence, string(subJSON), string(srcJSON),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert record %s", r.City)
		}
	}

	for _, e := range batch.Exclusions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exclusions (run_id, city, reason, component, detail) VALUES (?, ?, ?, ?, ?)`,
			batch.RunID, e.City, string(e.Reason), e.Component, e.Detail,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert exclusion %s", e.City)
		}
	}

	for _, q := range batch.Quality {
		srcJSON, err := json.Marshal(q.Sources)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal quality for %s", q.City)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quality_reports (run_id, city, admitted, sources) VALUES (?, ?, ?, ?)`,
			batch.RunID, q.City, q.Admitted, string(srcJSON),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert quality report %s", q.City)
		}
	}

	for _, c := range batch.Correlations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO correlations (run_id, x, y, r, n, defined) VALUES (?, ?, ?, ?, ?, ?)`,
			batch.RunID, c.X, c.Y, c.R, c.N, c.Defined,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert correlation %s/%s", c.X, c.Y)
		}
	}

	return eris.Wrapf(tx.Commit(), "sqlite: commit run %s", batch.RunID)
}

func (s *SQLiteStore) GetBatch(ctx context.Context, runID string) (*model.BatchResult, error) {
	var b model.BatchResult
	var scored, excluded int
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, generated_at, attempted, scored, excluded FROM runs WHERE run_id = ?`,
		runID,
	).Scan(&b.RunID, &b.GeneratedAt, &b.Attempted, &scored, &excluded)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
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

func (s *SQLiteStore) getRecords(ctx context.Context, b *model.BatchResult) ([]model.VulnerabilityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT city, country_code, rank, score, category, climate_risk, adaptive_capacity, reduced_confidence, sub_indices, sources
		FROM vulnerability_records WHERE run_id = ? ORDER BY rank`,
		b.RunID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query records")
	}
	defer rows.Close()

	var records []model.VulnerabilityRecord
	for rows.Next() {
		var r model.VulnerabilityRecord
		var category, subJSON, srcJSON string
		if err := rows.Scan(&r.City, &r.CountryCode, &r.Rank, &r.Score, &category,
			&r.ClimateRisk, &r.AdaptiveCapacity, &r.ReducedConfidence, &subJSON, &srcJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		r.Category = model.CategoryLabel(category)
		if err := json.Unmarshal([]byte(subJSON), &r.SubIndices); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal sub-indices for %s", r.City)
		}
		if err := json.Unmarshal([]byte(srcJSON), &r.Sources); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal sources for %s", r.City)
		}
		r.RunID = b.RunID
		r.GeneratedAt = b.GeneratedAt
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

func (s *SQLiteStore) getExclusions(ctx context.Context, runID string) ([]model.Exclusion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT city, reason, component, detail FROM exclusions WHERE run_id = ? ORDER BY city`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query exclusions")
	}
	defer rows.Close()

	var exclusions []model.Exclusion
	for rows.Next() {
		var e model.Exclusion
		var reason string
		if err := rows.Scan(&e.City, &reason, &e.Component, &e.Detail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan exclusion")
		}
		e.Reason = model.ExclusionReason(reason)
		exclusions = append(exclusions, e)
	}
	return exclusions, eris.Wrap(rows.Err(), "sqlite: iterate exclusions")
}

func (s *SQLiteStore) getQuality(ctx context.Context, runID string) ([]model.CityQuality, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT city, admitted, sources FROM quality_reports WHERE run_id = ? ORDER BY city`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query quality reports")
	}
	defer rows.Close()

	var quality []model.CityQuality
	for rows.Next() {
		var q model.CityQuality
		var srcJSON string
		if err := rows.Scan(&q.City, &q.Admitted, &srcJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quality report")
		}
		if err := json.Unmarshal([]byte(srcJSON), &q.Sources); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal quality for %s", q.City)
		}
		quality = append(quality, q)
	}
	return quality, eris.Wrap(rows.Err(), "sqlite: iterate quality reports")
}

func (s *SQLiteStore) getCorrelations(ctx context.Context, runID string) ([]model.CorrelationPair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x, y, r, n, defined FROM correlations WHERE run_id = ? ORDER BY x, y`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query correlations")
	}
	defer rows.Close()

	var pairs []model.CorrelationPair
	for rows.Next() {
		var c model.CorrelationPair
		if err := rows.Scan(&c.X, &c.Y, &c.R, &c.N, &c.Defined); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan correlation")
		}
		pairs = append(pairs, c)
	}
	return pairs, eris.Wrap(rows.Err(), "sqlite: iterate correlations")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, generated_at, attempted, scored, excluded FROM runs ORDER BY generated_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.GeneratedAt, &r.Attempted, &r.Scored, &r.Excluded); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) LoadCityTables(ctx context.Context, cities []model.City) (map[string]map[model.Source][]model.Table, error) {
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

func (s *SQLiteStore) weatherTable(ctx context.Context, cityName string) (*model.Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT obs_date, tavg, tmin, tmax, prcp FROM weather_daily WHERE city = ? ORDER BY obs_date`,
		cityName,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query weather for %s", cityName)
	}
	defer rows.Close()

	var tblRows [][]string
	for rows.Next() {
		var day string
		var tavg, tmin, tmax, prcp *float64
		if err := rows.Scan(&day, &tavg, &tmin, &tmax, &prcp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan weather row")
		}
		tblRows = append(tblRows, []string{day, fstr(tavg), fstr(tmin), fstr(tmax), fstr(prcp)})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate weather rows")
	}
	if len(tblRows) == 0 {
		return nil, nil
	}
	return &model.Table{
		City:    cityName,
		Source:  model.SourceWeather,
		Name:    "weather_daily",
		Columns: []string{"date", "tavg", "tmin", "tmax", "prcp"},
		Rows:    tblRows,
	}, nil
}

func (s *SQLiteStore) indicatorTable(ctx context.Context, cityName, countryCode string) (*model.Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT indicator_id, year, value FROM indicator_obs WHERE country_code = ? ORDER BY indicator_id, year`,
		countryCode,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query indicators for %s", countryCode)
	}
	defer rows.Close()

	var tblRows [][]string
	for rows.Next() {
		var id string
		var year int
		var value float64
		if err := rows.Scan(&id, &year, &value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan indicator row")
		}
		tblRows = append(tblRows, []string{id, strconv.Itoa(year), fstr(&value)})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate indicator rows")
	}
	if len(tblRows) == 0 {
		return nil, nil
	}
	return &model.Table{
		City:    cityName,
		Source:  model.SourceWorldBank,
		Name:    "indicator_obs",
		Columns: []string{"indicator_id", "year", "value"},
		Rows:    tblRows,
	}, nil
}

func (s *SQLiteStore) sviTable(ctx context.Context, cityName, fips string) (*model.Table, error) {
	vars := registry.SVIVariables()

	dbCols := make([]string, 0, len(vars))
	for _, v := range vars {
		dbCols = append(dbCols, strings.ToLower(v))
	}
	query := fmt.Sprintf(`SELECT county, %s FROM svi_wide WHERE fips = ?`, strings.Join(dbCols, ", "))

	var county string
	values := make([]*float64, len(vars))
	dest := make([]any, 0, len(vars)+1)
	dest = append(dest, &county)
	for i := range values {
		dest = append(dest, &values[i])
	}

	err := s.db.QueryRowContext(ctx, query, fips).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query svi for fips %s", fips)
	}

	row := make([]string, 0, len(vars)+1)
	row = append(row, county)
	for _, v := range values {
		row = append(row, fstr(v))
	}

	return &model.Table{
		City:    cityName,
		Source:  model.SourceSVI,
		Name:    "svi_wide",
		Columns: append([]string{"county"}, vars...),
		Rows:    [][]string{row},
	}, nil
}
