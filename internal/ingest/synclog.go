package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/urbanrisk-labs/climate-cli/internal/db"
)

// LogEntry represents a row in climate.ingest_log.
type LogEntry struct {
	ID          int64          `json:"id"`
	Source      string         `json:"source"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	RowsSynced  int64          `json:"rows_synced"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Log provides read/write access to the climate.ingest_log table.
type Log struct {
	pool db.Pool
}

// NewLog creates a new Log backed by the given connection pool.
func NewLog(pool db.Pool) *Log {
	return &Log{pool: pool}
}

// LastSuccess returns the started_at time of the most recent successful sync
// for a source. Returns nil if the source has never been synced successfully.
func (l *Log) LastSuccess(ctx context.Context, source string) (*time.Time, error) {
	var t time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT started_at FROM climate.ingest_log
		 WHERE source = $1 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		source,
	).Scan(&t)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ingest: last success for %s", source)
	}
	return &t, nil
}

// LastETag returns the upstream ETag recorded by the most recent successful
// sync for a source, or "" if the source has never synced or recorded one.
func (l *Log) LastETag(ctx context.Context, source string) (string, error) {
	var etag *string
	err := l.pool.QueryRow(ctx,
		`SELECT metadata->>'etag' FROM climate.ingest_log
		 WHERE source = $1 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		source,
	).Scan(&etag)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return "", nil
		}
		return "", eris.Wrapf(err, "ingest: last etag for %s", source)
	}
	if etag == nil {
		return "", nil
	}
	return *etag, nil
}

// Start records the beginning of a sync run and returns its ID.
func (l *Log) Start(ctx context.Context, source string) (int64, error) {
	var id int64
	err := l.pool.QueryRow(ctx,
		`INSERT INTO climate.ingest_log (source, status, started_at)
		 VALUES ($1, 'running', now()) RETURNING id`,
		source,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: start sync for %s", source)
	}
	return id, nil
}

// Complete marks a sync run as successfully completed.
func (l *Log) Complete(ctx context.Context, syncID int64, result *SyncResult) error {
	var metaJSON []byte
	if result != nil && result.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(result.Metadata)
		if err != nil {
			return eris.Wrap(err, "ingest: marshal metadata")
		}
	}

	rowsSynced := int64(0)
	if result != nil {
		rowsSynced = result.RowsSynced
	}

	_, err := l.pool.Exec(ctx,
		`UPDATE climate.ingest_log
		 SET status = 'complete', completed_at = now(), rows_synced = $1, metadata = $2
		 WHERE id = $3`,
		rowsSynced, metaJSON, syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "ingest: complete sync %d", syncID)
	}
	return nil
}

// Fail marks a sync run as failed with an error message.
func (l *Log) Fail(ctx context.Context, syncID int64, errMsg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE climate.ingest_log
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "ingest: fail sync %d", syncID)
	}
	return nil
}

// ListAll returns all ingest log entries ordered by most recent first.
func (l *Log) ListAll(ctx context.Context) ([]LogEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, source, status, started_at, completed_at, rows_synced, error, metadata
		 FROM climate.ingest_log ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: list log")
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var completedAt *time.Time
		var errStr *string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Source, &e.Status, &e.StartedAt, &completedAt, &e.RowsSynced, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "ingest: scan log entry")
		}
		e.CompletedAt = completedAt
		if errStr != nil {
			e.Error = *errStr
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
