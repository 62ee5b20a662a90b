package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncResult_Defaults(t *testing.T) {
	r := &SyncResult{}
	assert.Equal(t, int64(0), r.RowsSynced)
	assert.Nil(t, r.Metadata)
}

func TestLogEntry_Fields(t *testing.T) {
	e := LogEntry{
		ID:     1,
		Source: "weather",
		Status: "complete",
	}
	assert.Equal(t, "weather", e.Source)
	assert.Equal(t, "complete", e.Status)
	assert.Nil(t, e.CompletedAt)
	assert.Empty(t, e.Error)
}

func TestLog_LastSuccess_NeverSynced(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT started_at FROM climate.ingest_log").
		WithArgs("svi").
		WillReturnError(errors.New("no rows in result set"))

	last, err := NewLog(mock).LastSuccess(context.Background(), "svi")
	assert.NoError(t, err)
	assert.Nil(t, last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_LastSuccess_ReturnsTime(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2026, time.July, 3, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT started_at FROM climate.ingest_log").
		WithArgs("weather").
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}).AddRow(started))

	last, err := NewLog(mock).LastSuccess(context.Background(), "weather")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, started, *last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_LastETag(t *testing.T) {
	t.Run("returns the recorded etag", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		etag := `"vintage-2020"`
		mock.ExpectQuery("SELECT metadata->>'etag' FROM climate.ingest_log").
			WithArgs("svi").
			WillReturnRows(pgxmock.NewRows([]string{"etag"}).AddRow(&etag))

		got, err := NewLog(mock).LastETag(context.Background(), "svi")
		require.NoError(t, err)
		assert.Equal(t, etag, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("never synced", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT metadata->>'etag' FROM climate.ingest_log").
			WithArgs("svi").
			WillReturnError(errors.New("no rows in result set"))

		got, err := NewLog(mock).LastETag(context.Background(), "svi")
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sync without an etag", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT metadata->>'etag' FROM climate.ingest_log").
			WithArgs("svi").
			WillReturnRows(pgxmock.NewRows([]string{"etag"}).AddRow((*string)(nil)))

		got, err := NewLog(mock).LastETag(context.Background(), "svi")
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLog_StartCompleteRoundTrip(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	log := NewLog(mock)

	mock.ExpectQuery("INSERT INTO climate.ingest_log").
		WithArgs("worldbank").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := log.Start(context.Background(), "worldbank")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	mock.ExpectExec("UPDATE climate.ingest_log").
		WithArgs(int64(240), pgxmock.AnyArg(), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = log.Complete(context.Background(), id, &SyncResult{
		RowsSynced: 240,
		Metadata:   map[string]any{"countries": 3},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_Fail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE climate.ingest_log").
		WithArgs("station archive unreachable", int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = NewLog(mock).Fail(context.Background(), 9, "station archive unreachable")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_ListAll(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2026, time.July, 3, 8, 0, 0, 0, time.UTC)
	completed := started.Add(2 * time.Minute)
	errMsg := "download failed"

	rows := pgxmock.NewRows([]string{
		"id", "source", "status", "started_at", "completed_at", "rows_synced", "error", "metadata",
	}).
		AddRow(int64(2), "weather", "failed", started, &completed, int64(0), &errMsg, []byte(nil)).
		AddRow(int64(1), "svi", "complete", started.Add(-time.Hour), &completed, int64(3100), (*string)(nil), []byte(`{"etag":"v3"}`))
	mock.ExpectQuery("SELECT id, source, status").WillReturnRows(rows)

	entries, err := NewLog(mock).ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "weather", entries[0].Source)
	assert.Equal(t, "failed", entries[0].Status)
	assert.Equal(t, "download failed", entries[0].Error)

	assert.Equal(t, "svi", entries[1].Source)
	assert.Equal(t, int64(3100), entries[1].RowsSynced)
	assert.Equal(t, "v3", entries[1].Metadata["etag"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
