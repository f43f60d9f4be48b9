package main

import (
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orian/clickguard/models"
)

var historyRowColumns = []string{
	"id", "query_id", "host_id", "source", "name", "sql", "sql_hash", "server_version",
	"duration_ms", "rows_returned", "error_type", "error_message", "degraded", "timestamp",
}

func newMockHistory(t *testing.T) (*DuckDBHistory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &DuckDBHistory{db: db}, mock
}

func TestDuckDBHistory_Record(t *testing.T) {
	ts := time.Date(2024, 3, 14, 13, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		h, mock := newMockHistory(t)
		e := &models.HistoryEntry{
			ID:         "id-1",
			QueryID:    "q-1",
			HostID:     0,
			Source:     models.SourceAdHoc,
			SQL:        "SELECT 1",
			SQLHash:    hashQuery("SELECT 1"),
			DurationMs: 12,
			Rows:       1,
			Timestamp:  ts,
		}
		mock.ExpectExec("INSERT INTO query_history").
			WithArgs("id-1", "q-1", 0, "adhoc", nil, "SELECT 1", e.SQLHash, nil, int64(12), 1, nil, nil, false, ts).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, h.Record(e))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing id", func(t *testing.T) {
		h, mock := newMockHistory(t)
		assert.Error(t, h.Record(&models.HistoryEntry{}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert error", func(t *testing.T) {
		h, mock := newMockHistory(t)
		mock.ExpectExec("INSERT INTO query_history").WillReturnError(assert.AnError)

		err := h.Record(&models.HistoryEntry{ID: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to record history entry")
	})
}

func TestDuckDBHistory_Get(t *testing.T) {
	ts := time.Date(2024, 3, 14, 13, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		h, mock := newMockHistory(t)
		mock.ExpectQuery(`FROM query_history WHERE id = \?`).
			WithArgs("id-1").
			WillReturnRows(sqlmock.NewRows(historyRowColumns).AddRow(
				"id-1", "q-1", int64(2), "catalog", "parts", "SELECT * FROM system.parts", "hash", "24.3.1",
				int64(40), int64(0), "table_not_found", "Table system.parts doesn't exist", false, ts,
			))

		e, err := h.Get("id-1")
		require.NoError(t, err)
		assert.Equal(t, 2, e.HostID)
		assert.Equal(t, models.SourceCatalog, e.Source)
		assert.Equal(t, models.TableNotFound, e.ErrorType)
		assert.Equal(t, "24.3.1", e.ServerVersion)
		assert.True(t, e.Failed())
		assert.Equal(t, ts, e.Timestamp)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		h, mock := newMockHistory(t)
		mock.ExpectQuery(`FROM query_history WHERE id = \?`).
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		_, err := h.Get("nope")
		assert.ErrorIs(t, err, models.ErrHistoryNotFound)
	})

	t.Run("store error", func(t *testing.T) {
		h, mock := newMockHistory(t)
		mock.ExpectQuery(`FROM query_history WHERE id = \?`).
			WithArgs("id-1").
			WillReturnError(assert.AnError)

		_, err := h.Get("id-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, models.ErrHistoryNotFound)
		assert.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDuckDBHistory_Recent(t *testing.T) {
	ts := time.Date(2024, 3, 14, 13, 0, 0, 0, time.UTC)
	row := func(id string) []driver.Value {
		return []driver.Value{id, "q", int64(0), "chart", "query-count", "SELECT 1", "h", "", int64(1), int64(3), "", "", false, ts}
	}

	tests := []struct {
		name   string
		hostID int
		limit  int
		query  string
		args   []driver.Value
	}{
		{"all hosts default limit", -1, 0, "FROM query_history ORDER BY timestamp DESC LIMIT", []driver.Value{100}},
		{"one host", 1, 10, `FROM query_history WHERE host_id = \? ORDER BY`, []driver.Value{1, 10}},
		{"limit capped", -1, 5000, "FROM query_history ORDER BY", []driver.Value{1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mock := newMockHistory(t)
			mock.ExpectQuery(tt.query).
				WithArgs(tt.args...).
				WillReturnRows(sqlmock.NewRows(historyRowColumns).AddRow(row("a")...).AddRow(row("b")...))

			entries, err := h.Recent(tt.hostID, tt.limit)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "a", entries[0].ID)
			assert.Equal(t, 3, entries[0].Rows)
			assert.False(t, entries[0].Failed())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDuckDBHistory_FailureCounts(t *testing.T) {
	h, mock := newMockHistory(t)
	mock.ExpectQuery("SELECT error_type, COUNT\\(\\*\\) FROM query_history").
		WithArgs(0).
		WillReturnRows(sqlmock.NewRows([]string{"error_type", "count"}).
			AddRow("network_error", int64(3)).
			AddRow("permission_error", int64(1)))

	counts, err := h.FailureCounts(0)
	require.NoError(t, err)
	assert.Equal(t, map[models.ErrorType]int{
		models.NetworkError:    3,
		models.PermissionError: 1,
	}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
