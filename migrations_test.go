package main

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMigrations_Ordered(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
	}
}

func expectMigration(mock sqlmock.Sqlmock, m Migration, stmt string) {
	mock.ExpectBegin()
	mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs(m.Version, m.Description, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestRunMigrations(t *testing.T) {
	migrations := GetMigrations()

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		expectErr bool
		errMsg    string
	}{
		{
			name: "fresh database applies everything",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_migrations`).
					WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(0))
				expectMigration(mock, migrations[0], "CREATE TABLE IF NOT EXISTS query_history")
				expectMigration(mock, migrations[1], "ALTER TABLE query_history ADD COLUMN IF NOT EXISTS server_version")
			},
		},
		{
			name: "only newer migrations run",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_migrations`).
					WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
				expectMigration(mock, migrations[1], "ALTER TABLE query_history")
			},
		},
		{
			name: "up to date",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_migrations`).
					WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(len(migrations)))
			},
		},
		{
			name: "bookkeeping table failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnError(assert.AnError)
			},
			expectErr: true,
			errMsg:    "failed to create migrations table",
		},
		{
			name: "failing migration rolls back",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_migrations`).
					WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
				mock.ExpectBegin()
				mock.ExpectExec("ALTER TABLE query_history").WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
			expectErr: true,
			errMsg:    "failed to execute migration 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()
			tt.setupMock(mock)

			err = RunMigrations(db, testLogger())
			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
