package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/orian/clickguard/logging"
)

// Migration is one versioned schema change of the history database.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create query_history table",
			SQL: `
				CREATE TABLE IF NOT EXISTS query_history (
					id VARCHAR PRIMARY KEY,
					query_id VARCHAR NOT NULL,
					host_id INTEGER NOT NULL,
					source VARCHAR NOT NULL,
					name VARCHAR,
					sql TEXT NOT NULL,
					sql_hash VARCHAR NOT NULL,
					duration_ms BIGINT NOT NULL,
					rows_returned INTEGER NOT NULL,
					error_type VARCHAR,
					error_message TEXT,
					timestamp TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_history_host_time ON query_history(host_id, timestamp);
				CREATE INDEX IF NOT EXISTS idx_history_hash ON query_history(sql_hash);
			`,
		},
		{
			Version:     2,
			Description: "Add server_version and degraded to query_history",
			SQL: `
				ALTER TABLE query_history ADD COLUMN IF NOT EXISTS server_version VARCHAR;
				ALTER TABLE query_history ADD COLUMN IF NOT EXISTS degraded BOOLEAN DEFAULT false;
			`,
		},
	}
}

// RunMigrations applies every migration newer than the recorded schema
// version, each in its own transaction.
func RunMigrations(db *sql.DB, log *logging.Logger) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description VARCHAR NOT NULL,
			applied_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}
	log.Debug("history schema version", "version", currentVersion)

	applied := 0
	for _, m := range GetMigrations() {
		if m.Version <= currentVersion {
			continue
		}
		log.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
		applied++
	}

	if applied > 0 {
		log.Info("applied migrations", "count", applied)
	}
	return nil
}
