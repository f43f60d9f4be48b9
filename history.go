package main

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/orian/clickguard/logging"
	"github.com/orian/clickguard/models"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

const historyColumns = `id, query_id, host_id, source, COALESCE(name, ''), sql, sql_hash,
	COALESCE(server_version, ''), duration_ms, rows_returned,
	COALESCE(error_type, ''), COALESCE(error_message, ''), COALESCE(degraded, false), timestamp`

// DuckDBHistory is the HistoryStore backed by a local DuckDB file.
type DuckDBHistory struct {
	db *sql.DB
}

// NewDuckDBHistory opens (or creates) the history database at dbPath and
// brings its schema up to date.
func NewDuckDBHistory(dbPath string, log *logging.Logger) (*DuckDBHistory, error) {
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := RunMigrations(db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &DuckDBHistory{db: db}, nil
}

func (s *DuckDBHistory) Record(e *models.HistoryEntry) error {
	if e.ID == "" {
		return errors.New("history entry without id")
	}
	_, err := s.db.Exec(`
		INSERT INTO query_history (id, query_id, host_id, source, name, sql, sql_hash, server_version,
			duration_ms, rows_returned, error_type, error_message, degraded, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.QueryID, e.HostID, string(e.Source), nullString(e.Name), e.SQL, e.SQLHash,
		nullString(e.ServerVersion), e.DurationMs, e.Rows, nullString(string(e.ErrorType)),
		nullString(e.ErrorMessage), e.Degraded, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}
	return nil
}

func (s *DuckDBHistory) Get(id string) (*models.HistoryEntry, error) {
	row := s.db.QueryRow("SELECT "+historyColumns+" FROM query_history WHERE id = ?", id)
	e, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry %s: %w", id, err)
	}
	return e, nil
}

func (s *DuckDBHistory) Recent(hostID, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	var (
		rows *sql.Rows
		err  error
	)
	if hostID < 0 {
		rows, err = s.db.Query("SELECT "+historyColumns+" FROM query_history ORDER BY timestamp DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT "+historyColumns+" FROM query_history WHERE host_id = ? ORDER BY timestamp DESC LIMIT ?", hostID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *DuckDBHistory) FailureCounts(hostID int) (map[models.ErrorType]int, error) {
	query := `SELECT error_type, COUNT(*) FROM query_history
		WHERE error_type IS NOT NULL AND NOT COALESCE(degraded, false)`
	args := []any{}
	if hostID >= 0 {
		query += " AND host_id = ?"
		args = append(args, hostID)
	}
	query += " GROUP BY error_type"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count failures: %w", err)
	}
	defer rows.Close()

	counts := map[models.ErrorType]int{}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[models.ErrorType(t)] = n
	}
	return counts, rows.Err()
}

func (s *DuckDBHistory) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(r scanner) (*models.HistoryEntry, error) {
	var (
		e         models.HistoryEntry
		source    string
		errorType string
	)
	if err := r.Scan(&e.ID, &e.QueryID, &e.HostID, &source, &e.Name, &e.SQL, &e.SQLHash,
		&e.ServerVersion, &e.DurationMs, &e.Rows, &errorType, &e.ErrorMessage, &e.Degraded, &e.Timestamp); err != nil {
		return nil, err
	}
	e.Source = models.Source(source)
	e.ErrorType = models.ErrorType(errorType)
	return &e, nil
}

// nopHistory is used when history is disabled.
type nopHistory struct{}

func (nopHistory) Record(*models.HistoryEntry) error { return nil }
func (nopHistory) Get(string) (*models.HistoryEntry, error) {
	return nil, models.ErrHistoryNotFound
}
func (nopHistory) Recent(int, int) ([]*models.HistoryEntry, error) { return nil, nil }
func (nopHistory) FailureCounts(int) (map[models.ErrorType]int, error) {
	return map[models.ErrorType]int{}, nil
}
func (nopHistory) Close() error { return nil }

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func generateID() string {
	return uuid.New().String()
}

func hashQuery(query string) string {
	hash := sha256.Sum256([]byte(query))
	return hex.EncodeToString(hash[:])
}
