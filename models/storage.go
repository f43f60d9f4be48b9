package models

import "errors"

// ErrHistoryNotFound is returned by HistoryStore.Get for an unknown id.
var ErrHistoryNotFound = errors.New("history entry not found")

// HistoryStore defines the persistence layer for executed queries.
//
// The primary implementation is DuckDBHistory which uses DuckDB for local
// persistent storage. History is an audit aid only: a failure to record an
// entry never fails the query that produced it.
//
// Thread Safety: Implementations should be safe for concurrent use.
type HistoryStore interface {
	// Record persists a new entry. The entry's ID must be set.
	Record(entry *HistoryEntry) error

	// Get retrieves an entry by its ID.
	//
	// Returns ErrHistoryNotFound if no entry has that ID.
	Get(id string) (*HistoryEntry, error)

	// Recent returns the newest entries for a host, newest first.
	//
	// A negative hostID returns entries for all hosts. limit <= 0 uses
	// the store default.
	Recent(hostID, limit int) ([]*HistoryEntry, error)

	// FailureCounts returns the number of surfaced failures per error type
	// for a host (all hosts when hostID is negative).
	FailureCounts(hostID int) (map[ErrorType]int, error)

	// Close releases any resources held by the store.
	Close() error
}
