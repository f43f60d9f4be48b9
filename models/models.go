// Package models defines the core data types for clickguard, a query
// compatibility and safety gateway in front of ClickHouse servers.
package models

import "time"

// Source says where the executed SQL came from.
type Source string

const (
	SourceCatalog Source = "catalog"
	SourceChart   Source = "chart"
	SourceAdHoc   Source = "adhoc"
)

// Host is a configured ClickHouse server. HostID is its index in the
// configured host list.
type Host struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Addr string `json:"addr"`
}

// Row is one result row keyed by column name.
type Row = map[string]any

// ResponseMetadata describes one execution in the API envelope.
type ResponseMetadata struct {
	// Host is the display name of the server the query ran on.
	Host string `json:"host"`

	// QueryID is the id the query was sent to ClickHouse with.
	QueryID string `json:"queryId"`

	// Duration is the wall time in milliseconds.
	Duration int64 `json:"duration"`

	// Rows is the number of rows returned.
	Rows int `json:"rows"`

	// Columns lists the result columns in server order.
	Columns []string `json:"columns,omitempty"`

	// SQL is the SQL text that was executed after version resolution.
	SQL string `json:"sql,omitempty"`

	// ServerVersion is the detected server version, empty if unknown.
	ServerVersion string `json:"serverVersion,omitempty"`

	// Degraded is set when a failure was reported as "no data" because the
	// query depends on an optional table.
	Degraded bool `json:"degraded,omitempty"`
}

// Response is the envelope returned by every data endpoint.
type Response struct {
	Success  bool             `json:"success"`
	Data     any              `json:"data"`
	Error    *APIError        `json:"error,omitempty"`
	Metadata ResponseMetadata `json:"metadata"`
}

// HistoryEntry records a single execution in the local query history.
type HistoryEntry struct {
	// ID is the unique identifier for this entry (UUID).
	ID string `json:"id"`

	// QueryID is the ClickHouse query id.
	QueryID string `json:"queryId"`

	// HostID references the configured host.
	HostID int `json:"hostId"`

	// Source is catalog, chart or adhoc.
	Source Source `json:"source"`

	// Name is the catalog query name or chart key. Empty for ad-hoc SQL.
	Name string `json:"name,omitempty"`

	// SQL is the executed text.
	SQL string `json:"sql"`

	// SQLHash is the SHA-256 of SQL, used to group repeated executions.
	SQLHash string `json:"sqlHash"`

	// ServerVersion is the detected server version, empty if unknown.
	ServerVersion string `json:"serverVersion,omitempty"`

	// DurationMs is the wall time of the execution.
	DurationMs int64 `json:"durationMs"`

	// Rows is the number of returned rows.
	Rows int `json:"rows"`

	// ErrorType is set when the execution failed.
	ErrorType ErrorType `json:"errorType,omitempty"`

	// ErrorMessage is the raw error text.
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Degraded is set when a failure was turned into empty data.
	Degraded bool `json:"degraded,omitempty"`

	// Timestamp is when the execution started.
	Timestamp time.Time `json:"timestamp"`
}

// Failed reports whether the execution surfaced an error.
func (h *HistoryEntry) Failed() bool {
	return h.ErrorType != "" && !h.Degraded
}

// QueryRequest is the body of an ad-hoc query. HostID and Format stay
// loosely typed so the validator can tell a wrong type from a wrong value.
type QueryRequest struct {
	HostID any    `json:"hostId"`
	SQL    string `json:"sql"`
	Format any    `json:"format,omitempty"`
	Params Params `json:"params,omitempty"`
}
