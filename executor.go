package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/orian/clickguard/config"
	"github.com/orian/clickguard/logging"
	"github.com/orian/clickguard/models"
)

// ErrUnknownHost is returned for a hostId outside the configured host list.
var ErrUnknownHost = errors.New("unknown host")

// ExecRequest is one statement to run on one host.
type ExecRequest struct {
	HostID     int
	QueryID    string
	SQL        string
	Params     map[string]string
	LogComment string
}

// QueryResult holds the rows of a successful execution. Values are passed
// through exactly as the driver scanned them.
type QueryResult struct {
	Columns []string
	Rows    []models.Row
}

// Executor is the execution collaborator: it runs resolved SQL and reports
// what it knows about each server.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) (*QueryResult, error)

	// ServerVersion returns the detected server version, or nil when it
	// cannot be determined.
	ServerVersion(ctx context.Context, hostID int) *models.ServerVersion

	// MissingTables returns the subset of tables that do not exist on the
	// host.
	MissingTables(ctx context.Context, hostID int, tables []string) ([]string, error)

	Hosts() []models.Host
}

type hostConn struct {
	cfg  config.HostConfig
	conn driver.Conn
}

// HostPool is the Executor over one ClickHouse connection per configured
// host. Server versions and table existence are cached per host for the
// lifetime of the pool.
type HostPool struct {
	hosts            []hostConn
	maxExecutionTime int
	log              *logging.Logger

	mu       sync.Mutex
	versions map[int]*models.ServerVersion
	tables   map[int]map[string]bool
}

// NewHostPool opens a connection for every configured host. Connections
// are established lazily by the driver.
func NewHostPool(cfg *config.Config, log *logging.Logger) (*HostPool, error) {
	p := &HostPool{
		maxExecutionTime: cfg.MaxExecutionTime,
		log:              log,
		versions:         map[int]*models.ServerVersion{},
		tables:           map[int]map[string]bool{},
	}
	for i, h := range cfg.Hosts {
		conn, err := clickhouse.Open(connOptions(h))
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to open connection to host %d (%s): %w", i, h.Addr, err)
		}
		log.Info("configured ClickHouse host",
			"host_id", i,
			"name", h.Name,
			"addr", h.Addr,
			"user", h.User,
			"password", config.MaskPassword(h.Password),
			"protocol", h.Protocol,
			"secure", h.Secure,
		)
		p.hosts = append(p.hosts, hostConn{cfg: h, conn: conn})
	}
	return p, nil
}

func connOptions(h config.HostConfig) *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: []string{h.Addr},
		Auth: clickhouse.Auth{
			Database: h.Database,
			Username: h.User,
			Password: h.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: "clickguard", Version: version},
			},
		},
		Settings: clickhouse.Settings{
			"send_logs_level": "none",
		},
	}
	if h.Protocol == config.ProtocolHTTP {
		opts.Protocol = clickhouse.HTTP
	}
	if h.Secure {
		opts.TLS = &tls.Config{
			InsecureSkipVerify: true,
		}
	}
	return opts
}

func (p *HostPool) host(id int) (hostConn, error) {
	if id < 0 || id >= len(p.hosts) {
		return hostConn{}, fmt.Errorf("%w: %d", ErrUnknownHost, id)
	}
	return p.hosts[id], nil
}

// Hosts lists the configured hosts in hostId order.
func (p *HostPool) Hosts() []models.Host {
	out := make([]models.Host, len(p.hosts))
	for i, h := range p.hosts {
		out[i] = models.Host{ID: i, Name: h.cfg.Name, Addr: h.cfg.Addr}
	}
	return out
}

// Execute runs req.SQL with server-side parameter binding.
func (p *HostPool) Execute(ctx context.Context, req ExecRequest) (*QueryResult, error) {
	h, err := p.host(req.HostID)
	if err != nil {
		return nil, err
	}

	settings := clickhouse.Settings{"max_execution_time": p.maxExecutionTime}
	if req.LogComment != "" {
		settings["log_comment"] = req.LogComment
	}
	ctx = clickhouse.Context(ctx,
		clickhouse.WithQueryID(req.QueryID),
		clickhouse.WithParameters(clickhouse.Parameters(req.Params)),
		clickhouse.WithSettings(settings),
	)

	rows, err := h.conn.Query(ctx, req.SQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// scanRows reads every row into a map using the driver's scan types.
func scanRows(rows driver.Rows) (*QueryResult, error) {
	columns := rows.Columns()
	types := rows.ColumnTypes()

	result := &QueryResult{Columns: columns, Rows: []models.Row{}}
	for rows.Next() {
		dest := make([]any, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}

		row := make(models.Row, len(columns))
		for i, name := range columns {
			row[name] = reflect.ValueOf(dest[i]).Elem().Interface()
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ServerVersion runs SELECT version() once per host. Failures are not
// cached so a later request can retry.
func (p *HostPool) ServerVersion(ctx context.Context, hostID int) *models.ServerVersion {
	p.mu.Lock()
	v, ok := p.versions[hostID]
	p.mu.Unlock()
	if ok {
		return v
	}

	h, err := p.host(hostID)
	if err != nil {
		return nil
	}
	var text string
	if err := h.conn.QueryRow(ctx, "SELECT version()").Scan(&text); err != nil {
		p.log.Warn("failed to detect server version", "host_id", hostID, "error", err)
		return nil
	}
	v = models.ParseVersion(text)
	if v == nil {
		p.log.Warn("unparsable server version", "host_id", hostID, "version", text)
	}

	p.mu.Lock()
	p.versions[hostID] = v
	p.mu.Unlock()
	return v
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*$`)

// MissingTables checks each database.table with EXISTS TABLE. Answers are
// cached per host.
func (p *HostPool) MissingTables(ctx context.Context, hostID int, tables []string) ([]string, error) {
	h, err := p.host(hostID)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, t := range tables {
		p.mu.Lock()
		exists, known := p.tables[hostID][t]
		p.mu.Unlock()

		if !known {
			if !tableName.MatchString(t) {
				return nil, fmt.Errorf("invalid table name %q", t)
			}
			var res uint8
			if err := h.conn.QueryRow(ctx, "EXISTS TABLE "+t).Scan(&res); err != nil {
				return nil, fmt.Errorf("failed to check table %s: %w", t, err)
			}
			exists = res == 1

			p.mu.Lock()
			if p.tables[hostID] == nil {
				p.tables[hostID] = map[string]bool{}
			}
			p.tables[hostID][t] = exists
			p.mu.Unlock()
		}
		if !exists {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// Close closes every connection.
func (p *HostPool) Close() error {
	var errs []error
	for _, h := range p.hosts {
		if err := h.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildLogComment(sqlHash string, source models.Source, name string) string {
	comment := map[string]string{
		"sql_hash": sqlHash,
		"product":  "clickguard",
		"source":   string(source),
	}
	if name != "" {
		comment["name"] = name
	}
	commentJSON, _ := json.Marshal(comment)
	return string(commentJSON)
}
