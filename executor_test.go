package main

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orian/clickguard/config"
	"github.com/orian/clickguard/models"
)

type fakeColumn struct {
	driver.ColumnType
	name string
	typ  reflect.Type
}

func (c fakeColumn) Name() string             { return c.name }
func (c fakeColumn) ScanType() reflect.Type   { return c.typ }
func (c fakeColumn) DatabaseTypeName() string { return c.typ.String() }
func (c fakeColumn) Nullable() bool           { return false }

type fakeRows struct {
	driver.Rows
	cols []fakeColumn
	data [][]any
	pos  int
	err  error
}

func (r *fakeRows) Columns() []string {
	out := make([]string, len(r.cols))
	for i, c := range r.cols {
		out[i] = c.name
	}
	return out
}

func (r *fakeRows) ColumnTypes() []driver.ColumnType {
	out := make([]driver.ColumnType, len(r.cols))
	for i, c := range r.cols {
		out[i] = c
	}
	return out
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (r *fakeRows) Err() error   { return r.err }
func (r *fakeRows) Close() error { return nil }

func TestScanRows(t *testing.T) {
	rows := &fakeRows{
		cols: []fakeColumn{
			{name: "name", typ: reflect.TypeOf("")},
			{name: "total", typ: reflect.TypeOf(uint64(0))},
			{name: "tags", typ: reflect.TypeOf([]string(nil))},
		},
		data: [][]any{
			{"query_log", uint64(42), []string{"a"}},
			{"part_log", uint64(0), []string{}},
		},
	}

	res, err := scanRows(rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "total", "tags"}, res.Columns)
	assert.Equal(t, []models.Row{
		{"name": "query_log", "total": uint64(42), "tags": []string{"a"}},
		{"name": "part_log", "total": uint64(0), "tags": []string{}},
	}, res.Rows)
}

func TestScanRows_Empty(t *testing.T) {
	res, err := scanRows(&fakeRows{cols: []fakeColumn{{name: "n", typ: reflect.TypeOf(0)}}})
	require.NoError(t, err)
	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
}

func TestScanRows_IterationError(t *testing.T) {
	_, err := scanRows(&fakeRows{err: assert.AnError})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestConnOptions(t *testing.T) {
	tests := []struct {
		name         string
		host         config.HostConfig
		wantProtocol clickhouse.Protocol
		wantTLS      bool
	}{
		{
			name:         "native",
			host:         config.HostConfig{Addr: "ch:9000", User: "default", Database: "default", Protocol: config.ProtocolNative},
			wantProtocol: clickhouse.Native,
		},
		{
			name:         "https",
			host:         config.HostConfig{Addr: "ch:8443", User: "reader", Password: "secret", Database: "system", Protocol: config.ProtocolHTTP, Secure: true},
			wantProtocol: clickhouse.HTTP,
			wantTLS:      true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := connOptions(tt.host)
			assert.Equal(t, []string{tt.host.Addr}, opts.Addr)
			assert.Equal(t, tt.host.User, opts.Auth.Username)
			assert.Equal(t, tt.host.Password, opts.Auth.Password)
			assert.Equal(t, tt.host.Database, opts.Auth.Database)
			assert.Equal(t, tt.wantProtocol, opts.Protocol)
			assert.Equal(t, tt.wantTLS, opts.TLS != nil)
			require.Len(t, opts.ClientInfo.Products, 1)
			assert.Equal(t, "clickguard", opts.ClientInfo.Products[0].Name)
		})
	}
}

func newTestPool() *HostPool {
	return &HostPool{
		hosts: []hostConn{
			{cfg: config.HostConfig{Name: "primary", Addr: "ch1:9000"}},
			{cfg: config.HostConfig{Name: "replica", Addr: "ch2:9000"}},
		},
		maxExecutionTime: 60,
		log:              testLogger(),
		versions:         map[int]*models.ServerVersion{},
		tables:           map[int]map[string]bool{},
	}
}

func TestHostPool_Hosts(t *testing.T) {
	assert.Equal(t, []models.Host{
		{ID: 0, Name: "primary", Addr: "ch1:9000"},
		{ID: 1, Name: "replica", Addr: "ch2:9000"},
	}, newTestPool().Hosts())
}

func TestHostPool_UnknownHost(t *testing.T) {
	p := newTestPool()
	ctx := context.Background()

	_, err := p.Execute(ctx, ExecRequest{HostID: 2, SQL: "SELECT 1"})
	assert.ErrorIs(t, err, ErrUnknownHost)

	_, err = p.MissingTables(ctx, -1, []string{"system.part_log"})
	assert.ErrorIs(t, err, ErrUnknownHost)

	assert.Nil(t, p.ServerVersion(ctx, 5))
}

func TestHostPool_Caches(t *testing.T) {
	p := newTestPool()
	ctx := context.Background()

	v := models.ParseVersion("24.3.1")
	p.versions[0] = v
	assert.Same(t, v, p.ServerVersion(ctx, 0))

	p.tables[1] = map[string]bool{"system.part_log": false, "system.query_log": true}
	missing, err := p.MissingTables(ctx, 1, []string{"system.query_log", "system.part_log"})
	require.NoError(t, err)
	assert.Equal(t, []string{"system.part_log"}, missing)
}

func TestHostPool_RejectsMalformedTableName(t *testing.T) {
	_, err := newTestPool().MissingTables(context.Background(), 0, []string{"system.part_log; DROP TABLE x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestBuildLogComment(t *testing.T) {
	tests := []struct {
		name   string
		source models.Source
		query  string
		want   map[string]string
	}{
		{
			name:   "catalog query",
			source: models.SourceCatalog,
			query:  "running-queries",
			want:   map[string]string{"sql_hash": "abc", "product": "clickguard", "source": "catalog", "name": "running-queries"},
		},
		{
			name:   "ad-hoc omits name",
			source: models.SourceAdHoc,
			want:   map[string]string{"sql_hash": "abc", "product": "clickguard", "source": "adhoc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]string
			require.NoError(t, json.Unmarshal([]byte(buildLogComment("abc", tt.source, tt.query)), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHashQuery(t *testing.T) {
	assert.Equal(t, hashQuery("SELECT 1"), hashQuery("SELECT 1"))
	assert.NotEqual(t, hashQuery("SELECT 1"), hashQuery("SELECT 2"))
	assert.Len(t, hashQuery(""), 64)
}
