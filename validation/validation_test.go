package validation

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/orian/clickguard/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSQLQuery(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantMsg string
		pattern string
	}{
		{name: "plain select", sql: "SELECT * FROM t"},
		{name: "lowercase select", sql: "  select 1"},
		{name: "with clause", sql: "WITH x AS (SELECT 1) SELECT * FROM x"},
		{name: "identifier containing keyword", sql: "SELECT is_deleted, created_at FROM t"},
		{name: "empty", sql: "", wantMsg: msgEmptySQL},
		{name: "whitespace only", sql: "   \n\t", wantMsg: msgEmptySQL},
		{name: "drop", sql: "DROP TABLE x", wantMsg: msgDangerousSQL, pattern: "mutating_keyword"},
		{name: "chained delete", sql: "SELECT 1; delete FROM t", wantMsg: msgDangerousSQL, pattern: "chained_statement"},
		{name: "keyword as column", sql: "SELECT delete FROM t", wantMsg: msgDangerousSQL, pattern: "mutating_keyword"},
		{name: "exec", sql: "SELECT 1 WHERE EXEC", wantMsg: msgDangerousSQL, pattern: "exec_keyword"},
		{name: "line comment", sql: "SELECT 1 -- hidden", wantMsg: msgDangerousSQL, pattern: "line_comment"},
		{name: "block comment", sql: "SELECT /* x */ 1", wantMsg: msgDangerousSQL, pattern: "block_comment"},
		{name: "tautology", sql: "SELECT * FROM t WHERE a = 2 OR 1 = 1", wantMsg: msgDangerousSQL, pattern: "tautology"},
		{name: "quoted tautology", sql: "SELECT * FROM t WHERE a = 'x' or '1'='1'", wantMsg: msgDangerousSQL, pattern: "quoted_tautology"},
		{name: "other numeric tautology", sql: "SELECT * FROM t WHERE a = 1 OR 2=2", wantMsg: msgDangerousSQL, pattern: "tautology"},
		{name: "numeric comparison of different literals", sql: "SELECT * FROM t WHERE a = 1 OR 2 = 3"},
		{name: "letter tautology", sql: "SELECT * FROM t WHERE a = 'x' OR 'a'='a'", wantMsg: msgDangerousSQL, pattern: "quoted_tautology"},
		{name: "empty string tautology", sql: "SELECT * FROM t WHERE a = 'x' OR ''=''", wantMsg: msgDangerousSQL, pattern: "quoted_tautology"},
		{name: "double quoted tautology", sql: `SELECT * FROM t WHERE a = 1 OR "b" = "b"`, wantMsg: msgDangerousSQL, pattern: "quoted_tautology"},
		{name: "string comparison of different literals", sql: "SELECT * FROM t WHERE a = 'x' OR 'a'='b'"},
		{name: "or against a column", sql: "SELECT * FROM t WHERE a = 1 OR b = 1"},
		{name: "union select", sql: "SELECT a FROM t UNION ALL SELECT b FROM u", wantMsg: msgDangerousSQL, pattern: "union_select"},
		{name: "union distinct select", sql: "SELECT a FROM t UNION DISTINCT SELECT b FROM u", wantMsg: msgDangerousSQL, pattern: "union_select"},
		{name: "bare union select", sql: "select a from t union select b from u", wantMsg: msgDangerousSQL, pattern: "union_select"},
		{name: "union in identifier", sql: "SELECT reunion_selected FROM t"},
		{name: "not a select", sql: "SHOW TABLES", wantMsg: msgSelectOnly},
		{name: "describe", sql: "DESCRIBE system.parts", wantMsg: msgSelectOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSQLQuery(tt.sql)
			if tt.wantMsg == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, models.ValidationError, err.Type)
			assert.Equal(t, tt.wantMsg, err.Message)
			if tt.pattern != "" {
				assert.Equal(t, tt.pattern, err.Details["pattern"])
			}
		})
	}
}

func TestValidateHostID(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    int
		wantMsg string
	}{
		{name: "string zero", in: "0", want: 0},
		{name: "string", in: " 3 ", want: 3},
		{name: "int", in: 2, want: 2},
		{name: "json float", in: float64(4), want: 4},
		{name: "json number", in: json.Number("5"), want: 5},
		{name: "nil", in: nil, wantMsg: "Missing required parameter: hostId"},
		{name: "empty string", in: "", wantMsg: "Missing required parameter: hostId"},
		{name: "negative", in: "-1", wantMsg: "Invalid hostId: must be a non-negative integer"},
		{name: "not a number", in: "abc", wantMsg: "Invalid hostId: must be a non-negative integer"},
		{name: "fraction", in: 1.5, wantMsg: "Invalid hostId: must be a non-negative integer"},
		{name: "bool", in: true, wantMsg: "Invalid hostId: must be a non-negative integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateHostID(tt.in)
			if tt.wantMsg != "" {
				require.NotNil(t, err)
				assert.Equal(t, tt.wantMsg, err.Message)
				return
			}
			assert.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateFormat(t *testing.T) {
	assert.Nil(t, ValidateFormat(nil))
	assert.Nil(t, ValidateFormat(""))
	for _, f := range Formats {
		assert.Nil(t, ValidateFormat(f), f)
	}

	err := ValidateFormat(42)
	require.NotNil(t, err)
	assert.Equal(t, "Invalid format: must be a string", err.Message)

	err = ValidateFormat("jsoneachrow")
	require.NotNil(t, err)
	assert.Equal(t, "Invalid format: must be one of JSONEachRow, JSON, CSV, TSV", err.Message)
}

func TestValidateEnumValue(t *testing.T) {
	allowed := []string{"asc", "desc"}
	assert.Nil(t, ValidateEnumValue("", allowed, "order"))
	assert.Nil(t, ValidateEnumValue("desc", allowed, "order"))

	err := ValidateEnumValue("DESC", allowed, "order")
	require.NotNil(t, err)
	assert.Equal(t, "Invalid order: must be one of asc, desc", err.Message)
}

func TestValidateRequiredString(t *testing.T) {
	assert.Nil(t, ValidateRequiredString("x", "name"))
	assert.Equal(t, "Missing required parameter: name", ValidateRequiredString("  ", "name").Message)
	assert.Equal(t, "Missing required parameter: name", ValidateRequiredString(nil, "name").Message)
	assert.Equal(t, "Invalid name: must be a string", ValidateRequiredString(1, "name").Message)
}

func TestValidateSearchParamsFailFast(t *testing.T) {
	values := url.Values{"query": {"running-queries"}, "b": {" "}}

	assert.Nil(t, ValidateSearchParams(values, []string{"query"}))

	err := ValidateSearchParams(values, []string{"query", "hostId", "b"})
	require.NotNil(t, err)
	assert.Equal(t, "Missing required parameter: hostId", err.Message)

	err = ValidateSearchParams(values, []string{"b", "hostId"})
	require.NotNil(t, err)
	assert.Equal(t, "Missing required parameter: b", err.Message)
}

func TestValidateQueryRequest(t *testing.T) {
	assert.NoError(t, ValidateQueryRequest(&models.QueryRequest{HostID: float64(0), SQL: "SELECT 1", Format: "CSV"}))

	tests := []struct {
		name string
		req  *models.QueryRequest
		msg  string
	}{
		{name: "nil body", req: nil, msg: "Request body is required"},
		{name: "no host", req: &models.QueryRequest{SQL: "SELECT 1"}, msg: "Missing required parameter: hostId"},
		{name: "no sql", req: &models.QueryRequest{HostID: "1"}, msg: "Missing required parameter: sql"},
		{name: "unsafe sql", req: &models.QueryRequest{HostID: "1", SQL: "ALTER TABLE t DELETE WHERE 1"}, msg: msgDangerousSQL},
		{name: "bad format", req: &models.QueryRequest{HostID: "1", SQL: "SELECT 1", Format: "XML"}, msg: "Invalid format: must be one of JSONEachRow, JSON, CSV, TSV"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQueryRequest(tt.req)
			require.Error(t, err)

			var apiErr *models.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, models.ValidationError, apiErr.Type)
			assert.Equal(t, tt.msg, apiErr.Message)
			assert.Equal(t, 400, apiErr.StatusCode())
		})
	}
}
