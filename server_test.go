package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orian/clickguard/models"
)

type envelope struct {
	Success  bool                    `json:"success"`
	Data     json.RawMessage         `json:"data"`
	Error    *models.APIError        `json:"error"`
	Metadata models.ResponseMetadata `json:"metadata"`
}

func newTestHandler(t *testing.T, exec *fakeExecutor, history models.HistoryStore) http.Handler {
	t.Helper()
	svc := newTestService(t, exec, history, ServiceOptions{})
	return NewServer(svc, testLogger()).Routes(nil)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestServer_Ping(t *testing.T) {
	h := newTestHandler(t, newFakeExecutor(), nil)
	rec := do(t, h, http.MethodGet, "/api/ping", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"dev"}`, rec.Body.String())
}

func TestServer_Hosts(t *testing.T) {
	exec := newFakeExecutor()
	exec.version = models.ParseVersion("24.3.1.2")
	h := newTestHandler(t, exec, nil)

	rec := do(t, h, http.MethodGet, "/api/hosts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":0,"name":"local","addr":"localhost:9000","serverVersion":"24.3.1.2"}]`, rec.Body.String())
}

func TestServer_Data(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		execErr    error
		wantStatus int
		wantType   models.ErrorType
		wantMsg    string
	}{
		{
			name:       "missing hostId",
			query:      "query=parts",
			wantStatus: http.StatusBadRequest,
			wantType:   models.ValidationError,
			wantMsg:    "Missing required parameter: hostId",
		},
		{
			name:       "missing query",
			query:      "hostId=0",
			wantStatus: http.StatusBadRequest,
			wantType:   models.ValidationError,
			wantMsg:    "Missing required parameter: query",
		},
		{
			name:       "non-numeric hostId",
			query:      "hostId=abc&query=parts",
			wantStatus: http.StatusBadRequest,
			wantType:   models.ValidationError,
			wantMsg:    "Invalid hostId: must be a non-negative integer",
		},
		{
			name:       "unsupported format",
			query:      "hostId=0&query=parts&format=XML",
			wantStatus: http.StatusBadRequest,
			wantType:   models.ValidationError,
			wantMsg:    "Invalid format: must be one of JSONEachRow, JSON, CSV, TSV",
		},
		{
			name:       "unknown query",
			query:      "hostId=0&query=nope",
			wantStatus: http.StatusBadRequest,
			wantType:   models.ValidationError,
			wantMsg:    "Unknown query: nope",
		},
		{
			name:       "table not found",
			query:      "hostId=0&query=parts",
			execErr:    errors.New("Table system.parts doesn't exist"),
			wantStatus: http.StatusNotFound,
			wantType:   models.TableNotFound,
			wantMsg:    "Table system.parts doesn't exist",
		},
		{
			name:       "success",
			query:      "hostId=0&query=parts",
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newFakeExecutor()
			if tt.execErr != nil {
				exec.execute = func(context.Context, ExecRequest) (*QueryResult, error) { return nil, tt.execErr }
			}
			h := newTestHandler(t, exec, nil)

			rec := do(t, h, http.MethodGet, "/api/data?"+tt.query, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			env := decodeEnvelope(t, rec)
			if tt.wantStatus == http.StatusOK {
				assert.True(t, env.Success)
				assert.JSONEq(t, `[{"n":1}]`, string(env.Data))
				assert.Equal(t, []string{"n"}, env.Metadata.Columns)
				assert.Equal(t, env.Metadata.QueryID, rec.Header().Get("X-Query-ID"))
				return
			}
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantType, env.Error.Type)
			assert.Equal(t, tt.wantMsg, env.Error.Message)
		})
	}
}

func TestServer_DataPassesExtraParams(t *testing.T) {
	exec := newFakeExecutor()
	h := newTestHandler(t, exec, nil)

	rec := do(t, h, http.MethodGet, "/api/data?hostId=0&query=limited&limit=3&format=JSON", "")
	require.Equal(t, http.StatusOK, rec.Code)

	reqs := exec.executed()
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]string{"limit": "3", "db": "default"}, reqs[0].Params)
}

func TestServer_DelimitedFormats(t *testing.T) {
	exec := newFakeExecutor()
	exec.execute = func(context.Context, ExecRequest) (*QueryResult, error) {
		return &QueryResult{
			Columns: []string{"name", "total"},
			Rows: []models.Row{
				{"name": "a,b", "total": uint64(3)},
				{"name": "c", "total": nil},
			},
		}, nil
	}
	h := newTestHandler(t, exec, nil)

	t.Run("CSV", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/data?hostId=0&query=parts&format=CSV", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "name,total\n\"a,b\",3\nc,\n", rec.Body.String())
	})

	t.Run("TSV", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/query", `{"hostId":0,"sql":"SELECT name, total FROM t","format":"TSV"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/tab-separated-values; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "name\ttotal\na,b\t3\nc\t\n", rec.Body.String())
	})
}

func TestServer_Query(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"malformed JSON", `{"hostId":`, http.StatusBadRequest, "Invalid JSON body"},
		{"missing sql", `{"hostId":0}`, http.StatusBadRequest, "Missing required parameter: sql"},
		{"fractional hostId", `{"hostId":1.5,"sql":"SELECT 1"}`, http.StatusBadRequest, "Invalid hostId: must be a non-negative integer"},
		{"mutation", `{"hostId":0,"sql":"DELETE FROM t"}`, http.StatusBadRequest, "potentially dangerous SQL detected"},
		{"union injection", `{"hostId":0,"sql":"SELECT a FROM t UNION SELECT password FROM users"}`, http.StatusBadRequest, "potentially dangerous SQL detected"},
		{"bad format type", `{"hostId":0,"sql":"SELECT 1","format":1}`, http.StatusBadRequest, ""},
		{"ok", `{"hostId":"0","sql":"WITH 1 AS x SELECT x","params":{"x":[1,2]}}`, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newFakeExecutor()
			h := newTestHandler(t, exec, nil)

			rec := do(t, h, http.MethodPost, "/api/query", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			env := decodeEnvelope(t, rec)
			if tt.wantStatus == http.StatusOK {
				assert.True(t, env.Success)
				reqs := exec.executed()
				require.Len(t, reqs, 1)
				assert.Equal(t, map[string]string{"x": "1,2"}, reqs[0].Params)
				return
			}
			require.NotNil(t, env.Error)
			assert.Equal(t, models.ValidationError, env.Error.Type)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, env.Error.Message)
			}
			assert.Empty(t, exec.executed())
		})
	}
}

func TestServer_Charts(t *testing.T) {
	h := newTestHandler(t, newFakeExecutor(), nil)

	t.Run("list", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/charts", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Charts    []string `json:"charts"`
			Intervals []string `json:"intervals"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, []string{"panel", "single"}, body.Charts)
		assert.Contains(t, body.Intervals, "toStartOfHour")
	})

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantMsg    string
	}{
		{"single", "/api/charts/single?hostId=0&x=y", http.StatusOK, ""},
		{"multi", "/api/charts/panel?hostId=0", http.StatusOK, ""},
		{"unknown chart", "/api/charts/nope?hostId=0", http.StatusBadRequest, "Unknown chart: nope"},
		{"missing host", "/api/charts/single", http.StatusBadRequest, "Missing required parameter: hostId"},
		{"bad interval", "/api/charts/single?hostId=0&interval=toStartOfDecade", http.StatusBadRequest, ""},
		{"bad lastHours", "/api/charts/single?hostId=0&lastHours=-2", http.StatusBadRequest, "Invalid lastHours: must be a positive integer"},
		{"bad format", "/api/charts/single?hostId=0&format=XML", http.StatusBadRequest, "Invalid format: must be one of JSONEachRow, JSON, CSV, TSV"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.Equal(t, tt.wantStatus == http.StatusOK, env.Success)
			if tt.wantMsg != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.wantMsg, env.Error.Message)
			}
		})
	}
}

func TestServer_History(t *testing.T) {
	exec := newFakeExecutor()
	history := &memHistory{}
	h := newTestHandler(t, exec, history)

	rec := do(t, h, http.MethodGet, "/api/data?hostId=0&query=parts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	exec.execute = func(context.Context, ExecRequest) (*QueryResult, error) {
		return nil, errors.New("Access denied")
	}
	rec = do(t, h, http.MethodGet, "/api/data?hostId=0&query=parts", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	t.Run("recent", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/history?hostId=0&limit=10", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var entries []models.HistoryEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, models.PermissionError, entries[0].ErrorType)
	})

	t.Run("empty host", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/history?hostId=7", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/history?limit=x", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("failures", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/history/failures", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"permission_error":1}`, rec.Body.String())
	})

	t.Run("entry", func(t *testing.T) {
		id := history.entries[0].ID
		rec := do(t, h, http.MethodGet, "/api/history/"+url.PathEscape(id), "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(t, h, http.MethodGet, "/api/history/does-not-exist", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("entry store failure", func(t *testing.T) {
		broken := &memHistory{getErr: errors.New("database is locked")}
		rec := do(t, newTestHandler(t, newFakeExecutor(), broken), http.MethodGet, "/api/history/any", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		env := decodeEnvelope(t, rec)
		require.NotNil(t, env.Error)
		assert.Equal(t, "failed to get history entry", env.Error.Message)
	})
}

func TestParamsFrom(t *testing.T) {
	values := url.Values{
		"hostId": {"0"},
		"user":   {"default"},
		"type":   {"Select", "Insert"},
		"empty":  {},
	}
	got := paramsFrom(values, "hostId")

	assert.Equal(t, models.Params{
		"user": models.StringParam("default"),
		"type": models.ListParam(models.StringParam("Select"), models.StringParam("Insert")),
	}, got)
}
