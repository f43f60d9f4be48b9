package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/orian/clickguard/catalog"
	"github.com/orian/clickguard/charts"
	"github.com/orian/clickguard/logging"
	"github.com/orian/clickguard/models"
	"github.com/orian/clickguard/validation"
)

// Server handles HTTP requests on top of the QueryService.
type Server struct {
	service *QueryService
	exec    Executor
	catalog *catalog.Catalog
	charts  *charts.Registry
	history models.HistoryStore
	log     *logging.Logger
}

// NewServer creates a Server.
func NewServer(service *QueryService, log *logging.Logger) *Server {
	return &Server{
		service: service,
		exec:    service.exec,
		catalog: service.catalog,
		charts:  service.charts,
		history: service.history,
		log:     log,
	}
}

// Routes builds the chi router.
func (s *Server) Routes(corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(s.log, "/api/ping"))
	r.Use(middleware.Recoverer)

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Query-ID"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", s.handlePing)
		r.Get("/hosts", s.handleHosts)

		r.Get("/catalog", s.handleCatalog)
		r.Get("/data", s.handleData)
		r.Post("/query", s.handleQuery)

		r.Get("/charts", s.handleChartList)
		r.Get("/charts/{key}", s.handleChart)

		r.Get("/history", s.handleHistory)
		r.Get("/history/failures", s.handleFailures)
		r.Get("/history/{id}", s.handleHistoryEntry)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResponse writes the envelope, or delimited rows for CSV and TSV
// when the query succeeded with a row set.
func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, resp *models.Response, format string) {
	if resp.Metadata.QueryID != "" {
		w.Header().Set("X-Query-ID", resp.Metadata.QueryID)
	}

	rows, isRows := resp.Data.([]models.Row)
	if resp.Success && isRows && (format == validation.FormatCSV || format == validation.FormatTSV) {
		comma, contentType := ',', "text/csv; charset=utf-8"
		if format == validation.FormatTSV {
			comma, contentType = '\t', "text/tab-separated-values; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		if err := writeDelimited(w, comma, resp.Metadata.Columns, rows); err != nil {
			logging.FromContext(r.Context()).Error("failed to write delimited output", "error", err)
		}
		return
	}

	writeJSON(w, responseStatus(resp), resp)
}

func writeError(w http.ResponseWriter, apiErr *models.APIError) {
	writeJSON(w, apiErr.StatusCode(), &models.Response{Success: false, Error: apiErr})
}

// paramsFrom turns the query string, minus reserved keys, into a
// parameter bag. Repeated keys become lists.
func paramsFrom(values url.Values, reserved ...string) models.Params {
	skip := make(map[string]bool, len(reserved))
	for _, k := range reserved {
		skip[k] = true
	}
	out := models.Params{}
	for k, vs := range values {
		if skip[k] || len(vs) == 0 {
			continue
		}
		if len(vs) == 1 {
			out[k] = models.StringParam(vs[0])
			continue
		}
		list := make([]models.ParamValue, len(vs))
		for i, v := range vs {
			list[i] = models.StringParam(v)
		}
		out[k] = models.ListParam(list...)
	}
	return out
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
}

func (s *Server) handleHosts(w http.ResponseWriter, r *http.Request) {
	type hostInfo struct {
		models.Host
		ServerVersion string `json:"serverVersion,omitempty"`
	}
	hosts := s.exec.Hosts()
	out := make([]hostInfo, len(hosts))
	for i, h := range hosts {
		out[i] = hostInfo{Host: h}
		if v := s.exec.ServerVersion(r.Context(), h.ID); v != nil {
			out[i].ServerVersion = v.String()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.All())
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	if apiErr := validation.ValidateSearchParams(values, []string{"hostId", "query"}); apiErr != nil {
		writeError(w, apiErr)
		return
	}
	hostID, apiErr := validation.ValidateHostID(values.Get("hostId"))
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	format := values.Get("format")
	if apiErr := validation.ValidateFormat(format); apiErr != nil {
		writeError(w, apiErr)
		return
	}

	params := paramsFrom(values, "hostId", "query", "format")
	resp := s.service.RunQuery(r.Context(), hostID, values.Get("query"), params)
	s.writeResponse(w, r, resp, format)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.NewValidationError("Invalid JSON body", map[string]any{"error": err.Error()}))
		return
	}
	resp := s.service.RunSQL(r.Context(), &req)
	format, _ := req.Format.(string)
	s.writeResponse(w, r, resp, format)
}

func (s *Server) handleChartList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"charts":    s.charts.Keys(),
		"intervals": charts.IntervalNames(),
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	hostID, apiErr := validation.ValidateHostID(values.Get("hostId"))
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	interval := values.Get("interval")
	if apiErr := validation.ValidateEnumValue(interval, charts.IntervalNames(), "interval"); apiErr != nil {
		writeError(w, apiErr)
		return
	}
	lastHours := 0
	if raw := values.Get("lastHours"); raw != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n <= 0 {
			writeError(w, models.NewValidationError("Invalid lastHours: must be a positive integer", map[string]any{"lastHours": raw}))
			return
		}
		lastHours = n
	}
	format := values.Get("format")
	if apiErr := validation.ValidateFormat(format); apiErr != nil {
		writeError(w, apiErr)
		return
	}

	p := charts.Params{
		Interval:  charts.Interval(interval),
		LastHours: lastHours,
		Params:    paramsFrom(values, "hostId", "interval", "lastHours", "format"),
	}
	resp := s.service.RunChart(r.Context(), hostID, chi.URLParam(r, "key"), p)
	s.writeResponse(w, r, resp, format)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	hostID := -1
	if values.Get("hostId") != "" {
		id, apiErr := validation.ValidateHostID(values.Get("hostId"))
		if apiErr != nil {
			writeError(w, apiErr)
			return
		}
		hostID = id
	}
	limit := 0
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, models.NewValidationError("Invalid limit: must be a non-negative integer", map[string]any{"limit": raw}))
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(hostID, limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load history", "error", err)
		writeError(w, models.NewAPIError(models.QueryError, "failed to load history", nil))
		return
	}
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	hostID := -1
	if raw := r.URL.Query().Get("hostId"); raw != "" {
		id, apiErr := validation.ValidateHostID(raw)
		if apiErr != nil {
			writeError(w, apiErr)
			return
		}
		hostID = id
	}
	counts, err := s.history.FailureCounts(hostID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to count failures", "error", err)
		writeError(w, models.NewAPIError(models.QueryError, "failed to count failures", nil))
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.history.Get(id)
	if errors.Is(err, models.ErrHistoryNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get history entry", "id", id, "error", err)
		writeError(w, models.NewAPIError(models.QueryError, "failed to get history entry", nil))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
