package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orian/clickguard/catalog"
	"github.com/orian/clickguard/charts"
	"github.com/orian/clickguard/classify"
	"github.com/orian/clickguard/logging"
	"github.com/orian/clickguard/models"
	"github.com/orian/clickguard/validation"
)

// QueryService turns catalog names, chart keys and ad-hoc SQL into
// executed, classified responses.
type QueryService struct {
	exec           Executor
	catalog        *catalog.Catalog
	charts         *charts.Registry
	history        models.HistoryStore
	log            *logging.Logger
	timeout        time.Duration
	maxConcurrency int
	now            func() time.Time
}

// ServiceOptions tunes a QueryService.
type ServiceOptions struct {
	// Timeout bounds each execution. Zero means no extra deadline.
	Timeout time.Duration

	// MaxConcurrency bounds the sub-queries of a multi-statement chart.
	MaxConcurrency int
}

// NewQueryService wires the service. A nil history disables recording.
func NewQueryService(exec Executor, cat *catalog.Catalog, reg *charts.Registry, history models.HistoryStore, log *logging.Logger, opts ServiceOptions) *QueryService {
	if history == nil {
		history = nopHistory{}
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	return &QueryService{
		exec:           exec,
		catalog:        cat,
		charts:         reg,
		history:        history,
		log:            log,
		timeout:        opts.Timeout,
		maxConcurrency: opts.MaxConcurrency,
		now:            time.Now,
	}
}

// job is one statement ready to run.
type job struct {
	hostID         int
	source         models.Source
	name           string
	sql            string
	params         models.Params
	optional       bool
	tableCheck     []string
	skipValidation bool
	serverVersion  string

	// parent is the request context of a multi-statement chart. Sub-queries
	// cancelled while it is still live were cut short by a failing sibling.
	parent context.Context
}

func (j job) abandoned(err error) bool {
	return j.parent != nil && errors.Is(err, context.Canceled) && j.parent.Err() == nil
}

type outcome struct {
	result *QueryResult
	meta   models.ResponseMetadata
	err    *models.APIError
}

func (s *QueryService) hostName(id int) (string, bool) {
	hosts := s.exec.Hosts()
	if id < 0 || id >= len(hosts) {
		return "", false
	}
	return hosts[id].Name, true
}

func unknownHost(id int) *models.APIError {
	return models.NewValidationError(fmt.Sprintf("Invalid hostId: unknown host %d", id), map[string]any{"hostId": id})
}

// RunQuery executes the catalog query name on a host. params override the
// config's defaults.
func (s *QueryService) RunQuery(ctx context.Context, hostID int, name string, params models.Params) *models.Response {
	cfg, err := s.catalog.Lookup(name)
	if err != nil {
		return failure(models.ResponseMetadata{}, models.NewValidationError(
			fmt.Sprintf("Unknown query: %s", name), map[string]any{"query": name}))
	}
	host, ok := s.hostName(hostID)
	if !ok {
		return failure(models.ResponseMetadata{}, unknownHost(hostID))
	}

	v := s.exec.ServerVersion(ctx, hostID)
	j := job{
		hostID:         hostID,
		source:         models.SourceCatalog,
		name:           cfg.Name,
		sql:            cfg.GetSQL(v),
		params:         models.Merge(cfg.DefaultParams, params),
		optional:       cfg.Optional,
		tableCheck:     cfg.TableCheck,
		skipValidation: cfg.DisableSQLValidation,
	}
	if v != nil {
		j.serverVersion = v.String()
	}

	o := s.run(ctx, host, j)
	if o.err == nil && len(o.result.Columns) == 0 {
		o.meta.Columns = cfg.ColumnsFor(v)
	}
	return respond(o)
}

// RunChart builds and executes the chart key on a host. Multi-statement
// charts run their sub-queries concurrently and return an object keyed by
// sub-query key.
func (s *QueryService) RunChart(ctx context.Context, hostID int, key string, p charts.Params) *models.Response {
	res, err := s.charts.Build(key, p)
	if err != nil {
		return failure(models.ResponseMetadata{}, models.NewValidationError(
			fmt.Sprintf("Unknown chart: %s", key), map[string]any{"chart": key}))
	}
	host, ok := s.hostName(hostID)
	if !ok {
		return failure(models.ResponseMetadata{}, unknownHost(hostID))
	}

	if !res.IsMulti() {
		return respond(s.run(ctx, host, job{
			hostID:     hostID,
			source:     models.SourceChart,
			name:       key,
			sql:        res.Query,
			params:     res.QueryParams,
			optional:   res.Optional,
			tableCheck: res.TableCheck,
		}))
	}
	return s.runMulti(ctx, host, hostID, key, res)
}

func (s *QueryService) runMulti(ctx context.Context, host string, hostID int, key string, res charts.Result) *models.Response {
	start := s.now()
	meta := models.ResponseMetadata{Host: host, QueryID: generateID()}

	var (
		mu   sync.Mutex
		data = make(map[string][]models.Row, len(res.Queries))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)
	for _, sub := range res.Queries {
		g.Go(func() error {
			o := s.run(gctx, host, job{
				hostID:     hostID,
				source:     models.SourceChart,
				name:       key + "/" + sub.Key,
				sql:        sub.Query,
				optional:   sub.Optional || res.Optional,
				tableCheck: res.TableCheck,
				parent:     ctx,
			})
			if o.err != nil {
				return o.err
			}

			mu.Lock()
			defer mu.Unlock()
			data[sub.Key] = o.result.Rows
			meta.Rows += len(o.result.Rows)
			meta.Degraded = meta.Degraded || o.meta.Degraded
			return nil
		})
	}
	err := g.Wait()
	meta.Duration = s.now().Sub(start).Milliseconds()

	if err != nil {
		var apiErr *models.APIError
		if !errors.As(err, &apiErr) {
			apiErr = classify.ToAPIError(err)
		}
		return failure(meta, apiErr)
	}
	return &models.Response{Success: true, Data: data, Metadata: meta}
}

// RunSQL validates and executes an ad-hoc query.
func (s *QueryService) RunSQL(ctx context.Context, req *models.QueryRequest) *models.Response {
	if err := validation.ValidateQueryRequest(req); err != nil {
		var apiErr *models.APIError
		errors.As(err, &apiErr)
		return failure(models.ResponseMetadata{}, apiErr)
	}
	hostID, _ := validation.ValidateHostID(req.HostID)
	host, ok := s.hostName(hostID)
	if !ok {
		return failure(models.ResponseMetadata{}, unknownHost(hostID))
	}

	j := job{
		hostID: hostID,
		source: models.SourceAdHoc,
		sql:    req.SQL,
		params: req.Params,
		// already checked by ValidateQueryRequest
		skipValidation: true,
	}
	if v := s.exec.ServerVersion(ctx, hostID); v != nil {
		j.serverVersion = v.String()
	}
	return respond(s.run(ctx, host, j))
}

// run validates, pre-checks optional tables, executes, classifies and
// records one statement.
func (s *QueryService) run(ctx context.Context, host string, j job) (o outcome) {
	start := s.now()
	o = outcome{meta: models.ResponseMetadata{
		Host:          host,
		QueryID:       generateID(),
		SQL:           j.sql,
		ServerVersion: j.serverVersion,
	}}
	log := s.log.With("host_id", j.hostID, "query_id", o.meta.QueryID, "source", string(j.source), "name", j.name)

	var execErr error
	defer func() {
		o.meta.Duration = s.now().Sub(start).Milliseconds()
		if j.abandoned(execErr) {
			log.Debug("sub-query cancelled by a failed sibling, not recording")
			return
		}
		s.record(j, o, start, execErr)
	}()

	if !j.skipValidation {
		if apiErr := validation.ValidateSQLQuery(j.sql); apiErr != nil {
			log.Warn("rejected unsafe SQL", "pattern", apiErr.Details["pattern"])
			o.err = apiErr
			return o
		}
	}

	if j.optional && len(j.tableCheck) > 0 {
		missing, err := s.exec.MissingTables(ctx, j.hostID, j.tableCheck)
		switch {
		case err != nil:
			log.Warn("table check failed, executing anyway", "error", err)
		case len(missing) > 0:
			log.Info("optional tables missing, returning no data", "missing", missing)
			o.result = &QueryResult{Rows: []models.Row{}}
			o.meta.Degraded = true
			return o
		}
	}

	execCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.exec.Execute(execCtx, ExecRequest{
		HostID:     j.hostID,
		QueryID:    o.meta.QueryID,
		SQL:        j.sql,
		Params:     models.SanitizeQueryParams(j.params),
		LogComment: buildLogComment(hashQuery(j.sql), j.source, j.name),
	})
	if err != nil {
		execErr = err
		if errors.Is(err, ErrUnknownHost) {
			o.err = unknownHost(j.hostID)
			return o
		}
		if classify.ShouldDegrade(j.optional, j.sql, err) {
			log.Info("optional query failed, returning no data", "error", err)
			o.result = &QueryResult{Rows: []models.Row{}}
			o.meta.Degraded = true
			return o
		}
		o.err = classify.ToAPIError(err)
		log.Error("query failed", "error_type", string(o.err.Type), "error", err)
		return o
	}

	o.result = res
	o.meta.Rows = len(res.Rows)
	o.meta.Columns = res.Columns
	log.Debug("query executed", "rows", o.meta.Rows, "duration_ms", s.now().Sub(start).Milliseconds())
	return o
}

func (s *QueryService) record(j job, o outcome, start time.Time, execErr error) {
	entry := &models.HistoryEntry{
		ID:            generateID(),
		QueryID:       o.meta.QueryID,
		HostID:        j.hostID,
		Source:        j.source,
		Name:          j.name,
		SQL:           j.sql,
		SQLHash:       hashQuery(j.sql),
		ServerVersion: j.serverVersion,
		DurationMs:    o.meta.Duration,
		Rows:          o.meta.Rows,
		Degraded:      o.meta.Degraded,
		Timestamp:     start,
	}
	switch {
	case o.err != nil:
		entry.ErrorType = o.err.Type
		entry.ErrorMessage = o.err.Message
	case execErr != nil:
		entry.ErrorType = classify.ClassifyError(execErr)
		entry.ErrorMessage = execErr.Error()
	}
	if err := s.history.Record(entry); err != nil {
		s.log.Warn("failed to record history", "query_id", entry.QueryID, "error", err)
	}
}

func respond(o outcome) *models.Response {
	if o.err != nil {
		return failure(o.meta, o.err)
	}
	return &models.Response{Success: true, Data: o.result.Rows, Metadata: o.meta}
}

func failure(meta models.ResponseMetadata, err *models.APIError) *models.Response {
	return &models.Response{Success: false, Error: err, Metadata: meta}
}

// responseStatus is the HTTP status for an envelope. Timeouts use the
// extended 408 mapping.
func responseStatus(resp *models.Response) int {
	if resp.Error == nil {
		return http.StatusOK
	}
	if kind, _ := resp.Error.Details["kind"].(string); kind != "" {
		return models.ExtendedStatusCode(kind)
	}
	return resp.Error.StatusCode()
}
