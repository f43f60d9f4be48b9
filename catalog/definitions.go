package catalog

import "github.com/orian/clickguard/models"

// Display directives passed through to the presentation layer.
const (
	fmtCode          models.ColumnFormat = "code"
	fmtDuration      models.ColumnFormat = "duration"
	fmtRelativeTime  models.ColumnFormat = "related-time"
	fmtReadableBytes models.ColumnFormat = "readable-bytes"
	fmtBackground    models.ColumnFormat = "background-bar"
	fmtBoolean       models.ColumnFormat = "boolean"
	fmtText          models.ColumnFormat = "text"
)

func definitions() []models.QueryConfig {
	return []models.QueryConfig{
		runningQueries,
		historyQueries,
		failedQueries,
		ddlQueries,
		merges,
		mutations,
		replicas,
		tables,
		disks,
		backups,
		errorsQuery,
		zookeeper,
		settings,
		users,
	}
}

var runningQueries = models.QueryConfig{
	Name: "running-queries",
	Variants: []models.SQLVariant{
		{
			Since:       models.MustParseVersion("23.8"),
			Description: "base columns of system.processes",
			SQL: `SELECT query_id,
       user,
       query,
       elapsed,
       formatReadableSize(memory_usage) AS readable_memory_usage,
       read_rows,
       formatReadableQuantity(read_rows) AS readable_read_rows,
       is_cancelled
FROM system.processes
WHERE is_initial_query = 1
ORDER BY elapsed DESC`,
		},
		{
			Since:       models.MustParseVersion("24.1"),
			Description: "adds peak memory and thread usage",
			SQL: `SELECT query_id,
       user,
       query,
       elapsed,
       formatReadableSize(memory_usage) AS readable_memory_usage,
       formatReadableSize(peak_memory_usage) AS readable_peak_memory_usage,
       read_rows,
       formatReadableQuantity(read_rows) AS readable_read_rows,
       peak_threads_usage,
       is_cancelled
FROM system.processes
WHERE is_initial_query = 1
ORDER BY elapsed DESC`,
			Columns: []string{
				"query_id", "user", "query", "elapsed", "readable_memory_usage",
				"readable_peak_memory_usage", "readable_read_rows", "peak_threads_usage", "is_cancelled",
			},
		},
	},
	Columns: []string{"query_id", "user", "query", "elapsed", "readable_memory_usage", "readable_read_rows", "is_cancelled"},
	ColumnFormats: map[string]models.ColumnFormat{
		"query":        fmtCode,
		"elapsed":      fmtDuration,
		"is_cancelled": fmtBoolean,
	},
}

var historyQueries = models.QueryConfig{
	Name: "history-queries",
	SQL: `SELECT event_time,
       query_id,
       user,
       query_kind,
       query,
       query_duration_ms,
       formatReadableSize(memory_usage) AS readable_memory_usage,
       formatReadableQuantity(read_rows) AS readable_read_rows
FROM merge('system', '^query_log')
WHERE type = 'QueryFinish'
  AND is_initial_query = 1
  AND event_time >= (now() - INTERVAL {lastHours:UInt32} HOUR)
ORDER BY event_time DESC
LIMIT {limit:UInt32}`,
	Columns: []string{"event_time", "query_id", "user", "query_kind", "query", "query_duration_ms", "readable_memory_usage", "readable_read_rows"},
	ColumnFormats: map[string]models.ColumnFormat{
		"event_time":        fmtRelativeTime,
		"query":             fmtCode,
		"query_duration_ms": fmtDuration,
	},
	DefaultParams: models.Params{
		"lastHours": models.IntParam(24),
		"limit":     models.IntParam(1000),
	},
}

var failedQueries = models.QueryConfig{
	Name: "failed-queries",
	SQL: `SELECT event_time,
       query_id,
       user,
       type,
       exception_code,
       exception,
       query
FROM merge('system', '^query_log')
WHERE type IN ('ExceptionBeforeStart', 'ExceptionWhileProcessing')
  AND event_time >= (now() - INTERVAL {lastHours:UInt32} HOUR)
ORDER BY event_time DESC
LIMIT {limit:UInt32}`,
	Columns: []string{"event_time", "query_id", "user", "type", "exception_code", "exception", "query"},
	ColumnFormats: map[string]models.ColumnFormat{
		"event_time": fmtRelativeTime,
		"exception":  fmtText,
		"query":      fmtCode,
	},
	DefaultParams: models.Params{
		"lastHours": models.IntParam(24),
		"limit":     models.IntParam(500),
	},
}

// ddlQueries filters on query kinds whose names are denylisted words.
var ddlQueries = models.QueryConfig{
	Name: "ddl-queries",
	SQL: `SELECT event_time,
       user,
       query_kind,
       query
FROM merge('system', '^query_log')
WHERE type = 'QueryFinish'
  AND query_kind IN ('Create', 'Drop', 'Alter', 'Rename')
  AND event_time >= (now() - INTERVAL {lastHours:UInt32} HOUR)
ORDER BY event_time DESC`,
	Columns:              []string{"event_time", "user", "query_kind", "query"},
	ColumnFormats:        map[string]models.ColumnFormat{"query": fmtCode},
	DefaultParams:        models.Params{"lastHours": models.IntParam(24 * 7)},
	DisableSQLValidation: true,
}

var merges = models.QueryConfig{
	Name: "merges",
	SQL: `SELECT database,
       table,
       round(elapsed, 1) AS elapsed,
       round(progress * 100, 1) AS progress_pct,
       num_parts,
       result_part_name,
       is_mutation,
       formatReadableSize(total_size_bytes_compressed) AS readable_total_size,
       formatReadableSize(memory_usage) AS readable_memory_usage
FROM system.merges
ORDER BY elapsed DESC`,
	Columns: []string{"database", "table", "elapsed", "progress_pct", "num_parts", "result_part_name", "is_mutation", "readable_total_size", "readable_memory_usage"},
	ColumnFormats: map[string]models.ColumnFormat{
		"elapsed":      fmtDuration,
		"progress_pct": fmtBackground,
		"is_mutation":  fmtBoolean,
	},
}

var mutations = models.QueryConfig{
	Name: "mutations",
	SQL: `SELECT database,
       table,
       mutation_id,
       command,
       create_time,
       parts_to_do,
       is_done,
       latest_fail_reason
FROM system.mutations
WHERE is_done = {isDone:UInt8}
ORDER BY create_time DESC`,
	Columns: []string{"database", "table", "mutation_id", "command", "create_time", "parts_to_do", "is_done", "latest_fail_reason"},
	ColumnFormats: map[string]models.ColumnFormat{
		"command":     fmtCode,
		"create_time": fmtRelativeTime,
		"is_done":     fmtBoolean,
	},
	DefaultParams: models.Params{"isDone": models.IntParam(0)},
}

var replicas = models.QueryConfig{
	Name: "replicas",
	SQL: `SELECT database,
       table,
       replica_name,
       is_leader,
       is_readonly,
       absolute_delay,
       queue_size,
       inserts_in_queue,
       merges_in_queue,
       active_replicas,
       total_replicas
FROM system.replicas
ORDER BY absolute_delay DESC, database, table`,
	Columns: []string{"database", "table", "replica_name", "is_leader", "is_readonly", "absolute_delay", "queue_size", "inserts_in_queue", "merges_in_queue", "active_replicas", "total_replicas"},
	ColumnFormats: map[string]models.ColumnFormat{
		"is_leader":      fmtBoolean,
		"is_readonly":    fmtBoolean,
		"absolute_delay": fmtDuration,
	},
}

var tables = models.QueryConfig{
	Name: "tables",
	Variants: []models.SQLVariant{
		{
			Since:       models.MustParseVersion("23.3"),
			Description: "sizes aggregated from active parts",
			SQL: `SELECT database,
       table,
       sum(rows) AS total_rows,
       sum(data_compressed_bytes) AS compressed_bytes,
       formatReadableSize(compressed_bytes) AS readable_compressed,
       formatReadableSize(sum(data_uncompressed_bytes)) AS readable_uncompressed,
       count() AS parts
FROM system.parts
WHERE active = 1
  AND database = {database:String}
GROUP BY database, table
ORDER BY compressed_bytes DESC`,
		},
		{
			Since:       models.MustParseVersion("24.3"),
			Description: "adds primary key memory",
			SQL: `SELECT database,
       table,
       sum(rows) AS total_rows,
       sum(data_compressed_bytes) AS compressed_bytes,
       formatReadableSize(compressed_bytes) AS readable_compressed,
       formatReadableSize(sum(data_uncompressed_bytes)) AS readable_uncompressed,
       count() AS parts,
       formatReadableSize(sum(primary_key_bytes_in_memory)) AS readable_primary_key_memory
FROM system.parts
WHERE active = 1
  AND database = {database:String}
GROUP BY database, table
ORDER BY compressed_bytes DESC`,
			Columns: []string{"database", "table", "total_rows", "readable_compressed", "readable_uncompressed", "parts", "readable_primary_key_memory"},
		},
	},
	Columns:       []string{"database", "table", "total_rows", "readable_compressed", "readable_uncompressed", "parts"},
	ColumnFormats: map[string]models.ColumnFormat{"readable_compressed": fmtReadableBytes},
	DefaultParams: models.Params{"database": models.StringParam("default")},
}

var disks = models.QueryConfig{
	Name: "disks",
	SQL: `SELECT name,
       path,
       formatReadableSize(free_space) AS readable_free_space,
       formatReadableSize(total_space) AS readable_total_space,
       round((1 - free_space / total_space) * 100, 2) AS used_pct,
       type
FROM system.disks
ORDER BY name`,
	Columns:       []string{"name", "path", "readable_free_space", "readable_total_space", "used_pct", "type"},
	ColumnFormats: map[string]models.ColumnFormat{"used_pct": fmtBackground},
}

var backups = models.QueryConfig{
	Name: "backups",
	SQL: `SELECT id,
       name,
       status,
       error,
       start_time,
       end_time,
       formatReadableSize(total_size) AS readable_total_size,
       num_files
FROM system.backup_log
ORDER BY start_time DESC`,
	Columns: []string{"id", "name", "status", "error", "start_time", "end_time", "readable_total_size", "num_files"},
	ColumnFormats: map[string]models.ColumnFormat{
		"start_time": fmtRelativeTime,
		"error":      fmtText,
	},
	Optional:   true,
	TableCheck: []string{"system.backup_log"},
}

var errorsQuery = models.QueryConfig{
	Name: "errors",
	SQL: `SELECT name,
       code,
       value,
       last_error_time,
       last_error_message
FROM system.errors
WHERE value > 0
ORDER BY last_error_time DESC`,
	Columns: []string{"name", "code", "value", "last_error_time", "last_error_message"},
	ColumnFormats: map[string]models.ColumnFormat{
		"last_error_time":    fmtRelativeTime,
		"last_error_message": fmtText,
	},
}

var zookeeper = models.QueryConfig{
	Name: "zookeeper",
	SQL: `SELECT name,
       value,
       numChildren,
       mtime
FROM system.zookeeper
WHERE path = {path:String}
ORDER BY name`,
	Columns:       []string{"name", "value", "numChildren", "mtime"},
	ColumnFormats: map[string]models.ColumnFormat{"value": fmtCode},
	DefaultParams: models.Params{"path": models.StringParam("/")},
	Optional:      true,
	TableCheck:    []string{"system.zookeeper"},
}

var settings = models.QueryConfig{
	Name: "settings",
	SQL: `SELECT name,
       value,
       changed,
       description
FROM system.settings
WHERE changed = 1
ORDER BY name`,
	Columns:       []string{"name", "value", "changed", "description"},
	ColumnFormats: map[string]models.ColumnFormat{"description": fmtText},
}

var users = models.QueryConfig{
	Name: "users",
	SQL: `SELECT name,
       storage,
       auth_type,
       host_ip,
       default_roles_list
FROM system.users
ORDER BY name`,
	Columns: []string{"name", "storage", "auth_type", "host_ip", "default_roles_list"},
}
