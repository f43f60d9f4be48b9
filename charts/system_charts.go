package charts

import (
	"fmt"

	"github.com/orian/clickguard/models"
)

const metricLog = "merge('system', '^metric_log')"

var systemCharts = map[string]Builder{
	"memory-usage": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfTenMinutes, 24)
		return Result{Query: timeSeries(iv, hours,
			[]string{
				"avg(CurrentMetric_MemoryTracking) AS avg_memory",
				"formatReadableSize(avg_memory) AS readable_avg_memory",
			},
			metricLog,
		)}
	},

	"cpu-usage": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfMinute, 24)
		return Result{Query: timeSeries(iv, hours,
			[]string{"avg(ProfileEvent_OSCPUVirtualTimeMicroseconds) / 1000000 AS avg_cpu"},
			metricLog,
		)}
	},

	"connections-http": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfHour, 24*7)
		return Result{Query: timeSeries(iv, hours,
			[]string{
				"SUM(CurrentMetric_HTTPConnection) AS current_http",
				"formatReadableQuantity(current_http) AS readable_current_http",
			},
			metricLog,
		)}
	},

	"connections-interserver": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfHour, 24*7)
		return Result{Query: timeSeries(iv, hours,
			[]string{
				"SUM(CurrentMetric_InterserverConnection) AS current_interserver",
				"formatReadableQuantity(current_interserver) AS readable_current_interserver",
			},
			metricLog,
		)}
	},

	"disk-size": func(p Params) Result {
		query := `SELECT name,
       (total_space - unreserved_space) AS used_space,
       formatReadableSize(used_space) AS readable_used_space,
       total_space,
       formatReadableSize(total_space) AS readable_total_space
FROM system.disks`
		name := p.param("name", models.UndefinedParam())
		if name.IsUndefined() || name.String() == "" {
			return Result{Query: query + "\nORDER BY name"}
		}
		return Result{
			Query:       query + "\nWHERE name = {name:String}\nORDER BY name",
			QueryParams: models.Params{"name": name},
		}
	},

	"top-table-size": func(p Params) Result {
		return Result{
			Query: `SELECT database,
       table,
       sum(data_compressed_bytes) AS compressed_bytes,
       sum(data_uncompressed_bytes) AS uncompressed_bytes,
       formatReadableSize(compressed_bytes) AS readable_compressed,
       formatReadableSize(uncompressed_bytes) AS readable_uncompressed,
       sum(rows) AS total_rows,
       formatReadableQuantity(total_rows) AS readable_total_rows
FROM system.parts
WHERE active = 1
  AND database NOT IN ('system', 'INFORMATION_SCHEMA', 'information_schema')
GROUP BY database, table
ORDER BY compressed_bytes DESC
LIMIT {limit:UInt32}`,
			QueryParams: models.Params{"limit": p.param("limit", models.IntParam(7))},
		}
	},

	"backup-size": func(p Params) Result {
		_, hours := p.withDefaults(ToStartOfDay, 24*30)
		return Result{
			Query: fmt.Sprintf(`SELECT uniq(name) AS number_of_backups,
       sum(total_size) AS backup_size,
       formatReadableSize(backup_size) AS readable_backup_size,
       sum(compressed_size) AS compressed_size,
       formatReadableSize(compressed_size) AS readable_compressed_size
FROM system.backup_log
WHERE status = 'BACKUP_CREATED'
  AND event_time >= (now() - INTERVAL %d HOUR)`, hours),
			Optional:   true,
			TableCheck: []string{"system.backup_log"},
		}
	},
}
