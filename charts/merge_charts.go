package charts

const partLog = "system.part_log"

var mergeCharts = map[string]Builder{
	"merge-count": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfFiveMinutes, 12)
		return Result{Query: timeSeries(iv, hours,
			[]string{
				"avg(CurrentMetric_Merge) AS avg_CurrentMetric_Merge",
				"avg(CurrentMetric_PartMutation) AS avg_CurrentMetric_PartMutation",
			},
			metricLog,
		)}
	},

	"merge-avg-duration": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfDay, 24*14)
		return Result{
			Query: timeSeries(iv, hours,
				[]string{
					"AVG(duration_ms) AS avg_duration_ms",
					"formatReadableTimeDelta(avg_duration_ms / 1000, 'seconds', 'milliseconds') AS readable_avg_duration_ms",
				},
				partLog,
				"event_type = 'MergeParts'",
				"merge_reason = 'RegularMerge'",
			),
			Optional:   true,
			TableCheck: []string{partLog},
		}
	},

	"new-parts-created": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfHour, 24*7)
		return Result{
			Query: timeSeries(iv, hours,
				[]string{
					"count() AS new_parts",
					"sum(rows) AS total_written_rows",
					"formatReadableQuantity(total_written_rows) AS readable_total_written_rows",
				},
				partLog,
				"event_type = 'NewPart'",
			),
			Optional:   true,
			TableCheck: []string{partLog},
		}
	},
}

var replicationCharts = map[string]Builder{
	"replication-queue-count": func(Params) Result {
		return Result{Query: `SELECT COUNT() AS count_all,
       countIf(last_exception != '') AS count_err,
       countIf(num_tries > 100) AS count_too_many_tries
FROM system.replication_queue`}
	},

	"readonly-replica": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfFifteenMinutes, 24)
		return Result{Query: timeSeries(iv, hours,
			[]string{"MAX(CurrentMetric_ReadonlyReplica) AS readonly_replica"},
			metricLog,
		)}
	},
}

var zookeeperCharts = map[string]Builder{
	"zookeeper-requests": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfHour, 24*7)
		return Result{
			Query: timeSeries(iv, hours,
				[]string{
					"SUM(CurrentMetric_ZooKeeperRequest) AS ZookeeperRequests",
					"SUM(CurrentMetric_ZooKeeperWatch) AS ZooKeeperWatch",
				},
				metricLog,
			),
			Optional:   true,
			TableCheck: []string{"system.zookeeper"},
		}
	},

	"zookeeper-wait": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfHour, 24*7)
		return Result{
			Query: timeSeries(iv, hours,
				[]string{
					"AVG(ProfileEvent_ZooKeeperWaitMicroseconds) / 1000000 AS AVG_ProfileEvent_ZooKeeperWaitSeconds",
					"formatReadableTimeDelta(AVG_ProfileEvent_ZooKeeperWaitSeconds) AS readable_AVG_ProfileEvent_ZooKeeperWaitSeconds",
				},
				metricLog,
			),
			Optional:   true,
			TableCheck: []string{"system.zookeeper"},
		}
	},

	"zookeeper-uptime": func(Params) Result {
		return Result{
			Query:    "SELECT formatReadableTimeDelta(zookeeperSessionUptime()) AS uptime",
			Optional: true,
		}
	},
}
