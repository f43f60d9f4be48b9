package charts

import (
	"fmt"
	"strings"
)

// timeSeries renders a bucketed series over event_time, gap-filled up to
// NowOrToday. conditions are ANDed after the look-back window.
func timeSeries(iv Interval, lastHours int, selects []string, from string, conditions ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s,\n       %s\n", ApplyInterval(iv, "event_time", ""), strings.Join(selects, ",\n       "))
	fmt.Fprintf(&b, "FROM %s\n", from)
	fmt.Fprintf(&b, "WHERE event_time >= (now() - INTERVAL %d HOUR)", lastHours)
	for _, c := range conditions {
		fmt.Fprintf(&b, "\n  AND %s", c)
	}
	b.WriteString("\nGROUP BY event_time\n")
	b.WriteString(WithFill(iv, "event_time"))
	return b.String()
}

const queryLog = "merge('system', '^query_log')"

var queryCharts = map[string]Builder{
	"query-count": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfDay, 24*14)
		return Result{Query: timeSeries(iv, hours,
			[]string{
				"COUNT() AS query_count",
				"countIf(query_kind = 'Select') AS select_count",
			},
			queryLog,
			"type = 'QueryFinish'",
		)}
	},

	"query-count-by-user": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfDay, 24*14)
		return Result{Query: fmt.Sprintf(`SELECT %s,
       user,
       COUNT() AS count
FROM %s
WHERE type = 'QueryFinish'
  AND event_time >= (now() - INTERVAL %d HOUR)
  AND user != ''
GROUP BY 1, 2
ORDER BY 1 ASC, 3 DESC`, ApplyInterval(iv, "event_time", ""), queryLog, hours)}
	},

	"query-duration": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfDay, 24*14)
		return Result{Query: timeSeries(iv, hours,
			[]string{
				"AVG(query_duration_ms) AS query_duration_ms",
				"ROUND(query_duration_ms / 1000, 2) AS query_duration_s",
			},
			queryLog,
			"type = 'QueryFinish'",
			"query_kind = 'Select'",
		)}
	},

	"query-memory": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfDay, 24*14)
		return Result{Query: timeSeries(iv, hours,
			[]string{
				"AVG(memory_usage) AS memory_usage",
				"formatReadableSize(memory_usage) AS readable_memory_usage",
			},
			queryLog,
			"type = 'QueryFinish'",
		)}
	},

	"query-type": func(p Params) Result {
		_, hours := p.withDefaults(ToStartOfDay, 24)
		return Result{Query: fmt.Sprintf(`SELECT type,
       COUNT() AS query_count
FROM %s
WHERE type = 'QueryFinish'
  AND event_time >= (now() - INTERVAL %d HOUR)
GROUP BY type
ORDER BY query_count DESC`, queryLog, hours)}
	},

	"failed-query-count": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfDay, 24*7)
		return Result{Query: timeSeries(iv, hours,
			[]string{"COUNT() AS query_count"},
			queryLog,
			"type IN ('ExceptionBeforeStart', 'ExceptionWhileProcessing')",
		)}
	},

	"failed-query-count-by-user": func(p Params) Result {
		iv, hours := p.withDefaults(ToStartOfDay, 24*14)
		return Result{Query: fmt.Sprintf(`SELECT %s,
       user,
       COUNT() AS count
FROM %s
WHERE type IN ('ExceptionBeforeStart', 'ExceptionWhileProcessing')
  AND event_time >= (now() - INTERVAL %d HOUR)
  AND user != ''
GROUP BY 1, 2
ORDER BY 1 ASC, 3 DESC`, ApplyInterval(iv, "event_time", ""), queryLog, hours)}
	},
}
