package charts

// totalMemory is shared by every summary card. CGroupMemoryTotal sorts
// before OSMemoryTotal, so containerised servers report their limit.
const totalMemory = `SELECT metric,
       value AS total,
       formatReadableSize(total) AS readable_total
FROM system.asynchronous_metrics
WHERE metric = 'CGroupMemoryTotal'
   OR metric = 'OSMemoryTotal'
ORDER BY metric ASC
LIMIT 1`

var summaryCharts = map[string]Builder{
	"summary-used-by-running-queries": func(Params) Result {
		return Result{Queries: []SubQuery{
			{
				Key: "main",
				Query: `SELECT COUNT() AS query_count,
       SUM(memory_usage) AS memory_usage,
       formatReadableSize(memory_usage) AS readable_memory_usage
FROM system.processes`,
			},
			{Key: "totalMem", Query: totalMemory},
			{
				Key: "rowsReadWritten",
				Query: `SELECT SUM(read_rows) AS rows_read,
       SUM(written_rows) AS rows_written,
       formatReadableQuantity(rows_read) AS readable_rows_read,
       formatReadableQuantity(rows_written) AS readable_rows_written
FROM system.processes`,
			},
		}}
	},

	"summary-used-by-merges": func(Params) Result {
		return Result{Queries: []SubQuery{
			{
				Key: "used",
				Query: `SELECT SUM(memory_usage) AS memory_usage,
       formatReadableSize(memory_usage) AS readable_memory_usage
FROM system.merges`,
			},
			{Key: "totalMem", Query: totalMemory},
			{
				Key: "rowsReadWritten",
				Query: `SELECT SUM(rows_read) AS rows_read,
       SUM(rows_written) AS rows_written,
       formatReadableQuantity(rows_read) AS readable_rows_read,
       formatReadableQuantity(rows_written) AS readable_rows_written
FROM system.merges`,
			},
		}}
	},

	"summary-used-by-mutations": func(Params) Result {
		return Result{Queries: []SubQuery{
			{
				Key:   "running",
				Query: `SELECT COUNT() AS running_count FROM system.mutations WHERE is_done = 0`,
			},
			{
				Key:   "total",
				Query: `SELECT COUNT() AS total_count FROM system.mutations`,
			},
			{
				Key:   "failed",
				Query: `SELECT countIf(latest_fail_reason != '') AS failed_count FROM system.mutations WHERE is_done = 0`,
			},
		}}
	},
}
