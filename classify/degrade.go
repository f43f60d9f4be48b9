package classify

import (
	"strings"

	"github.com/orian/clickguard/models"
)

// optionalTables only exist when the matching server feature is configured.
var optionalTables = func() map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range []string{
		"system.backup_log",
		"system.backups",
		"system.error_log",
		"system.zookeeper",
		"system.zookeeper_connection",
		"system.zookeeper_log",
		"system.monitoring_log",
		"system.crash_log",
		"system.text_log",
		"system.part_log",
		"system.processors_profile_log",
		"system.opentelemetry_span_log",
		"system.session_log",
		"system.query_views_log",
		"system.asynchronous_insert_log",
		"system.filesystem_cache_log",
		"system.blob_storage_log",
		"system.transactions_info_log",
		"system.s3queue_log",
	} {
		set[t] = struct{}{}
	}
	return set
}()

var zooKeeperPhrases = []string{
	"zookeeper",
	"clickhouse keeper",
	"coordination::exception",
	"keeper session",
}

// IsOptionalTable reports whether table, written as database.table, is in
// the known-optional set. The match is case-insensitive.
func IsOptionalTable(table string) bool {
	_, ok := optionalTables[strings.ToLower(strings.TrimSpace(table))]
	return ok
}

// OptionalTables returns the known-optional tables in no particular order.
func OptionalTables() []string {
	out := make([]string, 0, len(optionalTables))
	for t := range optionalTables {
		out = append(out, t)
	}
	return out
}

// ReferencesOptionalTable reports whether sql mentions any known-optional
// table.
func ReferencesOptionalTable(sql string) bool {
	lower := strings.ToLower(sql)
	for t := range optionalTables {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// IsZooKeeperUnavailable reports whether message says the coordination
// service is not configured or not reachable.
func IsZooKeeperUnavailable(message string) bool {
	return containsAny(strings.ToLower(message), zooKeeperPhrases...)
}

// ShouldDegrade decides whether a failed execution is reported as "no
// data". It applies to optional queries and to SQL touching an optional
// table, and only for missing tables, missing privileges and an
// unavailable ZooKeeper.
func ShouldDegrade(optional bool, sql string, err error) bool {
	if err == nil {
		return false
	}
	if !optional && !ReferencesOptionalTable(sql) {
		return false
	}
	switch ClassifyError(err) {
	case models.TableNotFound, models.PermissionError:
		return true
	}
	return IsZooKeeperUnavailable(err.Error())
}
