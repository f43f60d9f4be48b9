// Package validation checks inbound requests before anything reaches a
// ClickHouse server.
//
// Every check is a pure function returning nil when the input is valid or a
// *models.APIError of type ValidationError. Checks are fail-fast: the first
// violation is reported, not an aggregate.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/orian/clickguard/models"
)

// Output formats accepted by the query endpoints.
const (
	FormatJSONEachRow = "JSONEachRow"
	FormatJSON        = "JSON"
	FormatCSV         = "CSV"
	FormatTSV         = "TSV"
)

// Formats lists the accepted output formats. JSONEachRow is the default.
var Formats = []string{FormatJSONEachRow, FormatJSON, FormatCSV, FormatTSV}

const (
	msgDangerousSQL = "potentially dangerous SQL detected"
	msgEmptySQL     = "SQL query cannot be empty"
	msgSelectOnly   = "Only SELECT and WITH queries are allowed"
)

type sqlPattern struct {
	name string
	re   *regexp.Regexp
	// same, when set, reports a match only if a submatch compares two
	// equal operands. RE2 has no backreferences.
	same func(m []string) bool
}

func (p sqlPattern) matches(sql string) bool {
	if p.same == nil {
		return p.re.MatchString(sql)
	}
	for _, m := range p.re.FindAllStringSubmatch(sql, -1) {
		if p.same(m) {
			return true
		}
	}
	return false
}

func sameNumber(m []string) bool {
	a, errA := strconv.ParseFloat(m[1], 64)
	b, errB := strconv.ParseFloat(m[2], 64)
	return errA == nil && errB == nil && a == b
}

func sameQuoted(m []string) bool { return m[1] == m[2] }

// dangerousPatterns is evaluated in order and stops at the first match.
// The order decides which pattern name is reported.
var dangerousPatterns = []sqlPattern{
	{"chained_statement", regexp.MustCompile(`(?i);\s*(DROP|DELETE|INSERT|UPDATE|ALTER|CREATE|TRUNCATE)`), nil},
	{"mutating_keyword", regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|CREATE|TRUNCATE)\b`), nil},
	{"exec_keyword", regexp.MustCompile(`(?i)\b(EXEC|EXECUTE|SCRIPT)\b`), nil},
	{"line_comment", regexp.MustCompile(`--`), nil},
	{"block_comment", regexp.MustCompile(`/\*`), nil},
	{"tautology", regexp.MustCompile(`(?i)\bOR\s+(\d+(?:\.\d+)?)\s*=\s*(\d+(?:\.\d+)?)\b`), sameNumber},
	{"quoted_tautology", regexp.MustCompile(`(?i)\bOR\s+['"]([^'"]*)['"]\s*=\s*['"]([^'"]*)['"]`), sameQuoted},
	{"union_select", regexp.MustCompile(`(?i)\bUNION\s+((ALL|DISTINCT)\s+)?SELECT\b`), nil},
}

// ValidateSQLQuery rejects empty SQL, SQL matching a dangerous shape and
// anything that is not a SELECT or WITH statement.
//
// The denylist is deliberately coarse: an identifier such as is_deleted is
// fine, but a column literally named delete is rejected.
func ValidateSQLQuery(sql string) *models.APIError {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return models.NewValidationError(msgEmptySQL, nil)
	}

	for _, p := range dangerousPatterns {
		if p.matches(sql) {
			return models.NewValidationError(msgDangerousSQL, map[string]any{"pattern": p.name})
		}
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return models.NewValidationError(msgSelectOnly, nil)
	}
	return nil
}

// ValidateHostID checks a host identifier taken from a query string or a
// JSON body and returns it as an int.
func ValidateHostID(v any) (int, *models.APIError) {
	invalid := func() (int, *models.APIError) {
		return 0, models.NewValidationError("Invalid hostId: must be a non-negative integer",
			map[string]any{"hostId": v})
	}

	switch id := v.(type) {
	case nil:
		return 0, models.NewValidationError("Missing required parameter: hostId", nil)
	case string:
		s := strings.TrimSpace(id)
		if s == "" {
			return 0, models.NewValidationError("Missing required parameter: hostId", nil)
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return invalid()
		}
		return n, nil
	case int:
		if id < 0 {
			return invalid()
		}
		return id, nil
	case int64:
		if id < 0 || id > math.MaxInt32 {
			return invalid()
		}
		return int(id), nil
	case float64:
		if id < 0 || id != math.Trunc(id) || id > math.MaxInt32 {
			return invalid()
		}
		return int(id), nil
	case json.Number:
		n, err := strconv.Atoi(id.String())
		if err != nil || n < 0 {
			return invalid()
		}
		return n, nil
	default:
		return invalid()
	}
}

// ValidateFormat checks the optional output format. A missing or empty
// format is valid and means JSONEachRow.
func ValidateFormat(v any) *models.APIError {
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return models.NewValidationError("Invalid format: must be a string", map[string]any{"format": v})
	}
	if s == "" {
		return nil
	}
	if !slices.Contains(Formats, s) {
		return models.NewValidationError(
			fmt.Sprintf("Invalid format: must be one of %s", strings.Join(Formats, ", ")),
			map[string]any{"format": s, "allowed": Formats})
	}
	return nil
}

// ValidateEnumValue checks an optional value against a closed set. The
// comparison is case-sensitive.
func ValidateEnumValue(value string, allowed []string, field string) *models.APIError {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return models.NewValidationError(
		fmt.Sprintf("Invalid %s: must be one of %s", field, strings.Join(allowed, ", ")),
		map[string]any{field: value, "allowed": allowed})
}

// ValidateRequiredString checks that v is a string that is non-empty after
// trimming.
func ValidateRequiredString(v any, field string) *models.APIError {
	if v == nil {
		return missing(field)
	}
	s, ok := v.(string)
	if !ok {
		return models.NewValidationError(fmt.Sprintf("Invalid %s: must be a string", field), map[string]any{field: v})
	}
	if strings.TrimSpace(s) == "" {
		return missing(field)
	}
	return nil
}

// ValidateSearchParams checks that every required query-string parameter
// is present and non-blank, in the given order.
func ValidateSearchParams(values url.Values, required []string) *models.APIError {
	for _, field := range required {
		if strings.TrimSpace(values.Get(field)) == "" {
			return missing(field)
		}
	}
	return nil
}

// ValidateQueryRequest validates an ad-hoc query body. It is the one check
// that returns a plain error; the error is always a *models.APIError.
func ValidateQueryRequest(req *models.QueryRequest) error {
	if req == nil {
		return models.NewValidationError("Request body is required", nil)
	}
	if _, apiErr := ValidateHostID(req.HostID); apiErr != nil {
		return apiErr
	}
	if apiErr := ValidateRequiredString(req.SQL, "sql"); apiErr != nil {
		return apiErr
	}
	if apiErr := ValidateSQLQuery(req.SQL); apiErr != nil {
		return apiErr
	}
	if apiErr := ValidateFormat(req.Format); apiErr != nil {
		return apiErr
	}
	return nil
}

func missing(field string) *models.APIError {
	return models.NewValidationError(fmt.Sprintf("Missing required parameter: %s", field), nil)
}
