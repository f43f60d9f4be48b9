// Package classify maps raw execution errors onto the typed error taxonomy
// and decides when a failure should be reported as "no data" instead.
package classify

import (
	"context"
	"errors"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/orian/clickguard/models"
)

type rule struct {
	errType models.ErrorType
	match   func(msg string) bool
}

func containsAny(msg string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// rules are checked in order. "unexpected token" is caught by the
// validation rule before the syntax rule sees it; callers rely on that.
var rules = []rule{
	{models.TableNotFound, func(msg string) bool {
		return strings.Contains(msg, "table") &&
			containsAny(msg, "not found", "doesn't exist", "missing", "unknown table")
	}},
	{models.PermissionError, func(msg string) bool {
		return containsAny(msg, "permission", "access denied", "unauthorized", "forbidden", "not allowed", "not enough privileges")
	}},
	{models.NetworkError, func(msg string) bool {
		return containsAny(msg, "network", "connection", "timeout", "econnrefused", "enotfound", "econnreset", "etimedout")
	}},
	{models.ValidationError, func(msg string) bool {
		return containsAny(msg, "invalid", "missing required", "required parameter", "must be", "expected", "validation", "unexpected")
	}},
	{models.QueryError, func(msg string) bool {
		return containsAny(msg, "syntax error", "parse error", "unexpected token")
	}},
}

// Classify returns the error type for a raw error message. Unmatched
// messages, including the empty one, are QueryError.
func Classify(message string) models.ErrorType {
	msg := strings.ToLower(message)
	for _, r := range rules {
		if r.match(msg) {
			return r.errType
		}
	}
	return models.QueryError
}

// ClassifyError classifies err. An *models.APIError keeps its type and an
// expired context is a NetworkError; anything else is classified by its
// message.
func ClassifyError(err error) models.ErrorType {
	if err == nil {
		return models.QueryError
	}
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NetworkError
	}
	return Classify(err.Error())
}

// ToAPIError converts an execution error into the API error value. The
// ClickHouse exception code, when there is one, is kept in the details.
func ToAPIError(err error) *models.APIError {
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	details := map[string]any{}
	var ex *clickhouse.Exception
	if errors.As(err, &ex) {
		details["code"] = ex.Code
		details["exception"] = ex.Name
	}
	if IsTimeout(err) {
		details["kind"] = models.KindTimeout
	}
	if len(details) == 0 {
		details = nil
	}
	return models.NewAPIError(ClassifyError(err), err.Error(), details)
}

// IsTimeout reports whether err is a context deadline, which the HTTP
// layer reports as 408 instead of the NetworkError status.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
