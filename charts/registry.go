// Package charts builds the parameterized, time-bucketed SQL behind every
// dashboard chart.
//
// Builders are pure functions of their Params: no I/O and no shared state,
// so a Registry can be used from any number of requests concurrently.
package charts

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/orian/clickguard/models"
)

// ErrUnknownChart is returned by Registry.Build for unregistered keys.
var ErrUnknownChart = errors.New("unknown chart")

// Params are the runtime parameters of a chart request. Every field is
// optional; builders apply their own defaults.
type Params struct {
	Interval  Interval
	LastHours int
	Params    models.Params
}

// SubQuery is one statement of a multi-statement chart.
type SubQuery struct {
	// Key names the value in the composite result.
	Key string `json:"key"`

	Query string `json:"query"`

	Optional bool `json:"optional,omitempty"`
}

// Result is what a Builder produces: either a single Query or, for panels
// made of independent aggregates, a list of Queries.
type Result struct {
	Query string `json:"query,omitempty"`

	// QueryParams are bound to {name:Type} placeholders in Query.
	QueryParams models.Params `json:"queryParams,omitempty"`

	// Optional marks a query whose missing-table failure means "no data".
	Optional bool `json:"optional,omitempty"`

	// TableCheck lists the tables the query depends on.
	TableCheck []string `json:"tableCheck,omitempty"`

	Queries []SubQuery `json:"queries,omitempty"`
}

// IsMulti reports whether the result carries several statements.
func (r Result) IsMulti() bool {
	return len(r.Queries) > 0
}

// Builder turns chart parameters into SQL.
type Builder func(Params) Result

// Registry is a read-only map from chart key to Builder.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry creates a registry from the given builders. The map is copied.
func NewRegistry(builders map[string]Builder) *Registry {
	copied := make(map[string]Builder, len(builders))
	for k, b := range builders {
		copied[k] = b
	}
	return &Registry{builders: copied}
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	all := map[string]Builder{}
	for _, group := range []map[string]Builder{
		queryCharts,
		systemCharts,
		mergeCharts,
		replicationCharts,
		zookeeperCharts,
		summaryCharts,
	} {
		for k, b := range group {
			all[k] = b
		}
	}
	return NewRegistry(all)
})

// Default returns the registry with every built-in chart.
func Default() *Registry {
	return defaultRegistry()
}

// Build runs the builder registered under key.
func (r *Registry) Build(key string, p Params) (Result, error) {
	b, ok := r.builders[key]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownChart, key)
	}
	return b(p), nil
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.builders[key]
	return ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.builders))
	for k := range r.builders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// withDefaults fills in the interval and look-back window.
func (p Params) withDefaults(interval Interval, lastHours int) (Interval, int) {
	iv := p.Interval
	if iv == "" {
		iv = interval
	}
	hours := p.LastHours
	if hours <= 0 {
		hours = lastHours
	}
	return iv, hours
}

// param returns a request parameter or a fallback.
func (p Params) param(name string, fallback models.ParamValue) models.ParamValue {
	if v, ok := p.Params[name]; ok && !v.IsUndefined() {
		return v
	}
	return fallback
}
