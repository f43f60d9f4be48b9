package charts

import (
	"fmt"
	"time"
)

// Interval is a ClickHouse date-truncation function used as a time bucket.
type Interval string

const (
	ToStartOfMinute         Interval = "toStartOfMinute"
	ToStartOfFiveMinutes    Interval = "toStartOfFiveMinutes"
	ToStartOfTenMinutes     Interval = "toStartOfTenMinutes"
	ToStartOfFifteenMinutes Interval = "toStartOfFifteenMinutes"
	ToStartOfHour           Interval = "toStartOfHour"
	ToStartOfDay            Interval = "toStartOfDay"
	ToStartOfWeek           Interval = "toStartOfWeek"
	ToStartOfMonth          Interval = "toStartOfMonth"
	ToStartOfYear           Interval = "toStartOfYear"
)

type intervalSpec struct {
	fillStep string
	// minutes is the bucket width for sub-day intervals, 0 otherwise.
	minutes int
}

var intervalSpecs = map[Interval]intervalSpec{
	ToStartOfMinute:         {fillStep: "toIntervalMinute(1)", minutes: 1},
	ToStartOfFiveMinutes:    {fillStep: "toIntervalMinute(5)", minutes: 5},
	ToStartOfTenMinutes:     {fillStep: "toIntervalMinute(10)", minutes: 10},
	ToStartOfFifteenMinutes: {fillStep: "toIntervalMinute(15)", minutes: 15},
	ToStartOfHour:           {fillStep: "toIntervalHour(1)", minutes: 60},
	ToStartOfDay:            {fillStep: "toIntervalDay(1)"},
	ToStartOfWeek:           {fillStep: "toIntervalWeek(1)"},
	ToStartOfMonth:          {fillStep: "toIntervalMonth(1)"},
	ToStartOfYear:           {fillStep: "toIntervalYear(1)"},
}

// Intervals lists every supported interval from finest to coarsest.
func Intervals() []Interval {
	return []Interval{
		ToStartOfMinute,
		ToStartOfFiveMinutes,
		ToStartOfTenMinutes,
		ToStartOfFifteenMinutes,
		ToStartOfHour,
		ToStartOfDay,
		ToStartOfWeek,
		ToStartOfMonth,
		ToStartOfYear,
	}
}

// IntervalNames returns Intervals as strings, for enum validation.
func IntervalNames() []string {
	all := Intervals()
	names := make([]string, len(all))
	for i, iv := range all {
		names[i] = string(iv)
	}
	return names
}

// ParseInterval validates untrusted input. The normalizer functions below
// panic on unknown intervals, so request values must go through here first.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if !iv.Valid() {
		return "", fmt.Errorf("invalid interval %q", s)
	}
	return iv, nil
}

// Valid reports whether i is a known interval.
func (i Interval) Valid() bool {
	_, ok := intervalSpecs[i]
	return ok
}

// IsSubDay reports whether buckets are shorter than a day.
func (i Interval) IsSubDay() bool {
	return mustSpec(i).minutes > 0
}

func mustSpec(i Interval) intervalSpec {
	spec, ok := intervalSpecs[i]
	if !ok {
		panic(fmt.Sprintf("charts: invalid interval %q", string(i)))
	}
	return spec
}

// ApplyInterval wraps column in the bucket function, aliased to alias or to
// the column name. Day-or-coarser buckets are cast to Date so they line up
// with the today() fill bound.
func ApplyInterval(i Interval, column, alias string) string {
	if alias == "" {
		alias = column
	}
	if i.IsSubDay() {
		return fmt.Sprintf("%s(%s) AS %s", i, column, alias)
	}
	return fmt.Sprintf("toDate(%s(%s)) AS %s", i, column, alias)
}

// FillStep returns the WITH FILL step that advances exactly one bucket.
func FillStep(i Interval) string {
	return mustSpec(i).fillStep
}

// NowOrToday returns the WITH FILL upper bound. Sub-day buckets are bounded
// by now() so the running bucket is not filled into the future; day or
// coarser buckets are bounded by today() so the bound is itself a bucket
// boundary.
func NowOrToday(i Interval) string {
	if i.IsSubDay() {
		return "now()"
	}
	return "today()"
}

// WithFill renders the ORDER BY ... WITH FILL clause for a bucketed column.
func WithFill(i Interval, column string) string {
	return fmt.Sprintf("ORDER BY %s\nWITH FILL TO %s STEP %s", column, NowOrToday(i), FillStep(i))
}

// Truncate applies the bucket function to t in t's location, mirroring the
// ClickHouse function. Weeks start on Sunday like toStartOfWeek mode 0.
func (i Interval) Truncate(t time.Time) time.Time {
	spec := mustSpec(i)
	y, m, d := t.Date()
	loc := t.Location()

	if spec.minutes > 0 {
		minuteOfDay := t.Hour()*60 + t.Minute()
		minuteOfDay -= minuteOfDay % spec.minutes
		return time.Date(y, m, d, minuteOfDay/60, minuteOfDay%60, 0, 0, loc)
	}

	switch i {
	case ToStartOfDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case ToStartOfWeek:
		return time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, loc)
	case ToStartOfMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	}
}
