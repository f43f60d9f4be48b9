package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ParamKind identifies which member of the ParamValue union is set.
type ParamKind uint8

const (
	// ParamUndefined is the zero value. Undefined entries are dropped by
	// SanitizeQueryParams.
	ParamUndefined ParamKind = iota
	ParamNull
	ParamString
	ParamNumber
	ParamBool
	ParamList
	ParamObject
)

// ParamValue is a loosely-typed request or default parameter.
//
// Values come from query strings, JSON bodies and static catalog defaults.
// They are converted to the flat string form used for binding only through
// SanitizeQueryParams.
type ParamValue struct {
	kind ParamKind
	str  string
	num  float64
	b    bool
	list []ParamValue
	obj  map[string]ParamValue
}

// Params is a bag of named parameter values.
type Params map[string]ParamValue

// StringParam wraps a string.
func StringParam(s string) ParamValue { return ParamValue{kind: ParamString, str: s} }

// NumberParam wraps a number.
func NumberParam(f float64) ParamValue { return ParamValue{kind: ParamNumber, num: f} }

// IntParam wraps an integer as a number.
func IntParam(i int) ParamValue { return ParamValue{kind: ParamNumber, num: float64(i)} }

// BoolParam wraps a boolean.
func BoolParam(b bool) ParamValue { return ParamValue{kind: ParamBool, b: b} }

// NullParam is an explicit null.
func NullParam() ParamValue { return ParamValue{kind: ParamNull} }

// UndefinedParam is an absent value.
func UndefinedParam() ParamValue { return ParamValue{} }

// ListParam wraps a list of values.
func ListParam(vs ...ParamValue) ParamValue { return ParamValue{kind: ParamList, list: vs} }

// ObjectParam wraps a nested object.
func ObjectParam(m map[string]ParamValue) ParamValue { return ParamValue{kind: ParamObject, obj: m} }

// ParamFromAny converts a decoded JSON value (or a plain Go scalar) into a
// ParamValue. Unsupported types become their fmt representation.
func ParamFromAny(v any) ParamValue {
	switch t := v.(type) {
	case nil:
		return NullParam()
	case ParamValue:
		return t
	case string:
		return StringParam(t)
	case bool:
		return BoolParam(t)
	case float64:
		return NumberParam(t)
	case float32:
		return NumberParam(float64(t))
	case int:
		return IntParam(t)
	case int64:
		return NumberParam(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return NumberParam(f)
		}
		return StringParam(t.String())
	case []any:
		list := make([]ParamValue, len(t))
		for i, item := range t {
			list[i] = ParamFromAny(item)
		}
		return ListParam(list...)
	case []string:
		list := make([]ParamValue, len(t))
		for i, item := range t {
			list[i] = StringParam(item)
		}
		return ListParam(list...)
	case map[string]any:
		obj := make(map[string]ParamValue, len(t))
		for k, item := range t {
			obj[k] = ParamFromAny(item)
		}
		return ObjectParam(obj)
	default:
		return StringParam(fmt.Sprint(t))
	}
}

// Kind returns the union member that is set.
func (p ParamValue) Kind() ParamKind {
	return p.kind
}

// IsUndefined reports whether the value is absent.
func (p ParamValue) IsUndefined() bool {
	return p.kind == ParamUndefined
}

// String returns the binding form of the value: primitives stringify, null
// becomes "", lists join their elements with commas and objects become their
// JSON text.
func (p ParamValue) String() string {
	switch p.kind {
	case ParamString:
		return p.str
	case ParamNumber:
		return formatNumber(p.num)
	case ParamBool:
		return strconv.FormatBool(p.b)
	case ParamList:
		parts := make([]string, len(p.list))
		for i, item := range p.list {
			parts[i] = item.String()
		}
		return strings.Join(parts, ",")
	case ParamObject:
		data, err := json.Marshal(p)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// MarshalJSON encodes the value. Object keys are sorted and undefined object
// members are omitted.
func (p ParamValue) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case ParamString:
		return json.Marshal(p.str)
	case ParamNumber:
		if math.IsNaN(p.num) || math.IsInf(p.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(p.num)
	case ParamBool:
		return json.Marshal(p.b)
	case ParamList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range p.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			data, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case ParamObject:
		keys := make([]string, 0, len(p.obj))
		for k, v := range p.obj {
			if v.IsUndefined() {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			data, err := p.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON value.
func (p *ParamValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*p = ParamFromAny(normalizeNumbers(raw))
	return nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = normalizeNumbers(t[i])
		}
	case map[string]any:
		for k := range t {
			t[k] = normalizeNumbers(t[k])
		}
	}
	return v
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	case math.Abs(f) >= 1e21:
		return strconv.FormatFloat(f, 'e', -1, 64)
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

// SanitizeQueryParams flattens a parameter bag into the string map handed
// to the driver for binding. Undefined entries are dropped, everything else
// goes through ParamValue.String.
func SanitizeQueryParams(raw Params) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v.IsUndefined() {
			continue
		}
		out[k] = v.String()
	}
	return out
}

// Merge returns a new bag with defaults overlaid by overrides. Undefined
// overrides do not mask a default.
func Merge(defaults, overrides Params) Params {
	out := make(Params, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		if v.IsUndefined() {
			continue
		}
		out[k] = v
	}
	return out
}
