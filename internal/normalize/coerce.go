package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// ToInt coerces numbers and numeric strings to an int, truncating fractions.
func ToInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int8:
		return int(t), true
	case int16:
		return int(t), true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case uint:
		return int(t), true
	case uint8:
		return int(t), true
	case uint16:
		return int(t), true
	case uint32:
		return int(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int(t), true
	case float32:
		return ToInt(float64(t))
	case float64:
		if !inIntRange(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		return ToInt(t.String())
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return ToInt(f)
		}
	}
	return 0, false
}

func ToFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		n, ok := ToInt(v)
		if !ok {
			return 0, false
		}
		f = float64(n)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToString stringifies scalars. Composite values yield "".
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case map[string]any, []any:
		return ""
	}
	if n, ok := ToInt(v); ok {
		return strconv.Itoa(n)
	}
	return ""
}

// ToStringSlice returns the scalar elements of a sequence as strings; any
// non-sequence yields an empty slice.
func ToStringSlice(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []string:
		out = append(out, t...)
	case []any:
		for _, item := range t {
			switch item.(type) {
			case nil, map[string]any, []any:
				continue
			}
			out = append(out, ToString(item))
		}
	}
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out
	}
	return nil
}

func intField(m map[string]any, f field) int {
	v, ok := f.lookup(m)
	if !ok {
		return 0
	}
	n, _ := ToInt(v)
	return n
}

func stringField(m map[string]any, f field) string {
	v, ok := f.lookup(m)
	if !ok {
		return ""
	}
	return ToString(v)
}

func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func clampFloat(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}
