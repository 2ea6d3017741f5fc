package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Extended-JSON envelope keys.
const (
	envelopeInt     = "$numberInt"
	envelopeLong    = "$numberLong"
	envelopeDouble  = "$numberDouble"
	envelopeDecimal = "$numberDecimal"
	envelopeDate    = "$date"
	envelopeOID     = "$oid"
)

// Unwrap replaces every extended-JSON scalar envelope in v with its native
// value and returns a deep copy. Integers become int64, doubles float64,
// dates UTC time.Time and object ids hex strings. A malformed envelope
// becomes nil.
func Unwrap(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			for k, inner := range t {
				if native, ok := unwrapEnvelope(k, inner); ok {
					return native
				}
			}
		}
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = Unwrap(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = Unwrap(inner)
		}
		return out
	default:
		return v
	}
}

func unwrapEnvelope(key string, inner any) (any, bool) {
	switch key {
	case envelopeInt, envelopeLong:
		if n, ok := parseInt64(inner); ok {
			return n, true
		}
		return nil, true
	case envelopeDouble, envelopeDecimal:
		if f, ok := parseFloat(inner); ok {
			return f, true
		}
		return nil, true
	case envelopeDate:
		if ts, ok := parseDate(inner); ok {
			return ts, true
		}
		return nil, true
	case envelopeOID:
		s, ok := inner.(string)
		if !ok {
			return nil, true
		}
		if oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(s)); err == nil {
			return oid.Hex(), true
		}
		return s, true
	}
	return nil, false
}

func parseInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && inIntRange(f) {
			return int64(f), true
		}
		return 0, false
	case json.Number:
		return parseInt64(t.String())
	case float64:
		if inIntRange(t) {
			return int64(t), true
		}
		return 0, false
	case int64:
		return t, true
	case int:
		return int64(t), true
	}
	return 0, false
}

func parseFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case int64:
		f = float64(t)
	case int:
		f = float64(t)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseDate accepts {"$numberLong": "<ms>"}, a bare epoch-millisecond number
// or an RFC 3339 string.
func parseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case map[string]any:
		if inner, ok := t[envelopeLong]; ok && len(t) == 1 {
			return parseDate(inner)
		}
		return time.Time{}, false
	case string:
		if ms, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t)); err == nil {
			return ts.UTC(), true
		}
		return time.Time{}, false
	default:
		ms, ok := parseInt64(v)
		if !ok {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}
}

func inIntRange(f float64) bool {
	return !math.IsNaN(f) && f >= math.MinInt64 && f < math.MaxInt64
}
