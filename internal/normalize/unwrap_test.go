package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnwrap(t *testing.T) {
	t.Run("boxed integers", func(t *testing.T) {
		assert.Equal(t, int64(42), Unwrap(map[string]any{"$numberInt": "42"}))
		assert.Equal(t, int64(1700000000000), Unwrap(map[string]any{"$numberLong": "1700000000000"}))
		assert.Equal(t, int64(7), Unwrap(map[string]any{"$numberLong": "7.9"}))
		assert.Equal(t, int64(12), Unwrap(map[string]any{"$numberInt": json.Number("12")}))
	})

	t.Run("boxed doubles", func(t *testing.T) {
		assert.Equal(t, 3.5, Unwrap(map[string]any{"$numberDouble": "3.5"}))
		assert.Nil(t, Unwrap(map[string]any{"$numberDouble": "NaN"}))
		assert.Nil(t, Unwrap(map[string]any{"$numberDouble": "Infinity"}))
	})

	t.Run("dates", func(t *testing.T) {
		want := time.UnixMilli(1700000000000).UTC()
		assert.Equal(t, want, Unwrap(map[string]any{"$date": map[string]any{"$numberLong": "1700000000000"}}))
		assert.Equal(t, want, Unwrap(map[string]any{"$date": float64(1700000000000)}))
		assert.Equal(t, want, Unwrap(map[string]any{"$date": "2023-11-14T22:13:20Z"}))
		assert.Nil(t, Unwrap(map[string]any{"$date": "yesterday"}))
	})

	t.Run("object ids", func(t *testing.T) {
		assert.Equal(t, "65a1f0c2e4b0a1b2c3d4e5f6", Unwrap(map[string]any{"$oid": "65A1F0C2E4B0A1B2C3D4E5F6"}))
		assert.Equal(t, "not-an-oid", Unwrap(map[string]any{"$oid": "not-an-oid"}))
		assert.Nil(t, Unwrap(map[string]any{"$oid": 12}))
	})

	t.Run("malformed boxed values become nil", func(t *testing.T) {
		assert.Nil(t, Unwrap(map[string]any{"$numberInt": "abc"}))
		assert.Nil(t, Unwrap(map[string]any{"$numberLong": []any{1}}))
	})

	t.Run("recurses into mappings and sequences", func(t *testing.T) {
		in := map[string]any{
			"a": []any{map[string]any{"$numberInt": "1"}, "x"},
			"b": map[string]any{"c": map[string]any{"$oid": "65a1f0c2e4b0a1b2c3d4e5f6"}},
		}
		out := Unwrap(in)
		assert.Equal(t, map[string]any{
			"a": []any{int64(1), "x"},
			"b": map[string]any{"c": "65a1f0c2e4b0a1b2c3d4e5f6"},
		}, out)
		// input is untouched
		assert.Equal(t, map[string]any{"$numberInt": "1"}, in["a"].([]any)[0])
	})

	t.Run("multi-key maps are not envelopes", func(t *testing.T) {
		in := map[string]any{"$numberInt": "1", "other": "x"}
		assert.Equal(t, map[string]any{"$numberInt": "1", "other": "x"}, Unwrap(in))
	})
}
