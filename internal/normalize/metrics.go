package normalize

import "github.com/mentorscore/session-api/internal/model"

// DefaultConfidenceInterval applies when no usable interval is supplied.
var DefaultConfidenceInterval = [2]int{0, 100}

func Metrics(v any) []model.Metric {
	out := []model.Metric{}
	for _, item := range asList(v) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, metric(m))
	}
	return out
}

func metric(m map[string]any) model.Metric {
	helped, _ := fieldWhatHelped.lookup(m)
	hurt, _ := fieldWhatHurt.lookup(m)
	ci, _ := fieldConfidenceInterval.lookup(m)
	return model.Metric{
		Name:               stringField(m, fieldMetricName),
		Score:              Clamp(intField(m, fieldScore), 0, 100),
		ConfidenceInterval: ConfidenceInterval(ci),
		WhatHelped:         ToStringSlice(helped),
		WhatHurt:           ToStringSlice(hurt),
	}
}

// ConfidenceInterval takes the first two numeric elements of v, clamps them
// into [0, 100] and orders them. Anything else yields [0, 100].
func ConfidenceInterval(v any) [2]int {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case [2]int:
		items = []any{t[0], t[1]}
	case []int:
		for _, n := range t {
			items = append(items, n)
		}
	}
	if len(items) < 2 {
		return DefaultConfidenceInterval
	}
	lo, okLo := ToInt(items[0])
	hi, okHi := ToInt(items[1])
	if !okLo || !okHi {
		return DefaultConfidenceInterval
	}
	lo, hi = Clamp(lo, 0, 100), Clamp(hi, 0, 100)
	if lo > hi {
		lo, hi = hi, lo
	}
	return [2]int{lo, hi}
}

// BandInterval returns [score-band, score+band] clamped into [0, 100].
func BandInterval(score, band int) [2]int {
	return [2]int{Clamp(score-band, 0, 100), Clamp(score+band, 0, 100)}
}
