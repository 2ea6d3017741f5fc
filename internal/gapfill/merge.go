package gapfill

import (
	"strings"

	"github.com/mentorscore/session-api/internal/model"
)

// MergeIfEmpty returns candidate when current is empty and candidate is not;
// otherwise current is returned untouched.
func MergeIfEmpty[T any](current, candidate []T) []T {
	if len(current) > 0 || len(candidate) == 0 {
		return current
	}
	return candidate
}

func MergeTimeline(current, candidate model.Timeline) model.Timeline {
	return model.Timeline{
		Audio:      MergeIfEmpty(current.Audio, candidate.Audio),
		Video:      MergeIfEmpty(current.Video, candidate.Video),
		Transcript: MergeIfEmpty(current.Transcript, candidate.Transcript),
		ScoreDips:  MergeIfEmpty(current.ScoreDips, candidate.ScoreDips),
		ScorePeaks: MergeIfEmpty(current.ScorePeaks, candidate.ScorePeaks),
	}
}

// MergeFeedback fills empty whatHelped/whatHurt lists of current from the
// candidate metric with the same name (case-insensitive). Scores, intervals
// and non-empty lists are never changed. The result is a new slice.
func MergeFeedback(current, candidate []model.Metric) []model.Metric {
	byName := make(map[string]model.Metric, len(candidate))
	for _, m := range candidate {
		key := metricKey(m.Name)
		if _, seen := byName[key]; !seen {
			byName[key] = m
		}
	}

	out := make([]model.Metric, len(current))
	for i, m := range current {
		if c, ok := byName[metricKey(m.Name)]; ok {
			m.WhatHelped = MergeIfEmpty(m.WhatHelped, c.WhatHelped)
			m.WhatHurt = MergeIfEmpty(m.WhatHurt, c.WhatHurt)
		}
		out[i] = m
	}
	return out
}

// MergeMetrics adopts candidate metrics when current has none, otherwise it
// only backfills feedback.
func MergeMetrics(current, candidate []model.Metric) []model.Metric {
	if len(current) == 0 {
		return MergeIfEmpty(current, candidate)
	}
	return MergeFeedback(current, candidate)
}

func metricKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
