package enrich

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/normalize"
)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestMetricsFromAnalysis(t *testing.T) {
	t.Run("maps known keys in order with overall last", func(t *testing.T) {
		analysis := Decode(json.RawMessage(`{
			"overall_score": 71,
			"pacing": {"score": 62, "what_helped": ["pauses"]},
			"clarity": 98,
			"unknown": 40,
			"eye_contact": {"score": 140}
		}`))

		metrics := MetricsFromAnalysis(analysis)

		require.Len(t, metrics, 4)
		assert.Equal(t, model.MetricClarity, metrics[0].Name)
		assert.Equal(t, [2]int{93, 100}, metrics[0].ConfidenceInterval)
		assert.Equal(t, model.MetricPacing, metrics[1].Name)
		assert.Equal(t, []string{"pauses"}, metrics[1].WhatHelped)
		assert.Equal(t, []string{}, metrics[1].WhatHurt)
		assert.Equal(t, model.MetricEyeContact, metrics[2].Name)
		assert.Equal(t, 100, metrics[2].Score)
		assert.Equal(t, model.Metric{
			Name:               model.MetricOverall,
			Score:              71,
			ConfidenceInterval: [2]int{66, 76},
			WhatHelped:         []string{},
			WhatHurt:           []string{},
		}, metrics[3])
	})

	t.Run("nested scores object", func(t *testing.T) {
		metrics := MetricsFromAnalysis(map[string]any{"scores": map[string]any{"engagement": 3}})
		require.Len(t, metrics, 1)
		assert.Equal(t, [2]int{0, 8}, metrics[0].ConfidenceInterval)
	})

	t.Run("non-numeric scores are skipped", func(t *testing.T) {
		assert.Empty(t, MetricsFromAnalysis(map[string]any{"clarity": "high", "pacing": map[string]any{}}))
		assert.Equal(t, []model.Metric{}, MetricsFromAnalysis(nil))
	})
}

func TestTranscriptFromDiarization(t *testing.T) {
	diarization := Decode(json.RawMessage(`{"sentences": [
		{"start": 0, "end": 4.5, "text": "Hello everyone"},
		{"start": "5", "end": 9, "transcript": "today we cover graphs"},
		"noise"
	]}`))

	segments := TranscriptFromDiarization(diarization)

	require.Len(t, segments, 2)
	assert.Equal(t, model.TranscriptSegment{StartTime: 0, EndTime: 4, Text: "Hello everyone", KeyPhrases: []string{}}, segments[0])
	assert.Equal(t, 5, segments[1].StartTime)
	assert.Equal(t, "today we cover graphs", segments[1].Text)

	assert.Len(t, TranscriptFromDiarization([]any{map[string]any{"start": 1, "end": 2, "text": "x"}}), 1)
	assert.Empty(t, TranscriptFromDiarization(nil))
}

func TestWeakMomentsFromDiarization(t *testing.T) {
	diarization := map[string]any{
		"needs_improvement": []any{
			map[string]any{"start": 75, "improvement": map[string]any{"suggestion": "slow down"}},
			map[string]any{"start": 3700, "reason": "unclear example"},
			map[string]any{"time": 10, "text": strings.Repeat("a", 300)},
			"vague answer",
			42,
		},
	}

	moments := WeakMomentsFromDiarization(diarization)

	require.Len(t, moments, 4)
	assert.Equal(t, model.WeakMoment{Timestamp: "00:01:15", Message: "slow down"}, moments[0])
	assert.Equal(t, model.WeakMoment{Timestamp: "01:01:40", Message: "unclear example"}, moments[1])
	assert.Len(t, moments[2].Message, 200)
	assert.Equal(t, model.WeakMoment{Timestamp: "00:00:00", Message: "vague answer"}, moments[3])

	camel := WeakMomentsFromDiarization(map[string]any{"needsImprovement": []any{map[string]any{"improvement": "pause more"}}})
	assert.Equal(t, []model.WeakMoment{{Timestamp: "00:00:00", Message: "pause more"}}, camel)
}

func TestApply(t *testing.T) {
	rec := normalize.Normalize(map[string]any{
		"sessionId":   "s1",
		"analysis":    map[string]any{"clarity": 80, "total_duration": 900},
		"diarization": map[string]any{"sentences": []any{map[string]any{"start": 0, "end": 3, "text": "hi"}}},
		"weakMoments": []any{map[string]any{"timestamp": "00:00:05", "message": "kept"}},
	})

	out := Apply(rec)

	assert.Equal(t, 900, out.Duration)
	require.Len(t, out.Metrics, 1)
	assert.Len(t, out.Timeline.Transcript, 1)
	assert.Equal(t, []model.WeakMoment{{Timestamp: "00:00:05", Message: "kept"}}, out.WeakMoments)

	t.Run("populated fields are untouched", func(t *testing.T) {
		populated := out
		populated.Metrics = []model.Metric{{Name: "Custom", Score: 1, WhatHelped: []string{}, WhatHurt: []string{}}}
		populated.Duration = 30
		again := Apply(populated)
		assert.Equal(t, populated.Metrics, again.Metrics)
		assert.Equal(t, 30, again.Duration)
	})
}

func TestHints(t *testing.T) {
	t.Run("defaults without payloads", func(t *testing.T) {
		h := Hints(normalize.Normalize(map[string]any{"sessionId": "s1"}))
		assert.Equal(t, "Session s1", h.SessionName)
		assert.Equal(t, 1800, h.Duration)
		assert.Nil(t, h.OverallScore)
		assert.Empty(t, h.AnalysisKeys)
		assert.Empty(t, h.TranscriptExcerpt)
	})

	t.Run("uses payloads", func(t *testing.T) {
		rec := model.SessionRecord{
			SessionName: "Graphs",
			Timeline:    model.EmptyTimeline(),
			Analysis:    raw(t, map[string]any{"overallScore": 66, "duration": 1200, "clarity": 70}),
			Diarization: raw(t, map[string]any{"sentences": []any{
				map[string]any{"text": strings.Repeat("long sentence ", 100)},
				map[string]any{"text": "second"},
			}}),
		}

		h := Hints(rec)

		assert.Equal(t, 1200, h.Duration)
		require.NotNil(t, h.OverallScore)
		assert.Equal(t, 66, *h.OverallScore)
		assert.Equal(t, []string{"clarity", "duration", "overallScore"}, h.AnalysisKeys)
		assert.Equal(t, []string{"sentences"}, h.DiarizationKeys)
		assert.Equal(t, 2, h.SentenceCount)
		assert.Len(t, []rune(h.TranscriptExcerpt), 800)
	})

	t.Run("overall score from metrics", func(t *testing.T) {
		rec := model.SessionRecord{
			Duration: 60,
			Timeline: model.EmptyTimeline(),
			Metrics:  []model.Metric{{Name: model.MetricOverall, Score: 81}},
		}
		h := Hints(rec)
		require.NotNil(t, h.OverallScore)
		assert.Equal(t, 81, *h.OverallScore)
		assert.Equal(t, 60, h.Duration)
	})
}

func TestTranscriptText(t *testing.T) {
	rec := model.SessionRecord{
		Timeline: model.Timeline{Transcript: []model.TranscriptSegment{{Text: " a "}, {Text: "b"}}},
	}
	assert.Equal(t, "a b", TranscriptText(rec))

	rec.Analysis = json.RawMessage(`{"transcript": "full text"}`)
	assert.Equal(t, "full text", TranscriptText(rec))

	assert.Nil(t, Decode(json.RawMessage(`{not json`)))
}
