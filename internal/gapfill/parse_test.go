package gapfill

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorscore/session-api/internal/model"
)

func TestParseObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]any
	}{
		{"plain", `{"a":1}`, map[string]any{"a": json.Number("1")}},
		{"fenced", "```json\n{\"a\":1}\n```", map[string]any{"a": json.Number("1")}},
		{"bare fence", "```\n{\"a\":\"x\"}\n```", map[string]any{"a": "x"}},
		{"prose around", `Here you go: {"a":{"b":"}"}} and more {"c":2}`, map[string]any{"a": map[string]any{"b": "}"}}},
		{"escaped quote in string", `note {"a":"say \"{hi}\""} end`, map[string]any{"a": `say "{hi}"`}},
		{"trailing brace after object", `x {"a": {"b": 1}} y }`, map[string]any{"a": map[string]any{"b": json.Number("1")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObject(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unparseable", func(t *testing.T) {
		for _, in := range []string{"", "no json here", "[1,2,3]", "{broken", "```\nnot json\n```", "null", " null ", "```json\nnull\n```"} {
			_, err := ParseObject(in)
			assert.ErrorIs(t, err, ErrUnparseable, in)
		}
	})
}

func TestMergeIfEmpty(t *testing.T) {
	assert.Equal(t, []int{1}, MergeIfEmpty([]int{1}, []int{2, 3}))
	assert.Equal(t, []int{2, 3}, MergeIfEmpty([]int{}, []int{2, 3}))
	assert.Equal(t, []int{}, MergeIfEmpty([]int{}, []int{}))
	assert.Nil(t, MergeIfEmpty[int](nil, nil))
}

func TestMergeTimeline(t *testing.T) {
	current := model.EmptyTimeline()
	current.Video = []model.VideoSegment{{StartTime: 1, Type: model.VideoQualityPoor}}
	candidate := model.EmptyTimeline()
	candidate.Audio = []model.AudioSegment{{Pace: 120, Type: model.AudioPaceNormal}}
	candidate.Video = []model.VideoSegment{{StartTime: 9, Type: model.VideoQualityGood}}

	merged := MergeTimeline(current, candidate)

	assert.Equal(t, candidate.Audio, merged.Audio)
	assert.Equal(t, current.Video, merged.Video)
	assert.Equal(t, []model.TranscriptSegment{}, merged.Transcript)
}

func TestMergeMetrics(t *testing.T) {
	candidate := []model.Metric{{Name: "Clarity", Score: 90, WhatHelped: []string{"x"}, WhatHurt: []string{"y"}}}

	t.Run("adopts candidate when empty", func(t *testing.T) {
		assert.Equal(t, candidate, MergeMetrics([]model.Metric{}, candidate))
	})

	t.Run("keeps scores and fills feedback only", func(t *testing.T) {
		current := []model.Metric{{Name: "CLARITY ", Score: 10, WhatHelped: []string{}, WhatHurt: []string{"mine"}}}
		merged := MergeMetrics(current, candidate)
		assert.Equal(t, []model.Metric{{Name: "CLARITY ", Score: 10, WhatHelped: []string{"x"}, WhatHurt: []string{"mine"}}}, merged)
		assert.Empty(t, current[0].WhatHelped, "input is not mutated")
	})
}

func TestDetect(t *testing.T) {
	rec := model.SessionRecord{
		Timeline: model.EmptyTimeline(),
		Metrics: []model.Metric{
			{Name: "A", WhatHelped: []string{"x"}, WhatHurt: []string{"y"}},
			{Name: "B", WhatHelped: []string{"x"}},
		},
	}
	gaps := Detect(rec)
	assert.True(t, gaps.Structural())
	assert.False(t, gaps.Metrics)
	assert.Equal(t, []string{"B"}, gaps.Feedback)
	assert.Equal(t, []string{
		"timeline.audio", "timeline.video", "timeline.transcript", "timeline.scoreDips", "timeline.scorePeaks",
	}, gaps.Fields())
}
