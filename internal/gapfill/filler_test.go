package gapfill

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/normalize"
)

// scriptedGenerator replays responses in order and records prompts.
type scriptedGenerator struct {
	responses []string
	errs      []error
	prompts   []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.responses) {
		return g.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

const synthesized = "```json\n" + `{
  "timeline": {
    "audio": [{"startTime": 0, "endTime": 60, "pace": 140, "pauses": 2, "type": "normal", "message": "steady"}],
    "video": [{"startTime": 0, "endTime": 60, "eyeContact": 80, "gestures": 3, "type": "good", "message": "ok"}],
    "transcript": [{"startTime": 0, "endTime": 60, "text": "welcome", "keyPhrases": ["welcome"]}],
    "scoreDips": [{"timestamp": 30, "score": 55, "message": "dip", "type": "pacing"}],
    "scorePeaks": [{"timestamp": 50, "score": 90, "message": "peak", "type": "engagement"}]
  },
  "metrics": [
    {"name": "Clarity", "score": 80, "confidenceInterval": [75, 85], "whatHelped": ["examples"], "whatHurt": ["jargon"]},
    {"name": "Overall", "score": 78, "confidenceInterval": [73, 83], "whatHelped": ["structure"], "whatHurt": ["pace"]}
  ],
  "weakMoments": [{"timestamp": "00:00:30", "message": "rushed"}]
}` + "\n```"

func fullRecord() model.SessionRecord {
	return normalize.Normalize(map[string]any{
		"sessionId": "s1",
		"timeline": map[string]any{
			"audio":      []any{map[string]any{"startTime": 0, "endTime": 5}},
			"video":      []any{map[string]any{"startTime": 0, "endTime": 5}},
			"transcript": []any{map[string]any{"startTime": 0, "endTime": 5, "text": "hi"}},
			"scoreDips":  []any{map[string]any{"timestamp": 1, "score": 40}},
			"scorePeaks": []any{map[string]any{"timestamp": 2, "score": 90}},
		},
		"metrics": []any{map[string]any{
			"name": "Clarity", "score": 70, "whatHelped": []any{"a"}, "whatHurt": []any{"b"},
		}},
	})
}

func TestFill_NoGapsIsNoop(t *testing.T) {
	gen := &scriptedGenerator{}
	rec := fullRecord()

	res := NewFiller(gen).Fill(context.Background(), rec, ContextHints{})

	assert.Empty(t, gen.prompts, "no generator call expected")
	assert.Equal(t, rec, res.Record)
	assert.False(t, res.Degraded)
	assert.Empty(t, res.Filled)
}

func TestFill_OnlyEmptyFieldsAreFilled(t *testing.T) {
	rec := fullRecord()
	rec.Timeline.Audio = []model.AudioSegment{}
	original, err := json.Marshal(rec.Metrics)
	require.NoError(t, err)
	originalVideo, err := json.Marshal(rec.Timeline.Video)
	require.NoError(t, err)

	gen := &scriptedGenerator{responses: []string{synthesized}}
	res := NewFiller(gen).Fill(context.Background(), rec, ContextHints{SessionName: "Graphs", Duration: 60})

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "timeline.audio")
	assert.NotContains(t, gen.prompts[0], "timeline.video,")
	assert.Contains(t, gen.prompts[0], "Graphs")

	require.Len(t, res.Record.Timeline.Audio, 1)
	assert.Equal(t, 140, res.Record.Timeline.Audio[0].Pace)

	after, err := json.Marshal(res.Record.Metrics)
	require.NoError(t, err)
	assert.Equal(t, string(original), string(after), "metrics must be byte-for-byte unchanged")
	afterVideo, err := json.Marshal(res.Record.Timeline.Video)
	require.NoError(t, err)
	assert.Equal(t, string(originalVideo), string(afterVideo))

	assert.Contains(t, res.Filled, "timeline.audio")
	assert.Contains(t, res.Filled, "weakMoments")
	assert.False(t, res.Degraded)
}

func TestFill_EmptyRecordGetsEverything(t *testing.T) {
	rec := normalize.Normalize(map[string]any{"sessionId": "s2"})
	gen := &scriptedGenerator{responses: []string{synthesized}}

	res := NewFiller(gen).Fill(context.Background(), rec, ContextHints{Duration: 60})

	assert.Len(t, gen.prompts, 1, "complete feedback in the first response avoids a second call")
	assert.Len(t, res.Record.Timeline.Video, 1)
	assert.Len(t, res.Record.Timeline.ScorePeaks, 1)
	require.Len(t, res.Record.Metrics, 2)
	assert.Equal(t, [2]int{75, 85}, res.Record.Metrics[0].ConfidenceInterval)
	assert.Equal(t, []model.WeakMoment{{Timestamp: "00:00:30", Message: "rushed"}}, res.Record.WeakMoments)
	assert.ElementsMatch(t, []string{
		"timeline.audio", "timeline.video", "timeline.transcript",
		"timeline.scoreDips", "timeline.scorePeaks", "metrics", "weakMoments",
	}, res.Filled)
}

func TestFill_FailureKeepsRecord(t *testing.T) {
	cases := map[string]*scriptedGenerator{
		"collaborator unavailable": {errs: []error{errors.New("503 service unavailable")}},
		"unparseable response":     {responses: []string{"I cannot help with that."}},
		"null response":            {responses: []string{"null"}},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			rec := fullRecord()
			rec.Timeline.Audio = []model.AudioSegment{}

			res := NewFiller(gen).Fill(context.Background(), rec, ContextHints{})

			assert.Equal(t, rec, res.Record)
			assert.True(t, res.Degraded)
			assert.Error(t, res.Reason)
			assert.Contains(t, res.Reason.Error(), StageSynthesis)
		})
	}

	t.Run("no generator", func(t *testing.T) {
		rec := normalize.Normalize(map[string]any{"sessionId": "s3"})
		res := NewFiller(nil).Fill(context.Background(), rec, ContextHints{})
		assert.Equal(t, rec, res.Record)
		assert.True(t, res.Degraded)
		assert.ErrorIs(t, res.Reason, ErrNoGenerator)
	})
}

func TestFill_FinishedContextSkipsGenerator(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{responses: []string{synthesized, synthesized}}
	rec := normalize.Normalize(map[string]any{"sessionId": "s5"})

	res := NewFiller(gen).Fill(ctx, rec, ContextHints{})

	assert.Empty(t, gen.prompts)
	assert.Equal(t, rec, res.Record)
	assert.True(t, res.Degraded)
	assert.ErrorIs(t, res.Reason, context.Canceled)

	_, ok := NewFiller(gen).Summarize(ctx, "some transcript", 100)
	assert.False(t, ok)
	assert.Empty(t, gen.prompts)
}

func TestFill_MetricFeedbackBackfill(t *testing.T) {
	rec := fullRecord()
	rec.Metrics = []model.Metric{
		{Name: "Clarity", Score: 70, ConfidenceInterval: [2]int{65, 75}, WhatHelped: []string{"kept"}, WhatHurt: []string{}},
		{Name: "Pacing", Score: 60, ConfidenceInterval: [2]int{55, 65}, WhatHelped: []string{}, WhatHurt: []string{}},
	}
	gen := &scriptedGenerator{responses: []string{
		`Sure! {"metrics":[
			{"name":"clarity","whatHelped":["replaced?"],"whatHurt":["filler words"]},
			{"name":"Pacing","whatHelped":["pauses"],"whatHurt":["rushed ending"]}
		]} Hope this helps.`,
	}}

	res := NewFiller(gen).Fill(context.Background(), rec, ContextHints{})

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Pacing (score 60)")
	assert.Equal(t, []string{"kept"}, res.Record.Metrics[0].WhatHelped)
	assert.Equal(t, []string{"filler words"}, res.Record.Metrics[0].WhatHurt)
	assert.Equal(t, []string{"pauses"}, res.Record.Metrics[1].WhatHelped)
	assert.Equal(t, 60, res.Record.Metrics[1].Score)
	assert.Equal(t, [2]int{55, 65}, res.Record.Metrics[1].ConfidenceInterval)
	assert.False(t, res.Degraded)
}

func TestFill_FeedbackStepIsIndependent(t *testing.T) {
	rec := normalize.Normalize(map[string]any{"sessionId": "s4"})
	firstOnly := strings.Replace(synthesized, `"whatHurt": ["pace"]`, `"whatHurt": []`, 1)
	gen := &scriptedGenerator{
		responses: []string{firstOnly},
		errs:      []error{nil, errors.New("429 quota exceeded")},
	}

	res := NewFiller(gen).Fill(context.Background(), rec, ContextHints{})

	assert.Len(t, gen.prompts, 2)
	assert.True(t, res.Degraded)
	assert.Contains(t, res.Reason.Error(), StageFeedback)
	require.Len(t, res.Record.Metrics, 2)
	assert.Empty(t, res.Record.Metrics[1].WhatHurt)
	assert.NotNil(t, res.Record.Metrics[1].WhatHurt)
	assert.Len(t, res.Record.Timeline.Audio, 1, "synthesis result survives the failed feedback step")
}

func TestSummarize(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"  A clear session.  "}}
	f := NewFiller(gen)

	summary, ok := f.Summarize(context.Background(), strings.Repeat("word ", 1000), 100)
	assert.True(t, ok)
	assert.Equal(t, "A clear session.", summary)
	assert.Less(t, len(gen.prompts[0]), 400)

	_, ok = f.Summarize(context.Background(), "   ", 100)
	assert.False(t, ok)
	assert.Len(t, gen.prompts, 1)

	_, ok = NewFiller(&scriptedGenerator{errs: []error{errors.New("down")}}).Summarize(context.Background(), "text", 100)
	assert.False(t, ok)
}
