// Package gapfill supplies synthetic content for the parts of a session
// record that earlier processing left empty. Filling is best-effort: every
// failure is reported through Result.Degraded and the record is returned as
// it was before the failing step.
package gapfill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/normalize"
	"github.com/mentorscore/session-api/internal/observability"
)

// Generator is the generative text collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrNoGenerator is reported when the filler was built without a collaborator.
var ErrNoGenerator = errors.New("no generator configured")

// Stages reported in logs, metrics and Result.Reason.
const (
	StageSynthesis = "synthesis"
	StageFeedback  = "feedback"
	StageSummary   = "summary"
)

// Result carries the possibly filled record. Degraded is set when at least
// one step failed and its gaps were left as they were.
type Result struct {
	Record   model.SessionRecord
	Filled   []string
	Degraded bool
	Reason   error
}

func (r *Result) degrade(stage string, err error) {
	r.Degraded = true
	r.Reason = errors.Join(r.Reason, fmt.Errorf("%s: %w", stage, err))
	observability.RecordGapFill(stage, observability.OutcomeDegraded)
	log.Warn().
		Err(err).
		Str("sessionId", r.Record.SessionID).
		Str("stage", stage).
		Msg("gap filling degraded, keeping defaults")
}

type Filler struct {
	gen Generator
}

func NewFiller(gen Generator) *Filler {
	return &Filler{gen: gen}
}

// Fill detects empty collections of rec and asks the generator for
// replacements. Fields that are non-empty on entry are never modified.
func (f *Filler) Fill(ctx context.Context, rec model.SessionRecord, hints ContextHints) Result {
	res := Result{Record: rec}

	gaps := Detect(rec)
	if !gaps.Any() {
		observability.RecordGapFill(StageSynthesis, observability.OutcomeSkipped)
		return res
	}

	if gaps.Structural() {
		f.synthesize(ctx, &res, hints, gaps)
	}

	// Feedback gaps are re-detected after synthesis so that a successful first
	// request saves the second one.
	if missing := Detect(res.Record).Feedback; len(missing) > 0 {
		f.backfillFeedback(ctx, &res, hints, missing)
	}
	return res
}

func (f *Filler) synthesize(ctx context.Context, res *Result, hints ContextHints, gaps Gaps) {
	obj, err := f.generateObject(ctx, synthesisPrompt(hints, gaps))
	if err != nil {
		res.degrade(StageSynthesis, err)
		return
	}

	before := res.Record
	merged := before
	merged.Timeline = MergeTimeline(before.Timeline, normalize.Timeline(obj["timeline"]))
	merged.Metrics = MergeMetrics(before.Metrics, normalize.Metrics(obj["metrics"]))
	merged.WeakMoments = MergeIfEmpty(before.WeakMoments, normalize.WeakMoments(obj["weakMoments"]))

	res.Record = merged
	res.Filled = append(res.Filled, FilledFields(before, merged)...)
	observability.RecordGapFill(StageSynthesis, observability.OutcomeFilled)
}

func (f *Filler) backfillFeedback(ctx context.Context, res *Result, hints ContextHints, names []string) {
	obj, err := f.generateObject(ctx, feedbackPrompt(hints, res.Record.Metrics, names))
	if err != nil {
		res.degrade(StageFeedback, err)
		return
	}

	before := res.Record.Metrics
	res.Record.Metrics = MergeFeedback(before, normalize.Metrics(obj["metrics"]))
	for i := range before {
		if len(before[i].WhatHelped) == 0 && len(res.Record.Metrics[i].WhatHelped) > 0 ||
			len(before[i].WhatHurt) == 0 && len(res.Record.Metrics[i].WhatHurt) > 0 {
			res.Filled = append(res.Filled, "metrics."+before[i].Name+".feedback")
		}
	}
	observability.RecordGapFill(StageFeedback, observability.OutcomeFilled)
}

// Summarize returns a short AI summary of the transcript. ok is false when
// there is nothing to summarize or the generator failed.
func (f *Filler) Summarize(ctx context.Context, transcript string, maxChars int) (summary string, ok bool) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", false
	}
	if f.gen == nil || ctx.Err() != nil {
		observability.RecordGapFill(StageSummary, observability.OutcomeDegraded)
		return "", false
	}
	text, err := f.gen.Generate(ctx, summaryPrompt(Truncate(transcript, maxChars)))
	if err != nil || strings.TrimSpace(text) == "" {
		observability.RecordGapFill(StageSummary, observability.OutcomeDegraded)
		log.Warn().Err(err).Msg("session summary unavailable")
		return "", false
	}
	observability.RecordGapFill(StageSummary, observability.OutcomeFilled)
	return strings.TrimSpace(text), true
}

func (f *Filler) generateObject(ctx context.Context, prompt string) (map[string]any, error) {
	if f.gen == nil {
		return nil, ErrNoGenerator
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := f.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseObject(text)
}

// FilledFields names the collections that were empty in before and are populated in after.
func FilledFields(before, after model.SessionRecord) []string {
	var out []string
	check := func(name string, was, now int) {
		if was == 0 && now > 0 {
			out = append(out, name)
		}
	}
	check("timeline.audio", len(before.Timeline.Audio), len(after.Timeline.Audio))
	check("timeline.video", len(before.Timeline.Video), len(after.Timeline.Video))
	check("timeline.transcript", len(before.Timeline.Transcript), len(after.Timeline.Transcript))
	check("timeline.scoreDips", len(before.Timeline.ScoreDips), len(after.Timeline.ScoreDips))
	check("timeline.scorePeaks", len(before.Timeline.ScorePeaks), len(after.Timeline.ScorePeaks))
	check("metrics", len(before.Metrics), len(after.Metrics))
	check("weakMoments", len(before.WeakMoments), len(after.WeakMoments))
	return out
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
