// Package projection turns stored session documents into the public view
// returned by the read API.
package projection

import (
	"context"
	"slices"

	"github.com/mentorscore/session-api/internal/enrich"
	"github.com/mentorscore/session-api/internal/gapfill"
	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/normalize"
)

type Projector struct {
	filler     *gapfill.Filler
	healOnRead bool
}

// NewProjector returns a projector. When healOnRead is set and filler is not
// nil, empty collections found at read time are gap-filled.
func NewProjector(filler *gapfill.Filler, healOnRead bool) *Projector {
	return &Projector{filler: filler, healOnRead: healOnRead}
}

// Project accepts a raw stored document or a canonical record in mapping form.
// The returned Result holds the repaired record; Result.Filled lists the
// collections that changed, so callers may persist them.
func (p *Projector) Project(ctx context.Context, doc map[string]any) (model.PublicSessionView, gapfill.Result) {
	stored := normalize.Normalize(doc)

	rec := Finalize(stored)

	res := gapfill.Result{Record: rec}
	if p.healOnRead && p.filler != nil {
		res = p.filler.Fill(ctx, rec, enrich.Hints(rec))
	}
	res.Filled = mergeFields(gapfill.FilledFields(stored, rec), res.Filled)

	return View(res.Record), res
}

// Finalize applies the derivations that need no collaborator: content from
// attached payloads, then duration from analysis or the transcript end.
func Finalize(rec model.SessionRecord) model.SessionRecord {
	rec = enrich.Apply(rec)
	if rec.Duration == 0 {
		rec.Duration = maxTranscriptEnd(rec.Timeline.Transcript)
	}
	return rec
}

// View exposes a canonical record publicly. Storage-internal fields and the
// raw collaborator payloads are not part of the view.
func View(rec model.SessionRecord) model.PublicSessionView {
	name := rec.SessionName
	if name == "" && rec.SessionID != "" {
		name = "Session " + rec.SessionID
	}
	return model.PublicSessionView{
		ID:          rec.SessionID,
		SessionID:   rec.SessionID,
		SessionName: name,
		VideoURL:    rec.VideoURL,
		Duration:    rec.Duration,
		Timeline:    rec.Timeline,
		Metrics:     rec.Metrics,
		WeakMoments: rec.WeakMoments,
		AISummary:   rec.AISummary,
	}
}

func maxTranscriptEnd(segments []model.TranscriptSegment) int {
	end := 0
	for _, s := range segments {
		end = max(end, s.EndTime)
	}
	return end
}

func mergeFields(a, b []string) []string {
	out := slices.Clone(a)
	for _, f := range b {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}
