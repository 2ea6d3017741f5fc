package gapfill

import "github.com/mentorscore/session-api/internal/model"

// Gaps records which canonical sub-collections of a record are empty.
type Gaps struct {
	Audio      bool
	Video      bool
	Transcript bool
	ScoreDips  bool
	ScorePeaks bool
	Metrics    bool
	// Feedback lists metrics whose whatHelped or whatHurt is empty.
	Feedback []string
}

func Detect(rec model.SessionRecord) Gaps {
	g := Gaps{
		Audio:      len(rec.Timeline.Audio) == 0,
		Video:      len(rec.Timeline.Video) == 0,
		Transcript: len(rec.Timeline.Transcript) == 0,
		ScoreDips:  len(rec.Timeline.ScoreDips) == 0,
		ScorePeaks: len(rec.Timeline.ScorePeaks) == 0,
		Metrics:    len(rec.Metrics) == 0,
	}
	for _, m := range rec.Metrics {
		if len(m.WhatHelped) == 0 || len(m.WhatHurt) == 0 {
			g.Feedback = append(g.Feedback, m.Name)
		}
	}
	return g
}

// Structural reports whether any timeline sequence or the metrics are empty.
func (g Gaps) Structural() bool {
	return g.Audio || g.Video || g.Transcript || g.ScoreDips || g.ScorePeaks || g.Metrics
}

func (g Gaps) Any() bool {
	return g.Structural() || len(g.Feedback) > 0
}

// Fields names the empty collections using their JSON paths.
func (g Gaps) Fields() []string {
	var out []string
	for _, f := range []struct {
		empty bool
		name  string
	}{
		{g.Audio, "timeline.audio"},
		{g.Video, "timeline.video"},
		{g.Transcript, "timeline.transcript"},
		{g.ScoreDips, "timeline.scoreDips"},
		{g.ScorePeaks, "timeline.scorePeaks"},
		{g.Metrics, "metrics"},
	} {
		if f.empty {
			out = append(out, f.name)
		}
	}
	return out
}
