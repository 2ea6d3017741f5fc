// Package enrich derives canonical session content from the raw analysis and
// diarization payloads attached to a record.
package enrich

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/mentorscore/session-api/internal/config"
	"github.com/mentorscore/session-api/internal/gapfill"
	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/normalize"
)

// analysisMetrics maps analysis score keys to metric names, in output order.
var analysisMetrics = []struct {
	key  string
	name string
}{
	{"clarity", model.MetricClarity},
	{"communication", model.MetricCommunication},
	{"engagement", model.MetricEngagement},
	{"technical_depth", model.MetricTechnicalDepth},
	{"interaction", model.MetricInteraction},
	{"pacing", model.MetricPacing},
	{"eye_contact", model.MetricEyeContact},
	{"gestures", model.MetricGestures},
}

// Apply fills empty metrics, transcript and weak moments of rec from its
// attached payloads, and the duration when it is zero. Populated fields are
// left alone.
func Apply(rec model.SessionRecord) model.SessionRecord {
	analysis := Decode(rec.Analysis)
	diarization := Decode(rec.Diarization)

	rec.Metrics = gapfill.MergeIfEmpty(rec.Metrics, MetricsFromAnalysis(analysis))
	rec.Timeline.Transcript = gapfill.MergeIfEmpty(rec.Timeline.Transcript, TranscriptFromDiarization(diarization))
	rec.WeakMoments = gapfill.MergeIfEmpty(rec.WeakMoments, WeakMomentsFromDiarization(diarization))
	if rec.Duration == 0 {
		rec.Duration = DurationFromAnalysis(analysis)
	}
	return rec
}

// MetricsFromAnalysis converts per-dimension scores into metrics with a
// confidence band of ±ConfidenceBand. Overall comes last.
func MetricsFromAnalysis(analysis any) []model.Metric {
	scores := asMap(analysis)
	if nested := asMap(scores["scores"]); nested != nil {
		scores = nested
	}
	if scores == nil {
		return []model.Metric{}
	}

	var raw []any
	for _, am := range analysisMetrics {
		val, ok := scores[am.key]
		if !ok {
			continue
		}
		if m, ok := metricFrom(am.name, val); ok {
			raw = append(raw, m)
		}
	}
	for _, key := range []string{"overall_score", "overallScore"} {
		if val, ok := scores[key]; ok && val != nil {
			if m, ok := metricFrom(model.MetricOverall, val); ok {
				raw = append(raw, m)
			}
			break
		}
	}
	return normalize.Metrics(raw)
}

func metricFrom(name string, val any) (map[string]any, bool) {
	out := map[string]any{}
	score := val
	if m := asMap(val); m != nil {
		for k, v := range m {
			out[k] = v
		}
		score = m["score"]
	}
	n, ok := normalize.ToInt(score)
	if !ok {
		return nil, false
	}
	n = normalize.Clamp(n, 0, 100)
	ci := normalize.BandInterval(n, config.ConfidenceBand)
	out["name"] = name
	out["score"] = n
	out["confidenceInterval"] = []any{ci[0], ci[1]}
	return out, true
}

// TranscriptFromDiarization turns diarized sentences into transcript segments.
func TranscriptFromDiarization(diarization any) []model.TranscriptSegment {
	var raw []any
	for _, item := range sentences(diarization) {
		s := asMap(item)
		if s == nil {
			continue
		}
		raw = append(raw, map[string]any{
			"startTime": s["start"],
			"endTime":   s["end"],
			"text":      firstNonNil(s["text"], s["transcript"]),
		})
	}
	return normalize.TranscriptSegments(raw)
}

// WeakMomentsFromDiarization collects the needs-improvement items flagged by
// the diarization service.
func WeakMomentsFromDiarization(diarization any) []model.WeakMoment {
	d := asMap(diarization)
	items, _ := firstNonNil(d["needs_improvement"], d["needsImprovement"]).([]any)

	out := []model.WeakMoment{}
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, model.WeakMoment{
				Timestamp: normalize.FormatTimestamp(0),
				Message:   gapfill.Truncate(strings.TrimSpace(s), config.WeakMomentMessageChars),
			})
			continue
		}
		m := asMap(item)
		if m == nil {
			continue
		}
		out = append(out, model.WeakMoment{
			Timestamp: normalize.FormatTimestamp(seconds(firstNonNil(m["start"], m["startTime"], m["time"], m["timestamp"]))),
			Message:   gapfill.Truncate(improvementMessage(m), config.WeakMomentMessageChars),
		})
	}
	return out
}

func seconds(v any) int {
	if s, ok := v.(string); ok {
		n, _ := normalize.ParseTimestamp(s)
		return n
	}
	n, _ := normalize.ToInt(v)
	return max(n, 0)
}

func improvementMessage(m map[string]any) string {
	switch imp := m["improvement"].(type) {
	case string:
		if strings.TrimSpace(imp) != "" {
			return strings.TrimSpace(imp)
		}
	case map[string]any:
		if s := strings.TrimSpace(normalize.ToString(imp["suggestion"])); s != "" {
			return s
		}
	}
	for _, key := range []string{"reason", "message", "text"} {
		if s := strings.TrimSpace(normalize.ToString(m[key])); s != "" {
			return s
		}
	}
	return ""
}

// DurationFromAnalysis reads duration or total_duration in seconds.
func DurationFromAnalysis(analysis any) int {
	a := asMap(analysis)
	for _, key := range []string{"duration", "total_duration"} {
		if n, ok := normalize.ToInt(a[key]); ok && n > 0 {
			return n
		}
	}
	return 0
}

// Hints builds the gap-filling context for rec.
func Hints(rec model.SessionRecord) gapfill.ContextHints {
	analysis := Decode(rec.Analysis)
	diarization := Decode(rec.Diarization)

	h := gapfill.ContextHints{
		SessionName:     rec.SessionName,
		Duration:        rec.Duration,
		AnalysisKeys:    sortedKeys(analysis),
		DiarizationKeys: sortedKeys(diarization),
		SentenceCount:   len(sentences(diarization)),
	}
	if h.Duration == 0 {
		h.Duration = DurationFromAnalysis(analysis)
	}
	if h.Duration == 0 {
		h.Duration = config.DefaultSynthesisDuration
	}

	a := asMap(analysis)
	if n, ok := normalize.ToInt(firstNonNil(a["overall_score"], a["overallScore"])); ok {
		n = normalize.Clamp(n, 0, 100)
		h.OverallScore = &n
	} else if n, ok := rec.OverallScore(); ok {
		h.OverallScore = &n
	}

	h.TranscriptExcerpt = gapfill.Truncate(TranscriptText(rec), config.TranscriptExcerptChars)
	return h
}

// TranscriptText returns the best available plain transcript: the analysis
// transcript, then diarized sentences, then transcript segments.
func TranscriptText(rec model.SessionRecord) string {
	if s, ok := asMap(Decode(rec.Analysis))["transcript"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}

	var parts []string
	for _, item := range sentences(Decode(rec.Diarization)) {
		s := asMap(item)
		if text := strings.TrimSpace(normalize.ToString(firstNonNil(s["text"], s["transcript"]))); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		for _, seg := range rec.Timeline.Transcript {
			if text := strings.TrimSpace(seg.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

// Decode parses an attached payload; invalid or empty JSON yields nil.
func Decode(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func sentences(diarization any) []any {
	if list, ok := diarization.([]any); ok {
		return list
	}
	d := asMap(diarization)
	if list, ok := d["sentences"].([]any); ok {
		return list
	}
	list, _ := d["segments"].([]any)
	return list
}

func sortedKeys(v any) []string {
	m := asMap(v)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
