package normalize

import (
	"strings"

	"github.com/mentorscore/session-api/internal/model"
)

// Timeline coerces a raw timeline mapping. All five sequences are always
// present; anything that is not a mapping yields an empty timeline.
func Timeline(v any) model.Timeline {
	m := asMap(v)
	tl := model.EmptyTimeline()
	if raw, ok := fieldAudio.lookup(m); ok {
		tl.Audio = AudioSegments(raw)
	}
	if raw, ok := fieldVideo.lookup(m); ok {
		tl.Video = VideoSegments(raw)
	}
	if raw, ok := fieldTranscript.lookup(m); ok {
		tl.Transcript = TranscriptSegments(raw)
	}
	if raw, ok := fieldScoreDips.lookup(m); ok {
		tl.ScoreDips = ScoreEvents(raw)
	}
	if raw, ok := fieldScorePeaks.lookup(m); ok {
		tl.ScorePeaks = ScoreEvents(raw)
	}
	return tl
}

func AudioSegments(v any) []model.AudioSegment {
	out := []model.AudioSegment{}
	for _, item := range asList(v) {
		seg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pace := model.AudioPace(strings.ToLower(strings.TrimSpace(stringField(seg, fieldType))))
		if !pace.Valid() {
			pace = model.AudioPaceNormal
		}
		out = append(out, model.AudioSegment{
			StartTime: nonNegative(intField(seg, fieldStartTime)),
			EndTime:   nonNegative(intField(seg, fieldEndTime)),
			Pace:      nonNegative(intField(seg, fieldPace)),
			Pauses:    nonNegative(intField(seg, fieldPauses)),
			Type:      pace,
			Message:   stringField(seg, fieldMessage),
		})
	}
	return out
}

func VideoSegments(v any) []model.VideoSegment {
	out := []model.VideoSegment{}
	for _, item := range asList(v) {
		seg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		quality := model.VideoQuality(strings.ToLower(strings.TrimSpace(stringField(seg, fieldType))))
		if !quality.Valid() {
			quality = model.VideoQualityGood
		}
		var eyeContact float64
		if raw, ok := fieldEyeContact.lookup(seg); ok {
			eyeContact, _ = ToFloat(raw)
		}
		out = append(out, model.VideoSegment{
			StartTime:  nonNegative(intField(seg, fieldStartTime)),
			EndTime:    nonNegative(intField(seg, fieldEndTime)),
			EyeContact: clampFloat(eyeContact, 0, 100),
			Gestures:   nonNegative(intField(seg, fieldGestures)),
			Type:       quality,
			Message:    stringField(seg, fieldMessage),
		})
	}
	return out
}

func TranscriptSegments(v any) []model.TranscriptSegment {
	out := []model.TranscriptSegment{}
	for _, item := range asList(v) {
		seg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		phrases, _ := fieldKeyPhrases.lookup(seg)
		out = append(out, model.TranscriptSegment{
			StartTime:  nonNegative(intField(seg, fieldStartTime)),
			EndTime:    nonNegative(intField(seg, fieldEndTime)),
			Text:       stringField(seg, fieldText),
			KeyPhrases: ToStringSlice(phrases),
		})
	}
	return out
}

// ScoreEvents coerces scoreDips/scorePeaks entries. Timestamps given as
// clock strings are converted to seconds.
func ScoreEvents(v any) []model.ScoreEvent {
	out := []model.ScoreEvent{}
	for _, item := range asList(v) {
		ev, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.ScoreEvent{
			Timestamp: nonNegative(secondsField(ev, fieldTimestamp)),
			Score:     Clamp(intField(ev, fieldScore), 0, 100),
			Message:   stringField(ev, fieldMessage),
			Type:      stringField(ev, fieldType),
		})
	}
	return out
}

func WeakMoments(v any) []model.WeakMoment {
	out := []model.WeakMoment{}
	for _, item := range asList(v) {
		wm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.WeakMoment{
			Timestamp: clockField(wm, fieldTimestamp),
			Message:   stringField(wm, fieldMessage),
		})
	}
	return out
}

func secondsField(m map[string]any, f field) int {
	v, ok := f.lookup(m)
	if !ok {
		return 0
	}
	if s, isString := v.(string); isString {
		n, _ := ParseTimestamp(s)
		return n
	}
	n, _ := ToInt(v)
	return n
}

// clockField renders numeric timestamps as HH:MM:SS and canonicalizes
// parseable clock strings. Unparseable strings are kept verbatim.
func clockField(m map[string]any, f field) string {
	v, ok := f.lookup(m)
	if !ok {
		return FormatTimestamp(0)
	}
	if s, isString := v.(string); isString {
		if n, parsed := ParseTimestamp(s); parsed {
			return FormatTimestamp(n)
		}
		return strings.TrimSpace(s)
	}
	n, _ := ToInt(v)
	return FormatTimestamp(n)
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
