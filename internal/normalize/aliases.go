package normalize

import "slices"

// field names a canonical key and the alternate spellings accepted for it.
type field struct {
	canonical string
	aliases   []string
}

// lookup returns the canonical value when present and non-null, otherwise
// the first present alias.
func (f field) lookup(m map[string]any) (any, bool) {
	if m == nil {
		return nil, false
	}
	if v, ok := m[f.canonical]; ok && v != nil {
		return v, true
	}
	for _, alias := range f.aliases {
		if v, ok := m[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Record-level keys.
var (
	fieldSessionID   = field{"sessionId", []string{"id", "session_id"}}
	fieldSessionName = field{"sessionName", []string{"name", "session_name"}}
	fieldVideoURL    = field{"videoUrl", []string{"video_url", "uploadedFile"}}
	fieldDuration    = field{"duration", nil}
	fieldMentorID    = field{"mentorId", []string{"mentor_id"}}
	fieldUserID      = field{"userId", []string{"user_id"}}
	fieldTimeline    = field{"timeline", nil}
	fieldMetrics     = field{"metrics", nil}
	fieldWeakMoments = field{"weakMoments", []string{"weak_moments"}}
	fieldAISummary   = field{"aiSummary", []string{"ai_summary"}}
	fieldAnalysis    = field{"analysis", nil}
	fieldDiarization = field{"diarization", nil}
	fieldCreatedAt   = field{"created_at", []string{"createdAt"}}
	fieldUpdatedAt   = field{"updated_at", []string{"updatedAt"}}
)

// Timeline keys.
var (
	fieldAudio      = field{"audio", nil}
	fieldVideo      = field{"video", nil}
	fieldTranscript = field{"transcript", nil}
	fieldScoreDips  = field{"scoreDips", []string{"score_dips"}}
	fieldScorePeaks = field{"scorePeaks", []string{"score_peaks"}}
)

// Segment and event keys.
var (
	fieldStartTime  = field{"startTime", []string{"start", "start_time"}}
	fieldEndTime    = field{"endTime", []string{"end", "end_time"}}
	fieldPace       = field{"pace", nil}
	fieldPauses     = field{"pauses", nil}
	fieldType       = field{"type", nil}
	fieldMessage    = field{"message", nil}
	fieldEyeContact = field{"eyeContact", []string{"eye_contact"}}
	fieldGestures   = field{"gestures", nil}
	fieldText       = field{"text", []string{"transcript"}}
	fieldKeyPhrases = field{"keyPhrases", []string{"key_phrases"}}
	fieldTimestamp  = field{"timestamp", []string{"time", "ts"}}
	fieldScore      = field{"score", nil}
)

// Metric keys.
var (
	fieldMetricName         = field{"name", []string{"metric"}}
	fieldConfidenceInterval = field{"confidenceInterval", []string{"confidence_interval"}}
	fieldWhatHelped         = field{"whatHelped", []string{"what_helped"}}
	fieldWhatHurt           = field{"whatHurt", []string{"what_hurt"}}
)

var recordFields = []field{
	fieldSessionID, fieldSessionName, fieldVideoURL, fieldDuration, fieldMentorID,
	fieldUserID, fieldTimeline, fieldMetrics, fieldWeakMoments, fieldAISummary,
	fieldAnalysis, fieldDiarization, fieldCreatedAt, fieldUpdatedAt,
}

func recordField(key string) (field, bool) {
	for _, f := range recordFields {
		if key == f.canonical || slices.Contains(f.aliases, key) {
			return f, true
		}
	}
	return field{}, false
}

// CanonicalKey maps an accepted record-level key to its canonical spelling.
// Unknown keys are returned unchanged.
func CanonicalKey(key string) string {
	if f, ok := recordField(key); ok {
		return f.canonical
	}
	return key
}

// IsRecordKey reports whether key names a record-level field or one of its aliases.
func IsRecordKey(key string) bool {
	_, ok := recordField(key)
	return ok
}
