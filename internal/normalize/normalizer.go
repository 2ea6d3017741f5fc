// Package normalize converts loosely shaped session payloads into the
// canonical model.SessionRecord. Every function in this package is total:
// malformed input degrades to zero values instead of failing.
package normalize

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/mentorscore/session-api/internal/model"
)

// Normalize unwraps extended-JSON envelopes in raw, resolves key aliases and
// coerces every field into the canonical record shape. raw is not modified.
func Normalize(raw map[string]any) model.SessionRecord {
	doc, _ := Unwrap(raw).(map[string]any)

	rec := model.SessionRecord{
		SessionID: SessionID(doc),
		VideoURL:  strings.TrimSpace(stringField(doc, fieldVideoURL)),
		Duration:  Duration(doc),
		MentorID:  strings.TrimSpace(stringField(doc, fieldMentorID)),
		UserID:    strings.TrimSpace(stringField(doc, fieldUserID)),
		AISummary: stringField(doc, fieldAISummary),
		CreatedAt: timeField(doc, fieldCreatedAt),
		UpdatedAt: timeField(doc, fieldUpdatedAt),
	}
	rec.SessionName = SessionName(doc, rec.SessionID, rec.CreatedAt)

	rawTimeline, _ := fieldTimeline.lookup(doc)
	rec.Timeline = Timeline(rawTimeline)
	rawMetrics, _ := fieldMetrics.lookup(doc)
	rec.Metrics = Metrics(rawMetrics)
	rawWeak, _ := fieldWeakMoments.lookup(doc)
	rec.WeakMoments = WeakMoments(rawWeak)

	if v, ok := fieldAnalysis.lookup(doc); ok {
		rec.Analysis = opaque(v)
	}
	if v, ok := fieldDiarization.lookup(doc); ok {
		rec.Diarization = opaque(v)
	}
	return rec
}

func SessionID(doc map[string]any) string {
	return strings.TrimSpace(stringField(doc, fieldSessionID))
}

// SessionName falls back to "Session <id>", then to a name derived from the
// creation time.
func SessionName(doc map[string]any, sessionID string, createdAt *time.Time) string {
	if name := strings.TrimSpace(stringField(doc, fieldSessionName)); name != "" {
		return name
	}
	if sessionID != "" {
		return "Session " + sessionID
	}
	if createdAt != nil {
		return "Session " + createdAt.UTC().Format("2006-01-02 15:04")
	}
	return ""
}

// Duration returns the explicit duration in whole seconds, or 0 when it is
// absent, negative or not numeric.
func Duration(doc map[string]any) int {
	d, _ := explicitDuration(doc)
	return d
}

func explicitDuration(doc map[string]any) (int, bool) {
	v, ok := fieldDuration.lookup(doc)
	if !ok {
		return 0, false
	}
	n, ok := ToInt(v)
	if !ok {
		return 0, false
	}
	return nonNegative(n), true
}

func timeField(doc map[string]any, f field) *time.Time {
	v, ok := f.lookup(doc)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case time.Time:
		ts := t.UTC()
		return &ts
	case string:
		ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		ts = ts.UTC()
		return &ts
	}
	return nil
}

// opaque re-encodes a raw collaborator payload as compact JSON. Values that
// cannot be encoded are dropped.
func opaque(v any) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return nil
		}
		v = decoded
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Document converts a record back into the generic mapping form accepted by
// Normalize. Numbers decode as json.Number.
func Document(rec model.SessionRecord) map[string]any {
	data, err := json.Marshal(rec)
	if err != nil {
		return map[string]any{}
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return map[string]any{}
	}
	return doc
}

// DecodeDocument decodes a JSON object, keeping numbers as json.Number.
func DecodeDocument(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}
