package model

import (
	"encoding/json"
	"time"
)

type SessionRecord struct {
	SessionID   string          `json:"sessionId"`
	SessionName string          `json:"sessionName"`
	VideoURL    string          `json:"videoUrl"`
	Duration    int             `json:"duration" jsonschema:"minimum=0"`
	MentorID    string          `json:"mentorId,omitempty"`
	UserID      string          `json:"userId,omitempty"`
	Timeline    Timeline        `json:"timeline"`
	Metrics     []Metric        `json:"metrics"`
	WeakMoments []WeakMoment    `json:"weakMoments"`
	AISummary   string          `json:"aiSummary,omitempty"`
	Analysis    json.RawMessage `json:"analysis,omitempty"`
	Diarization json.RawMessage `json:"diarization,omitempty"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}

type Timeline struct {
	Audio      []AudioSegment      `json:"audio"`
	Video      []VideoSegment      `json:"video"`
	Transcript []TranscriptSegment `json:"transcript"`
	ScoreDips  []ScoreEvent        `json:"scoreDips"`
	ScorePeaks []ScoreEvent        `json:"scorePeaks"`
}

// EmptyTimeline returns a timeline whose five sequences are present and empty.
func EmptyTimeline() Timeline {
	return Timeline{
		Audio:      []AudioSegment{},
		Video:      []VideoSegment{},
		Transcript: []TranscriptSegment{},
		ScoreDips:  []ScoreEvent{},
		ScorePeaks: []ScoreEvent{},
	}
}

type AudioSegment struct {
	StartTime int       `json:"startTime" jsonschema:"minimum=0"`
	EndTime   int       `json:"endTime" jsonschema:"minimum=0"`
	Pace      int       `json:"pace" jsonschema:"description=words per minute"`
	Pauses    int       `json:"pauses"`
	Type      AudioPace `json:"type" jsonschema:"enum=fast,enum=moderate,enum=normal,enum=poor"`
	Message   string    `json:"message"`
}

type VideoSegment struct {
	StartTime  int          `json:"startTime" jsonschema:"minimum=0"`
	EndTime    int          `json:"endTime" jsonschema:"minimum=0"`
	EyeContact float64      `json:"eyeContact" jsonschema:"minimum=0,maximum=100"`
	Gestures   int          `json:"gestures"`
	Type       VideoQuality `json:"type" jsonschema:"enum=excellent,enum=good,enum=moderate,enum=poor"`
	Message    string       `json:"message"`
}

type TranscriptSegment struct {
	StartTime  int      `json:"startTime" jsonschema:"minimum=0"`
	EndTime    int      `json:"endTime" jsonschema:"minimum=0"`
	Text       string   `json:"text"`
	KeyPhrases []string `json:"keyPhrases"`
}

// ScoreEvent is a point event on the score curve; Timestamp is in seconds.
type ScoreEvent struct {
	Timestamp int    `json:"timestamp" jsonschema:"minimum=0"`
	Score     int    `json:"score" jsonschema:"minimum=0,maximum=100"`
	Message   string `json:"message"`
	Type      string `json:"type"`
}

type Metric struct {
	Name               string   `json:"name"`
	Score              int      `json:"score" jsonschema:"minimum=0,maximum=100"`
	ConfidenceInterval [2]int   `json:"confidenceInterval"`
	WhatHelped         []string `json:"whatHelped"`
	WhatHurt           []string `json:"whatHurt"`
}

// WeakMoment flags a low-quality moment; Timestamp is formatted HH:MM:SS.
type WeakMoment struct {
	Timestamp string `json:"timestamp" jsonschema:"pattern=^[0-9]{2}:[0-9]{2}:[0-9]{2}$"`
	Message   string `json:"message"`
}

// OverallScore returns the Overall metric score, falling back to the rounded
// mean of all metric scores. ok is false when the record has no metrics.
func (r SessionRecord) OverallScore() (score int, ok bool) {
	if len(r.Metrics) == 0 {
		return 0, false
	}
	sum := 0
	for _, m := range r.Metrics {
		if m.Name == MetricOverall {
			return m.Score, true
		}
		sum += m.Score
	}
	return (sum + len(r.Metrics)/2) / len(r.Metrics), true
}

// StoredSession is one row of the sessions table.
type StoredSession struct {
	ID        string          `db:"id" json:"-"`
	SessionID string          `db:"session_id" json:"sessionId"`
	MentorID  *string         `db:"mentor_id" json:"mentorId,omitempty"`
	UserID    *string         `db:"user_id" json:"userId,omitempty"`
	Doc       json.RawMessage `db:"doc" json:"doc"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

type SessionFilter struct {
	MentorID        string
	UserID          string
	MissingTimeline bool
	Limit           int
	Offset          int
}

// MentorScore aggregates stored sessions per mentor.
type MentorScore struct {
	MentorID     string  `db:"mentor_id" json:"mentorId"`
	SessionCount int     `db:"session_count" json:"sessionCount"`
	AverageScore float64 `db:"average_score" json:"averageScore"`
}
