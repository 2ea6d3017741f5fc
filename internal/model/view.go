package model

import "time"

// PublicSessionView is the stable response shape of the session breakdown endpoint.
type PublicSessionView struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"sessionId"`
	SessionName string       `json:"sessionName"`
	VideoURL    string       `json:"videoUrl"`
	Duration    int          `json:"duration"`
	Timeline    Timeline     `json:"timeline"`
	Metrics     []Metric     `json:"metrics"`
	WeakMoments []WeakMoment `json:"weakMoments"`
	AISummary   string       `json:"aiSummary,omitempty"`
}

// SessionSummary is one entry of a mentor or user session listing.
type SessionSummary struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"sessionId"`
	SessionName     string     `json:"sessionName"`
	VideoURL        string     `json:"videoUrl"`
	Duration        int        `json:"duration"`
	Score           *int       `json:"score"`
	WeakMomentCount int        `json:"weakMomentCount"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
}

type ImportResult struct {
	Imported int           `json:"imported"`
	Failed   int           `json:"failed"`
	Errors   []ImportError `json:"errors,omitempty"`
}

type ImportError struct {
	Index     int    `json:"index"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error"`
}
