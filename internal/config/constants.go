package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 90 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Gap filling shares one budget per write. The store write that follows gets
// its own timeout and is reserved out of the request deadline.
const (
	DefaultGapFillBudget = 45 * time.Second
	SessionWriteTimeout  = 10 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job timeout per backfill pass
const BackfillPassTimeout = 10 * time.Minute

// Rate limiting window for write endpoints
const IngestRateLimitWindow = time.Minute

// Session enrichment
const (
	// ConfidenceBand is the half-width of confidence intervals derived from a single score.
	ConfidenceBand = 5
	// TranscriptExcerptChars bounds the transcript excerpt sent with gap-filling prompts.
	TranscriptExcerptChars = 800
	// SummaryTranscriptChars bounds the transcript sent for AI summaries.
	SummaryTranscriptChars = 3000
	// DefaultSynthesisDuration is assumed when a session has no known duration.
	DefaultSynthesisDuration = 1800
	// WeakMomentMessageChars bounds weak moment messages taken from raw text.
	WeakMomentMessageChars = 200
)

// Session listing limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)
