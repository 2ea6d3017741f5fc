package model

// MentorDirectory is the rankings and profiles document backing the public
// mentor endpoints.
type MentorDirectory struct {
	Filters  RankingFilterOptions     `json:"filters" yaml:"filters"`
	Rankings []MentorRanking          `json:"rankings" yaml:"rankings"`
	Profiles map[string]MentorProfile `json:"profiles" yaml:"profiles"`
}

type RankingFilterOptions struct {
	Subjects         []string `json:"subjects" yaml:"subjects"`
	Languages        []string `json:"languages" yaml:"languages"`
	ExperienceLevels []string `json:"experienceLevels" yaml:"experienceLevels"`
	TimeWindows      []string `json:"timeWindows" yaml:"timeWindows"`
}

// MentorRanking carries the filterable attributes alongside the public fields.
type MentorRanking struct {
	ID              string `json:"id" yaml:"id"`
	Rank            int    `json:"rank" yaml:"rank"`
	Name            string `json:"name" yaml:"name"`
	Verified        bool   `json:"verified" yaml:"verified"`
	OverallScore    int    `json:"overallScore" yaml:"overallScore"`
	StrengthTag     string `json:"strengthTag" yaml:"strengthTag"`
	Subject         string `json:"subject" yaml:"subject"`
	Language        string `json:"language" yaml:"language"`
	ExperienceLevel string `json:"experienceLevel" yaml:"experienceLevel"`
	TimeWindow      string `json:"timeWindow" yaml:"timeWindow"`
	AvgScoreTrend   []int  `json:"avgScoreTrend" yaml:"avgScoreTrend"`
}

type MentorProfile struct {
	ID                 string            `json:"id" yaml:"id"`
	Name               string            `json:"name" yaml:"name"`
	Verified           bool              `json:"verified" yaml:"verified"`
	Bio                string            `json:"bio" yaml:"bio"`
	Expertise          []string          `json:"expertise" yaml:"expertise"`
	StrengthTag        string            `json:"strengthTag" yaml:"strengthTag"`
	AvgScoreTrend      []int             `json:"avgScoreTrend" yaml:"avgScoreTrend"`
	PeerBadges         []string          `json:"peerBadges" yaml:"peerBadges"`
	TeachingHighlights []string          `json:"teachingHighlights" yaml:"teachingHighlights"`
	Contact            map[string]string `json:"contact" yaml:"contact"`
}

// MentorListing is one entry of the mentor list and search results.
// Specialization is the ranking subject, or the first area of expertise.
type MentorListing struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Verified       bool     `json:"verified"`
	Specialization string   `json:"specialization"`
	Bio            string   `json:"bio"`
	Expertise      []string `json:"expertise"`
	OverallScore   int      `json:"overallScore"`
}

type MentorListResponse struct {
	Mentors []MentorListing `json:"mentors"`
}

// MentorSkills pairs a mentor's declared expertise with per-metric scores
// averaged over their stored sessions.
type MentorSkills struct {
	MentorID     string       `json:"mentorId"`
	Expertise    []string     `json:"expertise"`
	SessionCount int          `json:"sessionCount"`
	Skills       []SkillScore `json:"skills"`
}

type SkillScore struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Sessions int    `json:"sessions"`
}

type RankingFilter struct {
	Subject    string
	Language   string
	Experience string
	Window     string
}

func (f RankingFilter) Matches(r MentorRanking) bool {
	return (f.Subject == "" || r.Subject == f.Subject) &&
		(f.Language == "" || r.Language == f.Language) &&
		(f.Experience == "" || r.ExperienceLevel == f.Experience) &&
		(f.Window == "" || r.TimeWindow == f.Window)
}

// PublicRanking is the sanitized leaderboard entry.
type PublicRanking struct {
	ID            string `json:"id"`
	Rank          int    `json:"rank"`
	Name          string `json:"name"`
	Verified      bool   `json:"verified"`
	OverallScore  int    `json:"overallScore"`
	StrengthTag   string `json:"strengthTag"`
	AvgScoreTrend []int  `json:"avgScoreTrend"`
}

type RankingsResponse struct {
	Filters  RankingFilterOptions `json:"filters"`
	Rankings []PublicRanking      `json:"rankings"`
}

type MentorSnapshot struct {
	MentorID       string         `json:"mentorId"`
	SessionCount   int            `json:"sessionCount"`
	AverageScore   float64        `json:"averageScore"`
	Rank           int            `json:"rank"`
	PeerCount      int            `json:"peerCount"`
	Percentile     int            `json:"percentile"`
	MetricAverages map[string]int `json:"metricAverages"`
}
