package service

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	apperrors "github.com/mentorscore/session-api/internal/errors"
	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/normalize"
	"github.com/mentorscore/session-api/internal/projection"
	"github.com/mentorscore/session-api/internal/repository"
)

type MentorService struct {
	directory repository.MentorDirectory
	sessions  repository.SessionRepository
}

func NewMentorService(directory repository.MentorDirectory, sessions repository.SessionRepository) *MentorService {
	return &MentorService{
		directory: directory,
		sessions:  sessions,
	}
}

// Rankings returns the leaderboard entries matching filter. Filter attributes
// are not exposed in the response.
func (s *MentorService) Rankings(filter model.RankingFilter) model.RankingsResponse {
	rankings := []model.PublicRanking{}
	for _, r := range s.directory.Rankings() {
		if !filter.Matches(r) {
			continue
		}
		trend := r.AvgScoreTrend
		if trend == nil {
			trend = []int{}
		}
		rankings = append(rankings, model.PublicRanking{
			ID:            r.ID,
			Rank:          r.Rank,
			Name:          r.Name,
			Verified:      r.Verified,
			OverallScore:  r.OverallScore,
			StrengthTag:   r.StrengthTag,
			AvgScoreTrend: trend,
		})
	}
	return model.RankingsResponse{
		Filters:  s.directory.Filters(),
		Rankings: rankings,
	}
}

func (s *MentorService) Profile(mentorID string) (*model.MentorProfile, error) {
	profile, err := s.directory.FindProfile(mentorID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load mentor profile").WithCause(err)
	}
	if profile == nil {
		return nil, apperrors.NotFound("Mentor")
	}
	return profile, nil
}

// Mentors lists the directory.
func (s *MentorService) Mentors() model.MentorListResponse {
	return model.MentorListResponse{Mentors: s.directory.Mentors()}
}

// Search returns the mentors whose name, specialization or bio contains
// query, ignoring case. An empty query matches every mentor.
func (s *MentorService) Search(query string) model.MentorListResponse {
	q := strings.ToLower(strings.TrimSpace(query))
	all := s.directory.Mentors()
	if q == "" {
		return model.MentorListResponse{Mentors: all}
	}

	matches := []model.MentorListing{}
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Name), q) ||
			strings.Contains(strings.ToLower(m.Specialization), q) ||
			strings.Contains(strings.ToLower(m.Bio), q) {
			matches = append(matches, m)
		}
	}
	return model.MentorListResponse{Mentors: matches}
}

// Skills averages each metric other than Overall over the mentor's stored
// sessions, highest score first. A mentor with neither a profile nor
// sessions is not found.
func (s *MentorService) Skills(ctx context.Context, mentorID string) (*model.MentorSkills, error) {
	profile, err := s.directory.FindProfile(mentorID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load mentor profile").WithCause(err)
	}
	stored, err := s.sessions.FindMany(ctx, model.SessionFilter{MentorID: mentorID})
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list mentor sessions: %w", err))
	}
	if profile == nil && len(stored) == 0 {
		return nil, apperrors.NotFound("Mentor")
	}

	skills := &model.MentorSkills{
		MentorID:     mentorID,
		Expertise:    []string{},
		SessionCount: len(stored),
		Skills:       []model.SkillScore{},
	}
	if profile != nil && len(profile.Expertise) > 0 {
		skills.Expertise = slices.Clone(profile.Expertise)
	}
	for name, t := range tallyMetrics(stored) {
		if name == model.MetricOverall {
			continue
		}
		skills.Skills = append(skills.Skills, model.SkillScore{Name: name, Score: t.average(), Sessions: t.count})
	}
	slices.SortFunc(skills.Skills, func(a, b model.SkillScore) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return skills, nil
}

// Snapshot ranks mentorID among all mentors with stored sessions. Peers are
// ordered by average score descending, ties by mentor id ascending. A mentor
// without sessions has rank and percentile 0.
func (s *MentorService) Snapshot(ctx context.Context, mentorID string) (*model.MentorSnapshot, error) {
	scores, err := s.sessions.ScoreSummaries(ctx)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("score summaries: %w", err))
	}
	stored, err := s.sessions.FindMany(ctx, model.SessionFilter{MentorID: mentorID})
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list mentor sessions: %w", err))
	}

	snap := &model.MentorSnapshot{
		MentorID:       mentorID,
		PeerCount:      len(scores),
		MetricAverages: metricAverages(stored),
	}

	ranked := slices.Clone(scores)
	slices.SortStableFunc(ranked, func(a, b model.MentorScore) int {
		if c := cmp.Compare(b.AverageScore, a.AverageScore); c != 0 {
			return c
		}
		return cmp.Compare(a.MentorID, b.MentorID)
	})

	i := slices.IndexFunc(ranked, func(m model.MentorScore) bool { return m.MentorID == mentorID })
	if i < 0 {
		return snap, nil
	}

	n := len(ranked)
	snap.Rank = i + 1
	snap.SessionCount = ranked[i].SessionCount
	snap.AverageScore = math.Round(ranked[i].AverageScore*10) / 10
	snap.Percentile = int(math.Round(100 * float64(n-snap.Rank+1) / float64(n)))
	return snap, nil
}

type metricTally struct {
	sum, count int
}

func (t metricTally) average() int {
	return int(math.Round(float64(t.sum) / float64(t.count)))
}

// tallyMetrics sums scores per metric name over the finalized records.
func tallyMetrics(stored []model.StoredSession) map[string]metricTally {
	tallies := map[string]metricTally{}
	for _, st := range stored {
		doc, err := normalize.DecodeDocument(st.Doc)
		if err != nil {
			continue
		}
		for _, m := range projection.Finalize(normalize.Normalize(doc)).Metrics {
			t := tallies[m.Name]
			t.sum += m.Score
			t.count++
			tallies[m.Name] = t
		}
	}
	return tallies
}

// metricAverages returns the rounded mean score per metric name.
func metricAverages(stored []model.StoredSession) map[string]int {
	tallies := tallyMetrics(stored)
	out := make(map[string]int, len(tallies))
	for name, t := range tallies {
		out[name] = t.average()
	}
	return out
}
