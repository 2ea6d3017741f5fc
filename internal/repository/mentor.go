package repository

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mentorscore/session-api/internal/model"
)

//go:embed mentors.yaml
var defaultDirectory []byte

// MentorDirectory serves the public rankings and profiles. The directory is
// read once at startup and is immutable afterwards.
type MentorDirectory interface {
	Rankings() []model.MentorRanking
	Filters() model.RankingFilterOptions
	FindProfile(id string) (*model.MentorProfile, error)
	Mentors() []model.MentorListing
}

type mentorDirectory struct {
	dir      model.MentorDirectory
	listings []model.MentorListing
}

// LoadMentorDirectory reads a YAML (or JSON) directory file. An empty path
// loads the built-in directory.
func LoadMentorDirectory(path string) (MentorDirectory, error) {
	data := defaultDirectory
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read mentor directory: %w", err)
		}
	}
	return ParseMentorDirectory(data)
}

func ParseMentorDirectory(data []byte) (MentorDirectory, error) {
	var dir model.MentorDirectory
	if err := yaml.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("parse mentor directory: %w", err)
	}
	sort.SliceStable(dir.Rankings, func(i, j int) bool {
		return dir.Rankings[i].Rank < dir.Rankings[j].Rank
	})
	return &mentorDirectory{dir: dir, listings: buildListings(dir)}, nil
}

// buildListings lists ranked mentors in rank order, then mentors that only
// have a profile, by id. A mentor ranked in several windows is listed once.
func buildListings(dir model.MentorDirectory) []model.MentorListing {
	seen := map[string]bool{}
	out := []model.MentorListing{}

	add := func(id string, ranking *model.MentorRanking) {
		if seen[id] {
			return
		}
		seen[id] = true

		l := model.MentorListing{ID: id, Expertise: []string{}}
		if ranking != nil {
			l.Name = ranking.Name
			l.Verified = ranking.Verified
			l.Specialization = ranking.Subject
			l.OverallScore = ranking.OverallScore
		}
		if p, ok := dir.Profiles[id]; ok {
			if l.Name == "" {
				l.Name = p.Name
			}
			l.Verified = l.Verified || p.Verified
			l.Bio = p.Bio
			if len(p.Expertise) > 0 {
				l.Expertise = slices.Clone(p.Expertise)
			}
			if l.Specialization == "" && len(p.Expertise) > 0 {
				l.Specialization = p.Expertise[0]
			}
		}
		out = append(out, l)
	}

	for i := range dir.Rankings {
		add(dir.Rankings[i].ID, &dir.Rankings[i])
	}
	for _, id := range slices.Sorted(maps.Keys(dir.Profiles)) {
		add(id, nil)
	}
	return out
}

func (d *mentorDirectory) Rankings() []model.MentorRanking {
	out := make([]model.MentorRanking, len(d.dir.Rankings))
	copy(out, d.dir.Rankings)
	return out
}

func (d *mentorDirectory) Mentors() []model.MentorListing {
	return slices.Clone(d.listings)
}

func (d *mentorDirectory) Filters() model.RankingFilterOptions {
	return d.dir.Filters
}

// FindProfile returns nil when no profile exists for id.
func (d *mentorDirectory) FindProfile(id string) (*model.MentorProfile, error) {
	p, ok := d.dir.Profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
