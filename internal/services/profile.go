package services

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/pkg/models"
)

// ProfileBuilder derives a user preference profile from the interaction
// snapshot. Profiles are built per request and never cached across
// reloads, so they always reflect the active snapshot.
type ProfileBuilder struct {
	config *config.RecommendationConfig
	logger *logrus.Logger
}

func NewProfileBuilder(cfg *config.RecommendationConfig, logger *logrus.Logger) *ProfileBuilder {
	return &ProfileBuilder{config: cfg, logger: logger}
}

// Build assembles the profile for one user. A user with no interaction
// history gets a zero profile: empty sets, neutral similarity downstream.
func (pb *ProfileBuilder) Build(snap *Snapshot, userID int64) *models.UserProfile {
	profile := &models.UserProfile{
		UserID:          userID,
		City:            "Unknown",
		Seen:            make(map[int64]struct{}),
		Skills:          make(map[string]struct{}),
		Knowledges:      make(map[string]struct{}),
		Tools:           make(map[string]struct{}),
		Languages:       make(map[string]struct{}),
		PreferredCities: make(map[string]struct{}),
		SkillWeights:    make(map[string]float64),
		SkillCounts:     make(map[string]float64),
		Social:          snap.SocialGraph[userID],
		SocialInfluence: snap.SocialInfluence[userID],
	}
	if profile.Social == nil {
		profile.Social = map[int64]struct{}{}
	}

	interactions := snap.InteractionsByUser[userID]
	if len(interactions) == 0 {
		return profile
	}

	// Sample the first N distinct positively-rated videos in interaction
	// order; the full seen set still drives exclusion.
	sampleSize := pb.config.ProfileSampleSize
	sample := make([]int64, 0, sampleSize)
	sampled := make(map[int64]struct{}, sampleSize)
	for _, it := range interactions {
		profile.Seen[it.VideoID] = struct{}{}
		if it.Rating < 3 {
			continue
		}
		if _, ok := sampled[it.VideoID]; ok {
			continue
		}
		sampled[it.VideoID] = struct{}{}
		if len(sample) < sampleSize {
			sample = append(sample, it.VideoID)
		}
	}

	for _, videoID := range sample {
		for skill := range snap.SkillSets[videoID] {
			profile.Skills[skill] = struct{}{}
			profile.SkillCounts[skill]++
		}
		for knowledge := range snap.KnowledgeSets[videoID] {
			profile.Knowledges[knowledge] = struct{}{}
		}
		for tool := range snap.ToolSets[videoID] {
			profile.Tools[tool] = struct{}{}
		}
		for language := range snap.LanguageSets[videoID] {
			profile.Languages[language] = struct{}{}
		}

		if v, ok := snap.VideoByID[videoID]; ok && v.City != "" && v.City != "Unknown" {
			profile.PreferredCities[v.City] = struct{}{}
		}
	}

	var total, sumSquares float64
	for _, count := range profile.SkillCounts {
		total += count
		sumSquares += count * count
	}
	if total > 0 {
		for skill, count := range profile.SkillCounts {
			profile.SkillWeights[skill] = count / total
		}
		profile.SkillNorm = math.Sqrt(sumSquares)
	}

	return profile
}
