package services

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/pkg/models"
)

const (
	// contextFeatures is the dimensionality of the bandit context vector.
	contextFeatures = 18

	// ultraNewDays marks content fresh enough to get the temporal boost.
	ultraNewDays = 30.0

	temporalHalfLifeDays = 28.0
	maxTagsPerItem       = 15.0
)

// FeatureComputer derives per-item scores at snapshot build time and
// assembles bandit context vectors at request time.
type FeatureComputer struct {
	config *config.RecommendationConfig
	logger *logrus.Logger
}

func NewFeatureComputer(cfg *config.RecommendationConfig, logger *logrus.Logger) *FeatureComputer {
	return &FeatureComputer{config: cfg, logger: logger}
}

// ComputeScores fills in the derived scores of every video in the snapshot.
// Normalized metrics divide by the snapshot maximum and are zero when the
// maximum is zero, so a fresh catalog never produces NaNs.
func (fc *FeatureComputer) ComputeScores(snap *Snapshot) {
	var maxViews, maxRating, maxConnections float64
	var maxRatingCount, maxLikeCount, maxExhibitedCount float64

	for _, v := range snap.Videos {
		maxViews = math.Max(maxViews, float64(v.Views))
		maxRating = math.Max(maxRating, v.AvgRating)
		maxConnections = math.Max(maxConnections, float64(v.ConnectionCount))
		maxRatingCount = math.Max(maxRatingCount, float64(v.RatingCount))
		maxLikeCount = math.Max(maxLikeCount, float64(v.LikeCount))
		maxExhibitedCount = math.Max(maxExhibitedCount, float64(v.ExhibitedCount))
	}

	rawRarities := make([]float64, len(snap.Videos))
	var maxRarity float64

	for i, v := range snap.Videos {
		s := &v.Scores

		s.ViewsNorm = normalize(float64(v.Views), maxViews)
		s.RatingNorm = normalize(v.AvgRating, maxRating)
		s.ConnectionsNorm = normalize(float64(v.ConnectionCount), maxConnections)
		s.RatingCountNorm = normalize(float64(v.RatingCount), maxRatingCount)
		s.LikeCountNorm = normalize(float64(v.LikeCount), maxLikeCount)
		s.ExhibitedCountNorm = normalize(float64(v.ExhibitedCount), maxExhibitedCount)

		s.Engagement = s.ViewsNorm*0.35 + s.RatingNorm*0.40 + s.ConnectionsNorm*0.25

		s.Temporal = math.Exp(-v.DaysSinceCreation / temporalHalfLifeDays)
		s.NewBoost = 1.0
		if v.DaysSinceCreation <= ultraNewDays {
			s.NewBoost = 1.5
		}

		ratingWeight := float64(v.RatingCount) / (float64(v.RatingCount) + 10)
		s.Quality = v.AvgRating*ratingWeight*0.7 + math.Log1p(float64(v.ConnectionCount))*0.3

		s.Popularity = math.Log1p(float64(v.Views))*0.40 +
			v.AvgRating*0.35 +
			math.Log1p(float64(v.ConnectionCount))*0.25

		totalTags := len(v.Skills) + len(v.Knowledges) + len(v.Tools)
		s.DiversitySkills = math.Min(1, float64(totalTags)/maxTagsPerItem)

		if len(v.Skills) > 0 {
			var sum float64
			for _, skill := range v.Skills {
				sum += 1.0 / float64(snap.SkillCounts[skill]+1)
			}
			rawRarities[i] = sum / float64(len(v.Skills))
			maxRarity = math.Max(maxRarity, rawRarities[i])
		}

		s.PassesQualityGate = v.AvgRating >= 3.0 ||
			v.Views >= 20 ||
			v.ConnectionCount >= 2 ||
			v.RatingCount >= 2
	}

	for i, v := range snap.Videos {
		v.Scores.SkillRarity = normalize(rawRarities[i], maxRarity)
	}

	fc.logger.Info("Derived scores computed",
		"videos", len(snap.Videos), "max_views", maxViews)
}

// ContextVector assembles the bandit context for one candidate video.
// The last dimension is uniform noise from the request rng, so identical
// seeds reproduce identical vectors.
func (fc *FeatureComputer) ContextVector(
	v *models.Video,
	snap *Snapshot,
	profile *models.UserProfile,
	rng *rand.Rand,
) []float64 {
	s := &v.Scores
	x := make([]float64, contextFeatures)

	x[0] = s.Engagement
	x[1] = s.Temporal * s.NewBoost
	x[2] = s.Quality
	x[3] = s.Popularity
	x[4] = s.DiversitySkills
	x[5] = fc.skillSimilarity(v, snap, profile)
	x[6] = fc.extendedMatch(v, snap, profile) / 100.0
	if _, ok := profile.PreferredCities[v.City]; ok {
		x[7] = 1
	}
	if _, ok := profile.Social[v.CreatorID]; ok {
		x[8] = 1
	}
	x[9] = math.Log1p(float64(v.Views)) / 10.0
	x[10] = v.AvgRating / 5.0
	x[11] = s.SkillRarity
	if s.PassesQualityGate {
		x[12] = 1
	}
	x[13] = profile.SocialInfluence
	x[14] = s.RatingCountNorm
	x[15] = s.LikeCountNorm
	x[16] = s.ExhibitedCountNorm
	x[17] = rng.Float64() * 0.3

	return x
}

// ContextMatrix builds one context vector per candidate.
func (fc *FeatureComputer) ContextMatrix(
	videos []*models.Video,
	snap *Snapshot,
	profile *models.UserProfile,
	rng *rand.Rand,
) [][]float64 {
	contexts := make([][]float64, len(videos))
	for i, v := range videos {
		contexts[i] = fc.ContextVector(v, snap, profile, rng)
	}
	return contexts
}

// skillSimilarity blends cosine similarity between the user's skill
// profile and the video's skill set with a weighted overlap of the user's
// most frequent skills. Users without a skill profile get a neutral 0.5;
// videos without skills get a weak 0.3.
func (fc *FeatureComputer) skillSimilarity(
	v *models.Video,
	snap *Snapshot,
	profile *models.UserProfile,
) float64 {
	if profile.SkillNorm == 0 {
		return 0.5
	}

	skills := snap.SkillSets[v.ID]
	if len(skills) == 0 {
		return 0.3
	}

	var dot, overlap float64
	for skill := range skills {
		dot += profile.SkillCounts[skill]
		overlap += profile.SkillWeights[skill]
	}

	cosine := dot / (profile.SkillNorm * math.Sqrt(float64(len(skills))))
	sim := cosine*0.6 + overlap*0.4

	return math.Max(0, math.Min(1, sim))
}

// extendedMatch scores attribute overlap between user preferences and a
// video, weighting skills over knowledges over tools over languages.
// Capped at 100.
func (fc *FeatureComputer) extendedMatch(
	v *models.Video,
	snap *Snapshot,
	profile *models.UserProfile,
) float64 {
	var score float64

	score += float64(intersectionSize(snap.SkillSets[v.ID], profile.Skills)) * 15
	score += float64(intersectionSize(snap.KnowledgeSets[v.ID], profile.Knowledges)) * 12
	score += float64(intersectionSize(snap.ToolSets[v.ID], profile.Tools)) * 10
	score += float64(intersectionSize(snap.LanguageSets[v.ID], profile.Languages)) * 8

	return math.Min(score, 100)
}

func intersectionSize(a map[string]struct{}, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalize(value, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return value / max
}
