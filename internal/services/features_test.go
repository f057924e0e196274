package services

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmix/talentmix/pkg/models"
)

func TestComputeScores_EmptyCatalogProducesNoNaNs(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())
	snap := emptySnapshot()
	addVideo(snap, &models.Video{ID: 1, CreatorID: 10})

	fc.ComputeScores(snap)

	s := snap.Videos[0].Scores
	assert.False(t, math.IsNaN(s.Engagement))
	assert.Equal(t, 0.0, s.ViewsNorm)
	assert.Equal(t, 0.0, s.RatingNorm)
	assert.Equal(t, 0.0, s.Engagement)
	assert.Equal(t, 0.0, s.SkillRarity)
}

func TestComputeScores_EngagementWeights(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())
	snap := emptySnapshot()
	addVideo(snap, &models.Video{ID: 1, Views: 100, AvgRating: 5, ConnectionCount: 10})
	addVideo(snap, &models.Video{ID: 2, Views: 50, AvgRating: 2.5, ConnectionCount: 5})

	fc.ComputeScores(snap)

	// The top video maxes every norm.
	assert.InDelta(t, 1.0, snap.VideoByID[1].Scores.Engagement, 1e-12)
	assert.InDelta(t, 0.5, snap.VideoByID[2].Scores.Engagement, 1e-12)
}

func TestComputeScores_ViewsNormMonotonic(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())
	snap := emptySnapshot()
	for i := 1; i <= 5; i++ {
		addVideo(snap, &models.Video{ID: int64(i), Views: i * 10})
	}

	fc.ComputeScores(snap)

	for i := int64(2); i <= 5; i++ {
		assert.Greater(t, snap.VideoByID[i].Scores.ViewsNorm, snap.VideoByID[i-1].Scores.ViewsNorm, "video %d", i)
	}
	assert.Equal(t, 1.0, snap.VideoByID[5].Scores.ViewsNorm)
}

func TestComputeScores_Idempotent(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())
	snap := richSnapshot(8, 2)

	first := make([]models.ItemScores, len(snap.Videos))
	for i, v := range snap.Videos {
		first[i] = v.Scores
	}

	fc.ComputeScores(snap)

	for i, v := range snap.Videos {
		assert.Equal(t, first[i], v.Scores, "video %d", v.ID)
	}
}

func TestComputeScores_QualityGateBoundaries(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())

	cases := []struct {
		name  string
		video models.Video
		pass  bool
	}{
		{"all below thresholds", models.Video{ID: 1, Views: 19, AvgRating: 2.9, ConnectionCount: 1, RatingCount: 1}, false},
		{"views at threshold", models.Video{ID: 2, Views: 20}, true},
		{"rating at threshold", models.Video{ID: 3, AvgRating: 3.0}, true},
		{"connections at threshold", models.Video{ID: 4, ConnectionCount: 2}, true},
		{"rating count at threshold", models.Video{ID: 5, RatingCount: 2}, true},
		{"fresh but unproven", models.Video{ID: 6, DaysSinceCreation: 1}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := emptySnapshot()
			v := tc.video
			addVideo(snap, &v)
			fc.ComputeScores(snap)
			assert.Equal(t, tc.pass, v.Scores.PassesQualityGate)
		})
	}
}

func TestComputeScores_NewBoostCutoff(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())
	snap := emptySnapshot()
	fresh := addVideo(snap, &models.Video{ID: 1, DaysSinceCreation: 30})
	stale := addVideo(snap, &models.Video{ID: 2, DaysSinceCreation: 30.1})

	fc.ComputeScores(snap)

	assert.Equal(t, 1.5, fresh.Scores.NewBoost)
	assert.Equal(t, 1.0, stale.Scores.NewBoost)
}

func TestComputeScores_SkillRarityNormalized(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())
	snap := emptySnapshot()
	rare := addVideo(snap, &models.Video{ID: 1, Skills: []string{"cobol"}})
	addVideo(snap, &models.Video{ID: 2, Skills: []string{"excel"}})
	addVideo(snap, &models.Video{ID: 3, Skills: []string{"excel"}})
	common := addVideo(snap, &models.Video{ID: 4, Skills: []string{"excel"}})

	fc.ComputeScores(snap)

	assert.InDelta(t, 1.0, rare.Scores.SkillRarity, 1e-12)
	assert.Less(t, common.Scores.SkillRarity, rare.Scores.SkillRarity)
}

func TestContextVector_Shape(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())
	snap := richSnapshot(5, 0)
	profile := emptyProfile(1)
	rng := rand.New(rand.NewSource(42))

	x := fc.ContextVector(snap.Videos[0], snap, profile, rng)

	require.Len(t, x, contextFeatures)
	assert.GreaterOrEqual(t, x[17], 0.0)
	assert.Less(t, x[17], 0.3)
}

func TestContextVector_DeterministicWithSameSeed(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())
	snap := richSnapshot(5, 0)
	profile := emptyProfile(1)

	a := fc.ContextVector(snap.Videos[2], snap, profile, rand.New(rand.NewSource(7)))
	b := fc.ContextVector(snap.Videos[2], snap, profile, rand.New(rand.NewSource(7)))

	assert.Equal(t, a, b)
}

func TestContextVector_CityAndSocialFlags(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())
	snap := richSnapshot(3, 0)
	rng := rand.New(rand.NewSource(1))

	profile := emptyProfile(1)
	profile.PreferredCities["Bogotá"] = struct{}{}
	profile.Social = map[int64]struct{}{snap.Videos[0].CreatorID: {}}

	x := fc.ContextVector(snap.Videos[0], snap, profile, rng)
	assert.Equal(t, 1.0, x[7])
	assert.Equal(t, 1.0, x[8])

	other := fc.ContextVector(snap.Videos[1], snap, profile, rng)
	assert.Equal(t, 0.0, other[8])
}

func TestSkillSimilarity_NeutralDefaults(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())
	snap := emptySnapshot()
	withSkills := addVideo(snap, &models.Video{ID: 1, Skills: []string{"go", "sql"}})
	noSkills := addVideo(snap, &models.Video{ID: 2})

	// No skill profile: neutral similarity regardless of the video.
	blank := emptyProfile(1)
	assert.Equal(t, 0.5, fc.skillSimilarity(withSkills, snap, blank))

	profiled := emptyProfile(1)
	profiled.SkillCounts = map[string]float64{"go": 3}
	profiled.SkillWeights = map[string]float64{"go": 1}
	profiled.SkillNorm = 3

	// A skill-less video gets the weak default.
	assert.Equal(t, 0.3, fc.skillSimilarity(noSkills, snap, profiled))

	// Full overlap lands inside the unit interval.
	sim := fc.skillSimilarity(withSkills, snap, profiled)
	assert.Greater(t, sim, 0.3)
	assert.LessOrEqual(t, sim, 1.0)
}

func TestExtendedMatch_WeightsAndCap(t *testing.T) {
	fc := NewFeatureComputer(testRecConfig(), testLogger())
	snap := emptySnapshot()
	v := addVideo(snap, &models.Video{
		ID:         1,
		Skills:     []string{"go", "sql", "python", "react", "docker"},
		Knowledges: []string{"backend", "data"},
		Tools:      []string{"git"},
		Languages:  []string{"es"},
	})

	profile := emptyProfile(1)
	profile.Skills = toSet([]string{"go"})
	profile.Knowledges = toSet([]string{"backend"})

	// One skill (15) plus one knowledge (12).
	assert.Equal(t, 27.0, fc.extendedMatch(v, snap, profile))

	profile.Skills = toSet(v.Skills)
	profile.Knowledges = toSet(v.Knowledges)
	profile.Tools = toSet(v.Tools)
	profile.Languages = toSet(v.Languages)

	// 5*15 + 2*12 + 10 + 8 exceeds the cap.
	assert.Equal(t, 100.0, fc.extendedMatch(v, snap, profile))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 0.0, normalize(5, 0))
	assert.Equal(t, 0.5, normalize(5, 10))
	assert.Equal(t, 1.0, normalize(10, 10))
}
