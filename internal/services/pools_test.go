package services

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/pkg/models"
)

func newTestSelector(cfg *config.RecommendationConfig) *PoolSelector {
	features := NewFeatureComputer(cfg, testLogger())
	bandits := map[models.SlotType]*LinUCBBandit{
		models.SlotVMP: NewLinUCBBandit(cfg.Bandit.Features, cfg.Bandit.VMP.Alpha, cfg.Bandit.VMP.Beta, cfg.Bandit.Lambda, cfg.Bandit.Ridge),
		models.SlotAU:  NewLinUCBBandit(cfg.Bandit.Features, cfg.Bandit.AU.Alpha, cfg.Bandit.AU.Beta, cfg.Bandit.Lambda, cfg.Bandit.Ridge),
		models.SlotNU:  NewLinUCBBandit(cfg.Bandit.Features, cfg.Bandit.NU.Alpha, cfg.Bandit.NU.Beta, cfg.Bandit.Lambda, cfg.Bandit.Ridge),
	}
	return NewPoolSelector(features, bandits, cfg, testLogger())
}

func newTestState(snap *Snapshot, excluded map[int64]struct{}, windowSize int, seed int64) *compositionState {
	if excluded == nil {
		excluded = map[int64]struct{}{}
	}
	profile := NewProfileBuilder(testRecConfig(), testLogger()).Build(snap, 1)
	return newCompositionState(snap, profile, excluded, windowSize, rand.New(rand.NewSource(seed)))
}

func TestCompositionState_SlidingCreatorWindow(t *testing.T) {
	st := newTestState(emptySnapshot(), nil, 2, 1)

	st.accept(10, nil)
	st.accept(11, nil)
	assert.True(t, st.creatorBlocked(10))
	assert.True(t, st.creatorBlocked(11))

	// A third accept evicts the oldest creator.
	st.accept(12, nil)
	assert.False(t, st.creatorBlocked(10))
	assert.True(t, st.creatorBlocked(11))
	assert.True(t, st.creatorBlocked(12))
}

func TestCompositionState_BringsNewSkill(t *testing.T) {
	st := newTestState(emptySnapshot(), nil, 12, 1)

	// Under three used skills any item qualifies.
	assert.True(t, st.bringsNewSkill(toSet([]string{"go"})))

	st.accept(1, toSet([]string{"go", "sql", "react"}))

	assert.False(t, st.bringsNewSkill(toSet([]string{"go", "sql"})))
	assert.True(t, st.bringsNewSkill(toSet([]string{"go", "rust"})))
	assert.False(t, st.bringsNewSkill(nil))
}

func TestEligibleVideos_PoolRules(t *testing.T) {
	cfg := testRecConfig()
	ps := newTestSelector(cfg)

	snap := emptySnapshot()
	gated := addVideo(snap, &models.Video{ID: 1, CreatorID: 10, Views: 100, DaysSinceCreation: 60})
	fresh := addVideo(snap, &models.Video{ID: 2, CreatorID: 11, DaysSinceCreation: 10})
	NewFeatureComputer(cfg, testLogger()).ComputeScores(snap)
	require.True(t, gated.Scores.PassesQualityGate)
	require.False(t, fresh.Scores.PassesQualityGate)

	st := newTestState(snap, nil, 12, 1)

	vmp := ps.eligibleVideos(models.SlotVMP, st, relaxNone)
	require.Len(t, vmp, 1)
	assert.Equal(t, int64(1), vmp[0].ID)

	nu := ps.eligibleVideos(models.SlotNU, st, relaxNone)
	require.Len(t, nu, 1)
	assert.Equal(t, int64(2), nu[0].ID)

	au := ps.eligibleVideos(models.SlotAU, st, relaxNone)
	require.Len(t, au, 1)
	assert.Equal(t, int64(1), au[0].ID)

	// Window relaxation never loosens the pool rules themselves.
	assert.Len(t, ps.eligibleVideos(models.SlotVMP, st, relaxWindow), 1)
	assert.Len(t, ps.eligibleVideos(models.SlotNU, st, relaxWindow), 1)
}

func TestPickVideo_AURequiresQualityGate(t *testing.T) {
	cfg := testRecConfig()
	ps := newTestSelector(cfg)

	snap := emptySnapshot()
	weak := addVideo(snap, &models.Video{ID: 1, CreatorID: 10, Views: 5, AvgRating: 2.0})
	NewFeatureComputer(cfg, testLogger()).ComputeScores(snap)
	require.False(t, weak.Scores.PassesQualityGate)

	st := newTestState(snap, nil, 12, 1)

	// The only candidate fails every gate clause, so the slot stays empty.
	_, _, ok := ps.PickVideo(models.SlotAU, st)
	assert.False(t, ok)

	strong := addVideo(snap, &models.Video{ID: 2, CreatorID: 11, Views: 100, AvgRating: 4.0})
	NewFeatureComputer(cfg, testLogger()).ComputeScores(snap)

	v, level, ok := ps.PickVideo(models.SlotAU, st)
	require.True(t, ok)
	assert.Equal(t, strong.ID, v.ID)
	assert.Equal(t, relaxNone, level)
}

func TestScoreCandidates_VMPFavorsHigherViews(t *testing.T) {
	cfg := testRecConfig()
	ps := newTestSelector(cfg)

	snap := emptySnapshot()
	low := addVideo(snap, &models.Video{ID: 1, CreatorID: 10, Views: 25, AvgRating: 4, RatingCount: 5, ConnectionCount: 3})
	high := addVideo(snap, &models.Video{ID: 2, CreatorID: 11, Views: 250, AvgRating: 4, RatingCount: 5, ConnectionCount: 3})
	NewFeatureComputer(cfg, testLogger()).ComputeScores(snap)

	st := newTestState(snap, nil, 12, 5)

	scores := ps.scoreCandidates(models.SlotVMP, []*models.Video{low, high}, st)
	assert.Greater(t, scores[1], scores[0])
}

func TestEligibleVideos_ExcludedAndUsed(t *testing.T) {
	cfg := testRecConfig()
	ps := newTestSelector(cfg)
	snap := richSnapshot(5, 0)

	st := newTestState(snap, map[int64]struct{}{1: {}}, 12, 1)
	st.usedVideos[2] = struct{}{}

	candidates := ps.eligibleVideos(models.SlotAU, st, relaxNone)
	for _, v := range candidates {
		assert.NotEqual(t, int64(1), v.ID)
		assert.NotEqual(t, int64(2), v.ID)
	}
}

func TestPickVideo_RelaxesCreatorWindow(t *testing.T) {
	cfg := testRecConfig()
	ps := newTestSelector(cfg)

	snap := emptySnapshot()
	addVideo(snap, &models.Video{ID: 1, CreatorID: 10, Views: 100})
	NewFeatureComputer(cfg, testLogger()).ComputeScores(snap)

	st := newTestState(snap, nil, 12, 1)
	st.accept(10, nil)

	v, level, ok := ps.PickVideo(models.SlotVMP, st)
	require.True(t, ok)
	assert.Equal(t, int64(1), v.ID)
	assert.Equal(t, relaxWindow, level)
}

func TestPickVideo_ExploreFillsExhaustedPool(t *testing.T) {
	cfg := testRecConfig()
	ps := newTestSelector(cfg)

	snap := emptySnapshot()
	fresh := addVideo(snap, &models.Video{ID: 1, CreatorID: 10, Views: 100, DaysSinceCreation: 5})
	old := addVideo(snap, &models.Video{ID: 2, CreatorID: 11, Views: 100, DaysSinceCreation: 60})
	NewFeatureComputer(cfg, testLogger()).ComputeScores(snap)

	// Excluding every new item empties the NU pool; the slot falls back
	// to a uniform draw over the gated remainder.
	st := newTestState(snap, map[int64]struct{}{fresh.ID: {}}, 12, 1)

	v, level, ok := ps.PickVideo(models.SlotNU, st)
	require.True(t, ok)
	assert.Equal(t, old.ID, v.ID)
	assert.Equal(t, relaxExplore, level)
}

func TestPickVideo_FailsWhenCatalogUsedUp(t *testing.T) {
	cfg := testRecConfig()
	ps := newTestSelector(cfg)

	snap := richSnapshot(2, 0)
	st := newTestState(snap, nil, 12, 1)
	st.usedVideos[1] = struct{}{}
	st.usedVideos[2] = struct{}{}

	_, level, ok := ps.PickVideo(models.SlotVMP, st)
	assert.False(t, ok)
	assert.Equal(t, relaxExplore, level)
}

func TestPickFlow_RelaxesWindowOnly(t *testing.T) {
	cfg := testRecConfig()
	ps := newTestSelector(cfg)

	snap := emptySnapshot()
	addFlow(snap, &models.Flow{ID: 100, CreatorID: 50, DaysSinceCreation: 5})

	st := newTestState(snap, nil, 12, 1)
	st.accept(50, nil)

	f, level, ok := ps.PickFlow(st)
	require.True(t, ok)
	assert.Equal(t, int64(100), f.ID)
	assert.Equal(t, relaxWindow, level)

	st.usedFlows[100] = struct{}{}
	_, _, ok = ps.PickFlow(st)
	assert.False(t, ok)
}

func TestTopKByScore(t *testing.T) {
	items := []string{"a", "b", "c", "d"}
	scores := []float64{1, 4, 2, 3}

	top, topScores := topKByScore(items, scores, 2)
	assert.Equal(t, []string{"b", "d"}, top)
	assert.Equal(t, []float64{4, 3}, topScores)

	// k larger than the candidate set returns everything.
	all, _ := topKByScore(items, scores, 10)
	assert.Len(t, all, 4)
}

func TestWeightedDrawOne(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	// A single positive weight always wins.
	for i := 0; i < 20; i++ {
		assert.Equal(t, 1, weightedDrawOne([]float64{0, 5, 0}, rng))
	}

	// All non-positive weights fall back to a uniform draw.
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		idx := weightedDrawOne([]float64{0, 0, 0}, rng)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, 3)
		seen[idx] = true
	}
	assert.Len(t, seen, 3)
}

func TestWeightedDrawOne_FavorsHeavyWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(9))

	counts := make([]int, 2)
	for i := 0; i < 2000; i++ {
		counts[weightedDrawOne([]float64{10, 0.1}, rng)]++
	}
	assert.Greater(t, counts[0], counts[1]*10)
}
