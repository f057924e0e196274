package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/pkg/models"
)

func newTestComposer(cfg *config.RecommendationConfig) (*FeedComposer, *PoolSelector) {
	selector := newTestSelector(cfg)
	profiles := NewProfileBuilder(cfg, testLogger())
	return NewFeedComposer(profiles, selector, cfg, testLogger()), selector
}

func TestCompose_FillsRequestedSize(t *testing.T) {
	cfg := testRecConfig()
	composer, _ := newTestComposer(cfg)
	snap := richSnapshot(120, 10)

	entries, metrics := composer.Compose(snap, &models.FeedRequest{
		UserID: 1, Size: 24, IncludeFlows: true, Seed: 42,
	})

	require.Len(t, entries, 24)
	assert.Equal(t, 24, metrics.TotalItems)

	for i, entry := range entries {
		assert.Equal(t, i+1, entry.Position)
	}
}

func TestCompose_ExcludedFreshContentFallsBackToExplore(t *testing.T) {
	cfg := testRecConfig()
	composer, _ := newTestComposer(cfg)
	snap := richSnapshot(120, 0)

	// Excluding every new item empties the NU pool while plenty of gated
	// older items remain: the NU slots must still be filled.
	var excluded []int64
	for _, v := range snap.Videos {
		if v.DaysSinceCreation <= cfg.NewContentDays {
			excluded = append(excluded, v.ID)
		}
	}
	require.NotEmpty(t, excluded)
	require.Greater(t, len(snap.Videos)-len(excluded), 24)

	entries, metrics := composer.Compose(snap, &models.FeedRequest{
		UserID: 1, Size: 24, ExcludedIDs: excluded, Seed: 11,
	})

	require.Len(t, entries, 24)
	assert.Greater(t, metrics.Relaxations[models.SlotNU], 0)
}

func TestCompose_NoDuplicateItems(t *testing.T) {
	cfg := testRecConfig()
	composer, _ := newTestComposer(cfg)
	snap := richSnapshot(120, 10)

	entries, _ := composer.Compose(snap, &models.FeedRequest{
		UserID: 1, Size: 24, IncludeFlows: true, Seed: 7,
	})

	seen := map[string]map[int64]bool{"resume": {}, "challenge": {}}
	for _, entry := range entries {
		assert.False(t, seen[entry.Type][entry.ItemID], "duplicate %s %d", entry.Type, entry.ItemID)
		seen[entry.Type][entry.ItemID] = true
	}
}

func TestCompose_PatternOrder(t *testing.T) {
	cfg := testRecConfig()
	composer, _ := newTestComposer(cfg)
	snap := richSnapshot(120, 10)

	entries, _ := composer.Compose(snap, &models.FeedRequest{
		UserID: 1, Size: 12, IncludeFlows: true, Seed: 99,
	})
	require.Len(t, entries, 12)

	// Ample pools mean no slot falls back, so the tiled pattern holds.
	for i, entry := range entries {
		expected := models.DefaultSlotPattern[i%len(models.DefaultSlotPattern)]
		assert.Equal(t, expected, entry.Slot, "position %d", i+1)
		if expected == models.SlotFW {
			assert.Equal(t, "challenge", entry.Type)
		} else {
			assert.Equal(t, "resume", entry.Type)
		}
	}
}

func TestCompose_FlowSlotsBackfillWhenDisabled(t *testing.T) {
	cfg := testRecConfig()
	composer, _ := newTestComposer(cfg)
	snap := richSnapshot(120, 10)

	entries, metrics := composer.Compose(snap, &models.FeedRequest{
		UserID: 1, Size: 24, IncludeFlows: false, Seed: 5,
	})

	require.Len(t, entries, 24)
	for _, entry := range entries {
		assert.Equal(t, "resume", entry.Type)
		assert.NotEqual(t, models.SlotFW, entry.Slot)
	}
	assert.Zero(t, metrics.TypeDistribution["challenge"])
}

func TestCompose_DeterministicWithSeed(t *testing.T) {
	cfg := testRecConfig()
	composer, _ := newTestComposer(cfg)
	snap := richSnapshot(80, 8)

	req := &models.FeedRequest{UserID: 1, Size: 18, IncludeFlows: true, Seed: 1234}
	a, _ := composer.Compose(snap, req)
	b, _ := composer.Compose(snap, req)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ItemID, b[i].ItemID, "position %d", i+1)
		assert.Equal(t, a[i].Slot, b[i].Slot)
	}
}

func TestCompose_RespectsExcludedIDs(t *testing.T) {
	cfg := testRecConfig()
	composer, _ := newTestComposer(cfg)
	snap := richSnapshot(60, 0)

	excluded := []int64{1, 2, 3, 4, 5}
	entries, _ := composer.Compose(snap, &models.FeedRequest{
		UserID: 1, Size: 12, ExcludedIDs: excluded, Seed: 3,
	})

	for _, entry := range entries {
		for _, id := range excluded {
			assert.NotEqual(t, id, entry.ItemID)
		}
	}
}

func TestCompose_ExcludesSeenVideos(t *testing.T) {
	cfg := testRecConfig()
	composer, _ := newTestComposer(cfg)
	snap := richSnapshot(60, 0)
	snap.InteractionsByUser[1] = interactionsFor(10, 11, 12)

	entries, _ := composer.Compose(snap, &models.FeedRequest{UserID: 1, Size: 12, Seed: 3})

	for _, entry := range entries {
		assert.NotContains(t, []int64{10, 11, 12}, entry.ItemID)
	}
}

func TestCompose_CreatorDiversityWindow(t *testing.T) {
	cfg := testRecConfig()
	composer, _ := newTestComposer(cfg)
	snap := richSnapshot(150, 12)

	entries, _ := composer.Compose(snap, &models.FeedRequest{
		UserID: 1, Size: 24, IncludeFlows: true, Seed: 11,
	})

	// With ample distinct creators, no creator repeats inside any window
	// of CreatorWindow consecutive entries.
	for i := range entries {
		end := i + cfg.CreatorWindow
		if end > len(entries) {
			end = len(entries)
		}
		window := map[int64]bool{}
		for _, entry := range entries[i:end] {
			assert.False(t, window[entry.CreatorID], "creator %d repeats near position %d", entry.CreatorID, i+1)
			window[entry.CreatorID] = true
		}
	}
}

func TestCompose_ShortFeedNeverErrors(t *testing.T) {
	cfg := testRecConfig()
	composer, _ := newTestComposer(cfg)
	snap := richSnapshot(4, 0)

	entries, metrics := composer.Compose(snap, &models.FeedRequest{UserID: 1, Size: 24, Seed: 8})

	assert.Len(t, entries, 4)
	assert.Equal(t, 4, metrics.TotalItems)
}

func TestCompose_EmptyCatalog(t *testing.T) {
	cfg := testRecConfig()
	composer, _ := newTestComposer(cfg)

	entries, metrics := composer.Compose(emptySnapshot(), &models.FeedRequest{UserID: 1, Size: 24, Seed: 8})

	assert.Empty(t, entries)
	assert.Equal(t, 0, metrics.TotalItems)
	assert.Zero(t, metrics.NewContentRatio)
}

func TestCompose_Metrics(t *testing.T) {
	cfg := testRecConfig()
	composer, selector := newTestComposer(cfg)
	require.NoError(t, selector.bandits[models.SlotVMP].Update(make([]float64, contextFeatures), 1.0))

	snap := richSnapshot(120, 10)
	_, metrics := composer.Compose(snap, &models.FeedRequest{
		UserID: 1, Size: 24, IncludeFlows: true, Seed: 21,
	})

	assert.Equal(t, 24, metrics.TotalItems)
	assert.Greater(t, metrics.UniqueCreators, 0)
	assert.GreaterOrEqual(t, metrics.NewContentRatio, 0.0)
	assert.LessOrEqual(t, metrics.NewContentRatio, 1.0)
	assert.Contains(t, metrics.PoolSizes, models.SlotVMP)
	assert.Contains(t, metrics.PoolSizes, models.SlotFW)
	assert.Equal(t, 1.0, metrics.BanditStats["VMP_avg_reward"])
	assert.GreaterOrEqual(t, metrics.ExecutionSeconds, 0.0)
}

func TestCompose_DefaultSizeFromConfig(t *testing.T) {
	cfg := testRecConfig()
	cfg.FeedSize = 6
	composer, _ := newTestComposer(cfg)
	snap := richSnapshot(60, 6)

	entries, _ := composer.Compose(snap, &models.FeedRequest{UserID: 1, IncludeFlows: true, Seed: 2})
	assert.Len(t, entries, 6)
}
