package services

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/pkg/models"
)

// FeedComposer assembles an infinite-scroll page by tiling the slot
// pattern over the requested size and filling each slot from its pool.
// A feed that cannot be filled completely comes back short instead of
// failing.
type FeedComposer struct {
	profiles *ProfileBuilder
	selector *PoolSelector
	config   *config.RecommendationConfig
	logger   *logrus.Logger
}

func NewFeedComposer(
	profiles *ProfileBuilder,
	selector *PoolSelector,
	cfg *config.RecommendationConfig,
	logger *logrus.Logger,
) *FeedComposer {
	return &FeedComposer{
		profiles: profiles,
		selector: selector,
		config:   cfg,
		logger:   logger,
	}
}

// Compose builds one feed page against the given snapshot. The request
// seed makes the whole composition reproducible; a zero seed derives one
// from the clock.
func (fc *FeedComposer) Compose(snap *Snapshot, req *models.FeedRequest) ([]models.FeedEntry, *models.FeedMetrics) {
	start := time.Now()

	size := req.Size
	if size <= 0 {
		size = fc.config.FeedSize
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	profile := fc.profiles.Build(snap, req.UserID)

	excluded := make(map[int64]struct{}, len(profile.Seen)+len(req.ExcludedIDs))
	for id := range profile.Seen {
		excluded[id] = struct{}{}
	}
	for _, id := range req.ExcludedIDs {
		excluded[id] = struct{}{}
	}

	st := newCompositionState(snap, profile, excluded, fc.config.CreatorWindow, rng)

	metrics := &models.FeedMetrics{
		TypeDistribution: make(map[string]int),
		PoolSizes:        make(map[models.SlotType]int),
		Relaxations:      make(map[models.SlotType]int),
	}
	for _, slot := range []models.SlotType{models.SlotVMP, models.SlotAU, models.SlotNU, models.SlotFW} {
		metrics.PoolSizes[slot] = fc.selector.EligibleCount(slot, st)
	}

	entries := make([]models.FeedEntry, 0, size)
	newContent := 0
	emptyCycles := 0

	for len(entries) < size && emptyCycles < 2 {
		before := len(entries)

		for _, slot := range models.DefaultSlotPattern {
			if len(entries) >= size {
				break
			}

			if slot == models.SlotFW && req.IncludeFlows {
				flow, level, ok := fc.selector.PickFlow(st)
				if !ok {
					continue
				}
				if level > relaxNone {
					metrics.Relaxations[models.SlotFW]++
				}
				st.usedFlows[flow.ID] = struct{}{}
				st.accept(flow.CreatorID, nil)
				entries = append(entries, models.FeedEntry{
					Position:  len(entries) + 1,
					ItemID:    flow.ID,
					Type:      "challenge",
					Slot:      models.SlotFW,
					CreatorID: flow.CreatorID,
					VideoURL:  flow.VideoURL,
				})
				metrics.TypeDistribution["challenge"]++
				if flow.DaysSinceCreation <= fc.config.NewContentDays {
					newContent++
				}
				continue
			}

			videoSlot := slot
			if videoSlot == models.SlotFW {
				// Flows disabled for this request; backfill with the
				// strongest general pool.
				videoSlot = models.SlotVMP
			}

			video, level, ok := fc.selector.PickVideo(videoSlot, st)
			if !ok {
				continue
			}
			if level > relaxNone {
				metrics.Relaxations[videoSlot]++
			}
			st.usedVideos[video.ID] = struct{}{}
			st.accept(video.CreatorID, snap.SkillSets[video.ID])
			entries = append(entries, models.FeedEntry{
				Position:  len(entries) + 1,
				ItemID:    video.ID,
				Type:      "resume",
				Slot:      videoSlot,
				CreatorID: video.CreatorID,
				VideoURL:  video.VideoURL,
			})
			metrics.TypeDistribution["resume"]++
			if video.DaysSinceCreation <= fc.config.NewContentDays {
				newContent++
			}
		}

		if len(entries) == before {
			emptyCycles++
		} else {
			emptyCycles = 0
		}
	}

	metrics.TotalItems = len(entries)
	metrics.UniqueCreators = len(st.usedCreators)
	if len(entries) > 0 {
		metrics.NewContentRatio = float64(newContent) / float64(len(entries))
	}
	metrics.BanditStats = fc.selector.RewardAverages()
	metrics.ExecutionSeconds = time.Since(start).Seconds()

	if len(entries) < size {
		fc.logger.Warn("Feed came back short",
			"user_id", req.UserID, "requested", size, "composed", len(entries))
	}

	return entries, metrics
}

// RewardAverages exposes per-pool bandit reward averages for metrics.
func (ps *PoolSelector) RewardAverages() map[string]float64 {
	averages := make(map[string]float64, len(ps.bandits))
	for slot, bandit := range ps.bandits {
		stats := bandit.Stats()
		averages[string(slot)+"_avg_reward"] = stats.AverageReward
		averages[string(slot)+"_selections"] = float64(stats.TotalSelections)
	}
	return averages
}
