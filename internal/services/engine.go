package services

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/pkg/models"
)

// RecommendationEngine is the public face of the ranking core. It owns
// the bandits, which live across snapshot reloads so learned weights are
// never thrown away with the catalog.
type RecommendationEngine struct {
	data     *DataService
	features *FeatureComputer
	composer *FeedComposer
	selector *PoolSelector
	bandits  map[models.SlotType]*LinUCBBandit
	config   *config.Config
	logger   *logrus.Logger

	reloadMu sync.Mutex
}

func NewRecommendationEngine(
	db DatabaseQuerier,
	cfg *config.Config,
	logger *logrus.Logger,
) *RecommendationEngine {
	recCfg := &cfg.Recommendation
	banditCfg := recCfg.Bandit

	bandits := map[models.SlotType]*LinUCBBandit{
		models.SlotVMP: NewLinUCBBandit(banditCfg.Features, banditCfg.VMP.Alpha, banditCfg.VMP.Beta, banditCfg.Lambda, banditCfg.Ridge),
		models.SlotAU:  NewLinUCBBandit(banditCfg.Features, banditCfg.AU.Alpha, banditCfg.AU.Beta, banditCfg.Lambda, banditCfg.Ridge),
		models.SlotNU:  NewLinUCBBandit(banditCfg.Features, banditCfg.NU.Alpha, banditCfg.NU.Beta, banditCfg.Lambda, banditCfg.Ridge),
	}

	features := NewFeatureComputer(recCfg, logger)
	profiles := NewProfileBuilder(recCfg, logger)
	selector := NewPoolSelector(features, bandits, recCfg, logger)
	composer := NewFeedComposer(profiles, selector, recCfg, logger)
	data := NewDataService(db, cfg, features, logger)

	return &RecommendationEngine{
		data:     data,
		features: features,
		composer: composer,
		selector: selector,
		bandits:  bandits,
		config:   cfg,
		logger:   logger,
	}
}

// Data exposes the snapshot store, mainly for health checks.
func (e *RecommendationEngine) Data() *DataService {
	return e.data
}

// Reload rebuilds the catalog snapshot. Reloads are serialized;
// concurrent feed requests keep using the previous snapshot until the
// swap.
func (e *RecommendationEngine) Reload(ctx context.Context) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	return e.data.Load(ctx)
}

// Feed composes one feed page for a user. The snapshot must have been
// loaded at least once.
func (e *RecommendationEngine) Feed(ctx context.Context, req *models.FeedRequest) ([]models.FeedEntry, *models.FeedMetrics, error) {
	snap := e.data.Snapshot()
	if snap == nil {
		if err := e.Reload(ctx); err != nil {
			return nil, nil, fmt.Errorf("no catalog snapshot available: %w", err)
		}
		snap = e.data.Snapshot()
	}

	entries, metrics := e.composer.Compose(snap, req)
	return entries, metrics, nil
}

// FlowFeed returns challenges only, ordered by recency-weighted random
// score, excluding flows the user has already seen.
func (e *RecommendationEngine) FlowFeed(ctx context.Context, req *models.FeedRequest) ([]*models.Flow, error) {
	snap := e.data.Snapshot()
	if snap == nil {
		if err := e.Reload(ctx); err != nil {
			return nil, fmt.Errorf("no catalog snapshot available: %w", err)
		}
		snap = e.data.Snapshot()
	}

	size := req.Size
	if size <= 0 {
		size = e.config.Recommendation.FeedSize
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	seen := e.data.SeenFlows(ctx, req.UserID)
	excluded := make(map[int64]struct{}, len(req.ExcludedIDs))
	for _, id := range req.ExcludedIDs {
		excluded[id] = struct{}{}
	}

	type scoredFlow struct {
		flow  *models.Flow
		score float64
	}
	candidates := make([]scoredFlow, 0, len(snap.Flows))
	for _, f := range snap.Flows {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		if _, ok := excluded[f.ID]; ok {
			continue
		}
		score := rng.Float64()*40 + temporalScore(f.DaysSinceCreation)*60
		candidates = append(candidates, scoredFlow{flow: f, score: score})
	}

	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	if len(candidates) > size {
		candidates = candidates[:size]
	}

	flows := make([]*models.Flow, len(candidates))
	for i, c := range candidates {
		flows[i] = c.flow
	}
	return flows, nil
}

// Reward feeds one observed outcome back into a pool's bandit. The
// context must be the vector the item was scored with.
func (e *RecommendationEngine) Reward(pool models.SlotType, context []float64, reward float64) error {
	bandit, ok := e.bandits[pool]
	if !ok {
		return fmt.Errorf("no bandit for pool %s", pool)
	}
	if err := bandit.Update(context, reward); err != nil {
		return fmt.Errorf("bandit update failed for pool %s: %w", pool, err)
	}
	return nil
}

// BanditStats reports reward statistics per pool.
func (e *RecommendationEngine) BanditStats() map[models.SlotType]BanditStats {
	stats := make(map[models.SlotType]BanditStats, len(e.bandits))
	for slot, bandit := range e.bandits {
		stats[slot] = bandit.Stats()
	}
	return stats
}

func temporalScore(days float64) float64 {
	return math.Exp(-days / temporalHalfLifeDays)
}
