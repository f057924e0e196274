package services

import (
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/pkg/models"
)

// Relaxation levels applied in order when a slot cannot be filled under
// full constraints. The creator window goes first; once the pool's own
// eligibility rule exhausts, the slot falls back to a uniform draw over
// the quality-gated remainder. Ungated items never enter through
// relaxation.
const (
	relaxNone = iota
	relaxWindow
	relaxExplore
)

// compositionState carries the per-request diversity bookkeeping. It is
// local to one feed composition, so concurrent requests never share it.
type compositionState struct {
	snap    *Snapshot
	profile *models.UserProfile

	excluded     map[int64]struct{}
	usedVideos   map[int64]struct{}
	usedFlows    map[int64]struct{}
	usedSkills   map[string]struct{}
	usedCreators map[int64]struct{}

	window     []int64
	windowSet  map[int64]int
	windowSize int

	rng *rand.Rand
}

func newCompositionState(
	snap *Snapshot,
	profile *models.UserProfile,
	excluded map[int64]struct{},
	windowSize int,
	rng *rand.Rand,
) *compositionState {
	return &compositionState{
		snap:         snap,
		profile:      profile,
		excluded:     excluded,
		usedVideos:   make(map[int64]struct{}),
		usedFlows:    make(map[int64]struct{}),
		usedSkills:   make(map[string]struct{}),
		usedCreators: make(map[int64]struct{}),
		windowSet:    make(map[int64]int),
		windowSize:   windowSize,
		rng:          rng,
	}
}

func (st *compositionState) creatorBlocked(creatorID int64) bool {
	return st.windowSet[creatorID] > 0
}

// accept records an accepted entry: the creator joins the sliding window
// and the item's skills join the used set.
func (st *compositionState) accept(creatorID int64, skills map[string]struct{}) {
	st.usedCreators[creatorID] = struct{}{}
	st.window = append(st.window, creatorID)
	st.windowSet[creatorID]++
	if len(st.window) > st.windowSize {
		oldest := st.window[0]
		st.window = st.window[1:]
		st.windowSet[oldest]--
		if st.windowSet[oldest] == 0 {
			delete(st.windowSet, oldest)
		}
	}
	for skill := range skills {
		st.usedSkills[skill] = struct{}{}
	}
}

// bringsNewSkill reports whether an item adds at least one unseen skill.
// The constraint only kicks in once three skills are on the board.
func (st *compositionState) bringsNewSkill(skills map[string]struct{}) bool {
	if len(st.usedSkills) < 3 {
		return true
	}
	for skill := range skills {
		if _, ok := st.usedSkills[skill]; !ok {
			return true
		}
	}
	return false
}

// PoolSelector fills one feed slot at a time: it filters the snapshot to
// the slot's eligible candidates, scores them with the slot's bandit plus
// heuristic bonuses, and draws one winner by weighted sampling over the
// top candidates.
type PoolSelector struct {
	features *FeatureComputer
	bandits  map[models.SlotType]*LinUCBBandit
	config   *config.RecommendationConfig
	logger   *logrus.Logger
}

func NewPoolSelector(
	features *FeatureComputer,
	bandits map[models.SlotType]*LinUCBBandit,
	cfg *config.RecommendationConfig,
	logger *logrus.Logger,
) *PoolSelector {
	return &PoolSelector{
		features: features,
		bandits:  bandits,
		config:   cfg,
		logger:   logger,
	}
}

// PickVideo selects one video for a VMP, AU or NU slot, relaxing
// constraints step by step when the slot cannot be filled. The returned
// level reports how far relaxation went.
func (ps *PoolSelector) PickVideo(slot models.SlotType, st *compositionState) (*models.Video, int, bool) {
	for level := relaxNone; level <= relaxWindow; level++ {
		candidates := ps.eligibleVideos(slot, st, level)
		if len(candidates) == 0 {
			continue
		}

		scores := ps.scoreCandidates(slot, candidates, st)
		top, topScores := topKByScore(candidates, scores, ps.config.TopK)
		winner := top[weightedDrawOne(topScores, st.rng)]
		return winner, level, true
	}

	if v, ok := ps.pickExplore(st); ok {
		return v, relaxExplore, true
	}
	return nil, relaxExplore, false
}

// EligibleCount reports the size of a slot's fully constrained candidate
// set, for metrics.
func (ps *PoolSelector) EligibleCount(slot models.SlotType, st *compositionState) int {
	if slot == models.SlotFW {
		return len(ps.eligibleFlows(st, relaxNone))
	}
	return len(ps.eligibleVideos(slot, st, relaxNone))
}

func (ps *PoolSelector) eligibleVideos(slot models.SlotType, st *compositionState, level int) []*models.Video {
	candidates := make([]*models.Video, 0, len(st.snap.Videos))
	newContentDays := ps.config.NewContentDays

	for _, v := range st.snap.Videos {
		if _, ok := st.usedVideos[v.ID]; ok {
			continue
		}
		if _, ok := st.excluded[v.ID]; ok {
			continue
		}

		switch slot {
		case models.SlotVMP, models.SlotAU:
			if !v.Scores.PassesQualityGate {
				continue
			}
		case models.SlotNU:
			if v.DaysSinceCreation > newContentDays {
				continue
			}
		}

		if level < relaxWindow {
			if st.creatorBlocked(v.CreatorID) {
				continue
			}
			if !st.bringsNewSkill(st.snap.SkillSets[v.ID]) {
				continue
			}
		}

		candidates = append(candidates, v)
	}

	return candidates
}

func (ps *PoolSelector) scoreCandidates(slot models.SlotType, candidates []*models.Video, st *compositionState) []float64 {
	contexts := ps.features.ContextMatrix(candidates, st.snap, st.profile, st.rng)
	ucb := ps.bandits[slot].ScoreBatch(contexts, st.rng)

	scores := make([]float64, len(candidates))
	newContentDays := ps.config.NewContentDays

	for i, v := range candidates {
		s := &v.Scores
		isNew := v.DaysSinceCreation <= newContentDays

		switch slot {
		case models.SlotVMP:
			scores[i] = ucb[i] + s.Engagement*2.2 + s.Popularity*1.6 + s.Quality*1.8
			if isNew {
				scores[i] += 1.4
			}
		case models.SlotAU:
			scores[i] = ucb[i] + contexts[i][5]*2.8 + contexts[i][6]*2.5
			if isNew {
				scores[i] += 0.9
			}
		case models.SlotNU:
			scores[i] = ucb[i] + s.Temporal*2.5 + s.DiversitySkills*1.8 +
				s.SkillRarity*1.4 + st.rng.Float64()*0.6
		}
	}

	return scores
}

// PickFlow selects one challenge for a FW slot. Flows are scored by
// recency plus uniform noise; the bandits never see them.
func (ps *PoolSelector) PickFlow(st *compositionState) (*models.Flow, int, bool) {
	for level := relaxNone; level <= relaxWindow; level++ {
		candidates := ps.eligibleFlows(st, level)
		if len(candidates) == 0 {
			continue
		}

		scores := make([]float64, len(candidates))
		for i, f := range candidates {
			scores[i] = st.rng.Float64()*40 + math.Exp(-f.DaysSinceCreation/temporalHalfLifeDays)*60
		}

		top, topScores := topKByScore(candidates, scores, ps.config.TopK)
		winner := top[weightedDrawOne(topScores, st.rng)]
		return winner, level, true
	}
	return nil, relaxWindow, false
}

func (ps *PoolSelector) eligibleFlows(st *compositionState, level int) []*models.Flow {
	candidates := make([]*models.Flow, 0, len(st.snap.Flows))
	for _, f := range st.snap.Flows {
		if _, ok := st.usedFlows[f.ID]; ok {
			continue
		}
		if _, ok := st.excluded[f.ID]; ok {
			continue
		}
		if level < relaxWindow && st.creatorBlocked(f.CreatorID) {
			continue
		}
		candidates = append(candidates, f)
	}
	return candidates
}

// pickExplore draws uniformly from the quality-gated remainder.
func (ps *PoolSelector) pickExplore(st *compositionState) (*models.Video, bool) {
	candidates := make([]*models.Video, 0)
	for _, v := range st.snap.Videos {
		if _, ok := st.usedVideos[v.ID]; ok {
			continue
		}
		if _, ok := st.excluded[v.ID]; ok {
			continue
		}
		if !v.Scores.PassesQualityGate {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[st.rng.Intn(len(candidates))], true
}

// topKByScore returns the k highest scoring items with their scores.
func topKByScore[T any](items []T, scores []float64, k int) ([]T, []float64) {
	indices := make([]int, len(items))
	for i := range indices {
		indices[i] = i
	}
	sort.Slice(indices, func(a, b int) bool {
		return scores[indices[a]] > scores[indices[b]]
	})
	if k > len(indices) {
		k = len(indices)
	}

	top := make([]T, k)
	topScores := make([]float64, k)
	for i := 0; i < k; i++ {
		top[i] = items[indices[i]]
		topScores[i] = scores[indices[i]]
	}
	return top, topScores
}

// weightedDrawOne draws one index with probability proportional to its
// weight, using exponential keys. Non-positive weights fall back to a
// uniform draw when nothing else is available.
func weightedDrawOne(weights []float64, rng *rand.Rand) int {
	hasPositive := false
	for _, w := range weights {
		if w > 0 {
			hasPositive = true
			break
		}
	}
	if !hasPositive {
		return rng.Intn(len(weights))
	}

	best := -1
	bestKey := math.Inf(1)
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		key := -math.Log(rng.Float64()) / w
		if key < bestKey {
			bestKey = key
			best = i
		}
	}
	return best
}
