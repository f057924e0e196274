package services

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	minHistoryForAdaptation = 10
	recentRewardsWindow     = 50
	maxRewardHistory        = 1000
	rewardHistoryTrim       = 500
)

// LinUCBBandit is a contextual bandit with adaptive exploration. Expected
// reward is estimated by ridge regression over observed contexts; the UCB
// term uses the inverse design matrix, and an extra exploration bonus is
// scaled by the variance of recent rewards once enough feedback exists.
type LinUCBBandit struct {
	mu sync.Mutex

	alpha float64
	beta  float64
	ridge float64
	n     int

	a    *mat.Dense
	b    *mat.VecDense
	aInv *mat.Dense

	rewards []float64
}

// NewLinUCBBandit creates a bandit over n context features. The design
// matrix starts as lambda times identity, so early scores are dominated
// by exploration.
func NewLinUCBBandit(n int, alpha, beta, lambda, ridge float64) *LinUCBBandit {
	if lambda <= 0 {
		lambda = 1
	}
	bandit := &LinUCBBandit{
		alpha: alpha,
		beta:  beta,
		ridge: ridge,
		n:     n,
		a:     scaledIdentity(n, lambda),
		b:     mat.NewVecDense(n, nil),
		aInv:  scaledIdentity(n, 1/lambda),
	}
	return bandit
}

// ScoreBatch returns one UCB score per context row. Contexts must be
// n-dimensional. The supplied rng drives the adaptive exploration bonus
// so callers can replay a request deterministically.
func (bd *LinUCBBandit) ScoreBatch(contexts [][]float64, rng *rand.Rand) []float64 {
	bd.mu.Lock()
	defer bd.mu.Unlock()

	theta := mat.NewVecDense(bd.n, nil)
	theta.MulVec(bd.aInv, bd.b)

	flatBonus, bonusFactor := bd.explorationBonus()

	scores := make([]float64, len(contexts))
	tmp := mat.NewVecDense(bd.n, nil)
	for i, ctx := range contexts {
		x := mat.NewVecDense(bd.n, ctx)
		expected := mat.Dot(x, theta)
		tmp.MulVec(bd.aInv, x)
		uncertainty := bd.alpha * math.Sqrt(math.Max(0, mat.Dot(x, tmp)))

		bonus := flatBonus
		if bonusFactor >= 0 {
			bonus = bonusFactor * rng.Float64()
		}
		scores[i] = expected + uncertainty + bonus
	}
	return scores
}

// explorationBonus returns either a flat bonus (factor < 0) during the
// cold-start phase, or a per-candidate factor to be scaled by uniform noise.
func (bd *LinUCBBandit) explorationBonus() (flat float64, factor float64) {
	if len(bd.rewards) < minHistoryForAdaptation {
		return 0.7, -1
	}
	recent := bd.rewards
	if len(recent) > recentRewardsWindow {
		recent = recent[len(recent)-recentRewardsWindow:]
	}
	variance := stat.Variance(recent, nil)
	return 0, bd.beta * variance * 1.3
}

// Update folds one observed reward into the model. The inverse is
// recomputed with ridge regularization so it stays well conditioned even
// when contexts are collinear.
func (bd *LinUCBBandit) Update(context []float64, reward float64) error {
	if len(context) != bd.n {
		return fmt.Errorf("context has %d features, expected %d", len(context), bd.n)
	}

	bd.mu.Lock()
	defer bd.mu.Unlock()

	x := mat.NewVecDense(bd.n, context)

	var outer mat.Dense
	outer.Outer(1, x, x)
	bd.a.Add(bd.a, &outer)
	bd.b.AddScaledVec(bd.b, reward, x)

	var regularized mat.Dense
	regularized.CloneFrom(bd.a)
	for i := 0; i < bd.n; i++ {
		regularized.Set(i, i, regularized.At(i, i)+bd.ridge)
	}

	var inv mat.Dense
	if err := inv.Inverse(&regularized); err != nil {
		// Retry once with a much heavier diagonal before keeping the
		// previous inverse.
		for i := 0; i < bd.n; i++ {
			regularized.Set(i, i, regularized.At(i, i)+bd.ridge*1000)
		}
		if err := inv.Inverse(&regularized); err != nil {
			return fmt.Errorf("design matrix inversion failed: %w", err)
		}
	}
	bd.aInv = &inv

	bd.rewards = append(bd.rewards, reward)
	if len(bd.rewards) > maxRewardHistory {
		trimmed := make([]float64, rewardHistoryTrim)
		copy(trimmed, bd.rewards[len(bd.rewards)-rewardHistoryTrim:])
		bd.rewards = trimmed
	}

	return nil
}

// BanditStats summarizes observed rewards for monitoring.
type BanditStats struct {
	TotalSelections int     `json:"total_selections"`
	AverageReward   float64 `json:"average_reward"`
	RecentAverage   float64 `json:"recent_average"`
}

// Stats returns reward statistics over the full and recent history.
func (bd *LinUCBBandit) Stats() BanditStats {
	bd.mu.Lock()
	defer bd.mu.Unlock()

	if len(bd.rewards) == 0 {
		return BanditStats{}
	}

	recent := bd.rewards
	if len(recent) > recentRewardsWindow {
		recent = recent[len(recent)-recentRewardsWindow:]
	}

	return BanditStats{
		TotalSelections: len(bd.rewards),
		AverageReward:   stat.Mean(bd.rewards, nil),
		RecentAverage:   stat.Mean(recent, nil),
	}
}

func scaledIdentity(n int, v float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, v)
	}
	return m
}
