package services

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testRecConfig() *config.RecommendationConfig {
	return &config.RecommendationConfig{
		FeedSize:          24,
		TopK:              50,
		CreatorWindow:     12,
		NewContentDays:    45.0,
		MaxSkillsPerVideo: 5,
		MaxTagsPerVideo:   3,
		ProfileSampleSize: 80,
		Bandit: config.BanditConfig{
			Features: contextFeatures,
			Lambda:   1.0,
			Ridge:    0.001,
			VMP:      config.BanditPoolConfig{Alpha: 1.5, Beta: 0.8},
			AU:       config.BanditPoolConfig{Alpha: 1.3, Beta: 0.7},
			NU:       config.BanditPoolConfig{Alpha: 1.8, Beta: 0.9},
		},
	}
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		VideoByID:          make(map[int64]*models.Video),
		FlowByID:           make(map[int64]*models.Flow),
		InteractionsByUser: make(map[int64][]models.Interaction),
		SkillSets:          make(map[int64]map[string]struct{}),
		KnowledgeSets:      make(map[int64]map[string]struct{}),
		ToolSets:           make(map[int64]map[string]struct{}),
		LanguageSets:       make(map[int64]map[string]struct{}),
		SkillCounts:        make(map[string]int),
		SocialGraph:        make(map[int64]map[int64]struct{}),
		SocialInfluence:    make(map[int64]float64),
		Blacklist:          make(map[string]struct{}),
		LoadedAt:           time.Now(),
	}
}

// addVideo registers a video and its tag indexes on the snapshot.
func addVideo(snap *Snapshot, v *models.Video) *models.Video {
	if v.VideoURL == "" {
		v.VideoURL = fmt.Sprintf("https://cdn.example.com/videos/%d.mp4", v.ID)
	}
	snap.Videos = append(snap.Videos, v)
	snap.VideoByID[v.ID] = v
	snap.SkillSets[v.ID] = toSet(v.Skills)
	snap.KnowledgeSets[v.ID] = toSet(v.Knowledges)
	snap.ToolSets[v.ID] = toSet(v.Tools)
	snap.LanguageSets[v.ID] = toSet(v.Languages)
	for _, skill := range v.Skills {
		snap.SkillCounts[skill]++
	}
	return v
}

func addFlow(snap *Snapshot, f *models.Flow) *models.Flow {
	if f.VideoURL == "" {
		f.VideoURL = fmt.Sprintf("https://cdn.example.com/challenges/%d.mp4", f.ID)
	}
	snap.Flows = append(snap.Flows, f)
	snap.FlowByID[f.ID] = f
	return f
}

// richSnapshot builds a catalog big enough for full feed composition:
// every video passes the quality gate, creators are distinct and skills
// are varied.
func richSnapshot(videos, flows int) *Snapshot {
	snap := emptySnapshot()
	for i := 0; i < videos; i++ {
		id := int64(i + 1)
		addVideo(snap, &models.Video{
			ID:                id,
			CreatorID:         1000 + id,
			CreatorName:       fmt.Sprintf("Creator %d", id),
			City:              "Bogotá",
			DaysSinceCreation: float64(i % 60),
			Views:             50 + i,
			AvgRating:         3.5,
			RatingCount:       4,
			ConnectionCount:   3,
			LikeCount:         i % 7,
			ExhibitedCount:    i % 5,
			Skills:            []string{fmt.Sprintf("skill-%d", i%11), fmt.Sprintf("skill-%d", (i+3)%11)},
			Knowledges:        []string{fmt.Sprintf("knowledge-%d", i%5)},
		})
	}
	for i := 0; i < flows; i++ {
		id := int64(9000 + i)
		addFlow(snap, &models.Flow{
			ID:                id,
			CreatorID:         5000 + int64(i),
			CreatorName:       fmt.Sprintf("Brand %d", i),
			Name:              fmt.Sprintf("Challenge %d", i),
			DaysSinceCreation: float64(i % 30),
			CreatedAt:         time.Now().AddDate(0, 0, -(i % 30)),
		})
	}

	fc := NewFeatureComputer(testRecConfig(), testLogger())
	fc.ComputeScores(snap)
	return snap
}

func emptyProfile(userID int64) *models.UserProfile {
	return NewProfileBuilder(testRecConfig(), testLogger()).Build(emptySnapshot(), userID)
}
