package models

import "time"

// Video is a talent video (a "resume") loaded from the relational store.
// Derived scores are computed once per snapshot by the feature computer and
// are immutable until the next reload.
type Video struct {
	ID                int64     `json:"id" db:"id"`
	CreatorID         int64     `json:"user_id" db:"user_id"`
	CreatorName       string    `json:"creator_name" db:"creator_name"`
	CreatorSlug       string    `json:"creator_slug" db:"creator_slug"`
	CreatorAvatar     string    `json:"creator_avatar" db:"creator_avatar"`
	City              string    `json:"city" db:"city"`
	Name              string    `json:"name" db:"name"`
	Slug              string    `json:"slug" db:"slug"`
	VideoURL          string    `json:"video" db:"video"`
	Image             string    `json:"image" db:"image"`
	Description       string    `json:"description" db:"description"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	DaysSinceCreation float64   `json:"days_since_creation"`

	Views           int     `json:"views" db:"views"`
	AvgRating       float64 `json:"avg_rating" db:"avg_rating"`
	RatingCount     int     `json:"rating_count" db:"rating_count"`
	ConnectionCount int     `json:"connection_count" db:"connection_count"`
	LikeCount       int     `json:"like_count" db:"like_count"`
	ExhibitedCount  int     `json:"exhibited_count" db:"exhibited_count"`

	Skills     []string `json:"skills"`
	Knowledges []string `json:"knowledges"`
	Tools      []string `json:"tools"`
	Languages  []string `json:"languages"`

	Scores ItemScores `json:"scores"`
}

// Flow is a challenge shown in FW slots. Flows are never bandit-scored.
type Flow struct {
	ID                int64     `json:"id" db:"id"`
	CreatorID         int64     `json:"user_id" db:"user_id"`
	CreatorName       string    `json:"creator_name" db:"creator_name"`
	CreatorSlug       string    `json:"creator_slug" db:"creator_slug"`
	City              string    `json:"city" db:"city"`
	VideoURL          string    `json:"video" db:"video"`
	Image             string    `json:"image" db:"image"`
	Name              string    `json:"name" db:"name"`
	Slug              string    `json:"slug" db:"slug"`
	Description       string    `json:"description" db:"description"`
	TalentType        string    `json:"talent_type" db:"talent_type"`
	InterestAreas     []string  `json:"interest_areas"`
	TypeObjectives    []string  `json:"type_objectives"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	DaysSinceCreation float64   `json:"days_since_creation"`
}

// ItemScores holds the per-snapshot derived scores of a video.
type ItemScores struct {
	Engagement        float64 `json:"engagement"`
	Temporal          float64 `json:"temporal"`
	Quality           float64 `json:"quality"`
	Popularity        float64 `json:"popularity"`
	DiversitySkills   float64 `json:"diversity_skills"`
	SkillRarity       float64 `json:"skill_rarity"`
	PassesQualityGate bool    `json:"passes_quality_gate"`

	ViewsNorm          float64 `json:"-"`
	RatingNorm         float64 `json:"-"`
	ConnectionsNorm    float64 `json:"-"`
	RatingCountNorm    float64 `json:"-"`
	LikeCountNorm      float64 `json:"-"`
	ExhibitedCountNorm float64 `json:"-"`
	NewBoost           float64 `json:"-"`
}
