package models

import "time"

// User is a talent platform user row from the store snapshot.
type User struct {
	ID        int64    `json:"id" db:"id"`
	Name      string   `json:"name" db:"name"`
	City      string   `json:"city" db:"city"`
	Country   string   `json:"country" db:"country"`
	Skills    []string `json:"skills"`
	Languages []string `json:"languages"`
	Tools     []string `json:"tools"`
	Knowledge []string `json:"knowledge"`
}

// Interaction is a unified engagement event (rating, save, match or view)
// mapped onto a 0-5 rating scale by the store loader.
type Interaction struct {
	UserID    int64     `json:"user_id" db:"user_id"`
	VideoID   int64     `json:"video_id" db:"video_id"`
	Rating    float64   `json:"rating" db:"rating"`
	Type      string    `json:"interaction_type" db:"interaction_type"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Connection is an accepted social connection between two users.
type Connection struct {
	UserID          int64 `json:"user_id" db:"user_id"`
	ConnectedUserID int64 `json:"connected_user_id" db:"connected_user_id"`
}

// UserProfile is derived per request from the interaction snapshot. A user
// with no history yields the zero profile (city "Unknown", empty sets).
type UserProfile struct {
	UserID          int64
	City            string
	Seen            map[int64]struct{}
	Skills          map[string]struct{}
	Knowledges      map[string]struct{}
	Tools           map[string]struct{}
	Languages       map[string]struct{}
	PreferredCities map[string]struct{}
	SkillWeights    map[string]float64
	SkillCounts     map[string]float64
	SkillNorm       float64
	Social          map[int64]struct{}
	SocialInfluence float64
}

// HasHistory reports whether the profile was built from at least one
// interaction.
func (p *UserProfile) HasHistory() bool {
	return p != nil && len(p.Seen) > 0
}
