package models

// SlotType names a scoring/eligibility pool in the feed pattern.
type SlotType string

const (
	SlotVMP     SlotType = "VMP"
	SlotAU      SlotType = "AU"
	SlotNU      SlotType = "NU"
	SlotFW      SlotType = "FW"
	SlotExplore SlotType = "EXPLORE"
)

// DefaultSlotPattern is the repeating slot sequence a mixed feed is tiled
// from. Feed length is the pattern tiled and truncated to the requested
// size; sizes that are not a multiple of six truncate, never pad.
var DefaultSlotPattern = []SlotType{SlotVMP, SlotAU, SlotAU, SlotVMP, SlotNU, SlotFW}

// FeedRequest is the canonical request the core accepts. The transport
// layer maps the heterogeneous upstream field names onto it.
type FeedRequest struct {
	UserID       int64
	Size         int
	ExcludedIDs  []int64
	SessionID    string
	IncludeFlows bool
	// Seed fixes the per-request randomness for deterministic replay.
	// Zero means "derive a seed", which is what production does.
	Seed int64
}

// FeedEntry is one accepted slot in a composed feed.
type FeedEntry struct {
	Position  int      `json:"position"`
	ItemID    int64    `json:"video_id"`
	Type      string   `json:"type"` // "resume" or "challenge"
	Slot      SlotType `json:"patron_type"`
	CreatorID int64    `json:"creator_id"`
	VideoURL  string   `json:"video_url"`
}

// FeedMetrics summarizes one feed composition for logging and monitoring.
type FeedMetrics struct {
	TotalItems       int                `json:"total_videos"`
	TypeDistribution map[string]int     `json:"type_distribution"`
	UniqueCreators   int                `json:"unique_creators"`
	NewContentRatio  float64            `json:"new_content_ratio"`
	PoolSizes        map[SlotType]int   `json:"pool_sizes"`
	Relaxations      map[SlotType]int   `json:"relaxations"`
	ExecutionSeconds float64            `json:"execution_time"`
	BanditStats      map[string]float64 `json:"bandit_stats,omitempty"`
}

// Envelope is the wire shape every feed endpoint responds with.
type Envelope struct {
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message,omitempty"`
	Body       interface{} `json:"body,omitempty"`
}

// TotalBody is the body of the mixed videos-and-challenges endpoint.
type TotalBody struct {
	MixIDs []string      `json:"mix_ids"`
	Items  []interface{} `json:"items"`
}

// DiscoverBody is the body of the resumes-only endpoint.
type DiscoverBody struct {
	ResumeIDs []string      `json:"resume_ids"`
	Items     []interface{} `json:"items"`
}

// FlowBody is the body of the challenges-only endpoint.
type FlowBody struct {
	ChallengeIDs []string      `json:"challenge_ids"`
	Items        []interface{} `json:"items"`
}

// ResumeItem is the response payload for a talent video.
type ResumeItem struct {
	Type           string   `json:"type"`
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	Description    string   `json:"description"`
	Video          string   `json:"video"`
	Image          string   `json:"image"`
	UserID         int64    `json:"user_id"`
	UserName       string   `json:"user_name"`
	UserSlug       string   `json:"user_slug"`
	Avatar         string   `json:"avatar"`
	MainObjective  string   `json:"main_objective"`
	TypeAudience   string   `json:"type_audience"`
	TypeAudiences  []string `json:"type_audiences"`
	InterestAreas  []string `json:"interest_areas"`
	RoleObjectives []string `json:"role_objectives"`
	Connected      string   `json:"connected"`
}

// ChallengeItem is the response payload for a flow/challenge.
type ChallengeItem struct {
	Type           string   `json:"type"`
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	Description    string   `json:"description"`
	VideoURL       string   `json:"video_url"`
	Image          string   `json:"image"`
	UserID         int64    `json:"user_id"`
	UserName       string   `json:"user_name"`
	UserSlug       string   `json:"user_slug"`
	UserAvatar     string   `json:"user_avatar"`
	TalentType     string   `json:"talent_type"`
	InterestAreas  []string `json:"interest_areas"`
	TypeObjectives []string `json:"type_objectives"`
	Top            bool     `json:"top"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}
