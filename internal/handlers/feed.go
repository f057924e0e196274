package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/services"
	"github.com/talentmix/talentmix/internal/validation"
	"github.com/talentmix/talentmix/pkg/models"
)

const maxFeedSize = 100

const avatarURLFormat = "https://media.talentpitch.co/users/%d/avatar-100.png"

// FeedHandler serves the feed endpoints: the mixed feed, the videos-only
// feed, the challenges-only feed, bandit rewards and catalog reloads.
type FeedHandler struct {
	engine    *services.RecommendationEngine
	tracker   *services.ActivityTracker
	metrics   *services.MetricsCollector
	validator *validation.SchemaValidator
	logger    *logrus.Logger
}

func NewFeedHandler(
	engine *services.RecommendationEngine,
	tracker *services.ActivityTracker,
	metrics *services.MetricsCollector,
	validator *validation.SchemaValidator,
	logger *logrus.Logger,
) *FeedHandler {
	return &FeedHandler{
		engine:    engine,
		tracker:   tracker,
		metrics:   metrics,
		validator: validator,
		logger:    logger,
	}
}

// Total serves the mixed videos-and-challenges feed.
func (h *FeedHandler) Total(c *gin.Context) {
	req, ok := h.parseFeedRequest(c)
	if !ok {
		return
	}
	req.IncludeFlows = true

	h.trackRequest(c, req, "total")

	entries, metrics, err := h.engine.Feed(c.Request.Context(), req)
	if err != nil {
		h.emptyFeed(c, err, models.TotalBody{MixIDs: []string{}, Items: []interface{}{}})
		return
	}
	h.metrics.ObserveFeed("total", metrics)

	snap := h.engine.Data().Snapshot()
	items := make([]interface{}, 0, len(entries))
	mixIDs := make([]string, 0, len(entries))

	for _, entry := range entries {
		item := h.buildItem(snap, entry)
		if item == nil {
			continue
		}
		items = append(items, item)
		mixIDs = append(mixIDs, strconv.FormatInt(entry.ItemID, 10))
		h.trackView(c, req, entry)
	}

	c.JSON(http.StatusOK, models.Envelope{
		StatusCode: http.StatusOK,
		Body:       models.TotalBody{MixIDs: mixIDs, Items: items},
	})
}

// Discover serves the videos-only feed.
func (h *FeedHandler) Discover(c *gin.Context) {
	req, ok := h.parseFeedRequest(c)
	if !ok {
		return
	}
	req.IncludeFlows = false

	h.trackRequest(c, req, "discover")

	entries, metrics, err := h.engine.Feed(c.Request.Context(), req)
	if err != nil {
		h.emptyFeed(c, err, models.DiscoverBody{ResumeIDs: []string{}, Items: []interface{}{}})
		return
	}
	h.metrics.ObserveFeed("discover", metrics)

	snap := h.engine.Data().Snapshot()
	items := make([]interface{}, 0, len(entries))
	resumeIDs := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.Type != "resume" {
			continue
		}
		item := h.buildItem(snap, entry)
		if item == nil {
			continue
		}
		items = append(items, item)
		resumeIDs = append(resumeIDs, strconv.FormatInt(entry.ItemID, 10))
		h.trackView(c, req, entry)
	}

	c.JSON(http.StatusOK, models.Envelope{
		StatusCode: http.StatusOK,
		Body:       models.DiscoverBody{ResumeIDs: resumeIDs, Items: items},
	})
}

// Flow serves the challenges-only feed.
func (h *FeedHandler) Flow(c *gin.Context) {
	req, ok := h.parseFeedRequest(c)
	if !ok {
		return
	}

	h.trackRequest(c, req, "flow")

	flows, err := h.engine.FlowFeed(c.Request.Context(), req)
	if err != nil {
		h.emptyFeed(c, err, models.FlowBody{ChallengeIDs: []string{}, Items: []interface{}{}})
		return
	}

	items := make([]interface{}, 0, len(flows))
	challengeIDs := make([]string, 0, len(flows))

	for i, flow := range flows {
		items = append(items, buildChallengeItem(flow))
		challengeIDs = append(challengeIDs, strconv.FormatInt(flow.ID, 10))

		go h.tracker.TrackVideoView(
			c.Copy(), req.UserID, flow.ID, flow.VideoURL, i+1, "FW", req.SessionID,
		)
		h.metrics.ObserveActivity("video_view")
	}

	c.JSON(http.StatusOK, models.Envelope{
		StatusCode: http.StatusOK,
		Body:       models.FlowBody{ChallengeIDs: challengeIDs, Items: items},
	})
}

// Reload rebuilds the catalog snapshot.
func (h *FeedHandler) Reload(c *gin.Context) {
	start := time.Now()

	if err := h.engine.Reload(c.Request.Context()); err != nil {
		h.metrics.ObserveReload(start, err)
		h.logger.WithError(err).Error("Catalog reload failed")
		c.JSON(http.StatusInternalServerError, models.Envelope{
			StatusCode: http.StatusInternalServerError,
			Message:    "Catalog reload failed",
		})
		return
	}
	h.metrics.ObserveReload(start, nil)

	c.JSON(http.StatusOK, models.Envelope{
		StatusCode: http.StatusOK,
		Message:    "Catalog reloaded",
	})
}

// Reward applies one observed outcome to a pool's bandit.
func (h *FeedHandler) Reward(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_BODY", "message": "Failed to read request body"},
		})
		return
	}

	if result := h.validator.ValidateRewardRequest(body); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return
	}

	var req struct {
		Pool    string    `json:"pool"`
		Context []float64 `json:"context"`
		Reward  float64   `json:"reward"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_BODY", "message": "Malformed reward payload"},
		})
		return
	}

	pool := models.SlotType(req.Pool)
	if err := h.engine.Reward(pool, req.Context, req.Reward); err != nil {
		h.logger.WithError(err).Warn("Reward update rejected")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "REWARD_REJECTED", "message": err.Error()},
		})
		return
	}
	h.metrics.ObserveReward(req.Pool, h.engine.BanditStats()[pool])

	c.JSON(http.StatusOK, models.Envelope{StatusCode: http.StatusOK, Message: "Reward recorded"})
}

// parseFeedRequest validates the raw body and folds the accepted field
// aliases onto the canonical request.
func (h *FeedHandler) parseFeedRequest(c *gin.Context) (*models.FeedRequest, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_BODY", "message": "Failed to read request body"},
		})
		return nil, false
	}

	if result := h.validator.ValidateFeedRequest(body); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return nil, false
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_BODY", "message": "Malformed JSON body"},
		})
		return nil, false
	}

	req := &models.FeedRequest{}

	req.UserID = parseID(firstPresent(raw, "SELF_ID", "user_id"))

	req.ExcludedIDs = parseIDList(firstPresent(raw, "excluded_ids", "LAST_IDS", "videos_excluidos"))

	if size := int(parseID(firstPresent(raw, "size", "MAX_SIZE"))); size > 0 {
		if size > maxFeedSize {
			size = maxFeedSize
		}
		req.Size = size
	}

	if sessionID, ok := raw["session_id"].(string); ok {
		req.SessionID = sessionID
	}
	if seed, ok := raw["seed"].(float64); ok {
		req.Seed = int64(seed)
	}

	// Videos already served in this session stay out of the feed.
	if req.SessionID != "" {
		for id := range h.tracker.SessionVideos(c.Request.Context(), req.SessionID) {
			req.ExcludedIDs = append(req.ExcludedIDs, id)
		}
	}

	return req, true
}

func (h *FeedHandler) trackRequest(c *gin.Context, req *models.FeedRequest, endpoint string) {
	params := map[string]interface{}{"excluded_count": len(req.ExcludedIDs)}
	go h.tracker.TrackFeedRequest(c.Copy(), req.UserID, endpoint, params, req.SessionID)
	h.metrics.ObserveActivity("feed_request")
}

func (h *FeedHandler) trackView(c *gin.Context, req *models.FeedRequest, entry models.FeedEntry) {
	go h.tracker.TrackVideoView(
		c.Copy(), req.UserID, entry.ItemID, entry.VideoURL,
		entry.Position, string(entry.Slot), req.SessionID,
	)
	h.metrics.ObserveActivity("video_view")
}

func (h *FeedHandler) buildItem(snap *services.Snapshot, entry models.FeedEntry) interface{} {
	if entry.Type == "challenge" {
		flow, ok := snap.FlowByID[entry.ItemID]
		if !ok {
			return nil
		}
		return buildChallengeItem(flow)
	}

	video, ok := snap.VideoByID[entry.ItemID]
	if !ok {
		return nil
	}
	return buildResumeItem(video)
}

// emptyFeed answers with an empty body when no catalog snapshot is
// available. A missing catalog degrades the feed, it never fails the
// request.
func (h *FeedHandler) emptyFeed(c *gin.Context, err error, body interface{}) {
	h.logger.WithError(err).Warn("Serving empty feed, catalog unavailable")
	c.JSON(http.StatusOK, models.Envelope{
		StatusCode: http.StatusOK,
		Body:       body,
	})
}

func buildResumeItem(v *models.Video) models.ResumeItem {
	slug := slugify(v.CreatorName)
	image := v.Image
	if image == "" {
		image = v.VideoURL
	}

	return models.ResumeItem{
		Type:           "resume",
		ID:             v.ID,
		Name:           v.CreatorName,
		Slug:           fmt.Sprintf("%s-%d", slug, v.ID),
		Description:    v.Description,
		Video:          v.VideoURL,
		Image:          image,
		UserID:         v.CreatorID,
		UserName:       v.CreatorName,
		UserSlug:       slug,
		Avatar:         fmt.Sprintf(avatarURLFormat, v.CreatorID),
		MainObjective:  "be_discovered",
		TypeAudience:   "innovators",
		TypeAudiences:  []string{"innovators"},
		InterestAreas:  []string{},
		RoleObjectives: []string{},
		Connected:      "",
	}
}

func buildChallengeItem(f *models.Flow) models.ChallengeItem {
	image := f.Image
	if image == "" {
		image = f.VideoURL
	}

	talentType := f.TalentType
	if talentType == "" {
		talentType = "innovators"
	}

	objectives := f.TypeObjectives
	if len(objectives) == 0 {
		objectives = []string{"hire"}
	}

	return models.ChallengeItem{
		Type:           "challenge",
		ID:             f.ID,
		Name:           f.Name,
		Slug:           f.Slug,
		Description:    f.Description,
		VideoURL:       f.VideoURL,
		Image:          image,
		UserID:         f.CreatorID,
		UserName:       f.CreatorName,
		UserSlug:       f.CreatorSlug,
		UserAvatar:     fmt.Sprintf(avatarURLFormat, f.CreatorID),
		TalentType:     talentType,
		InterestAreas:  f.InterestAreas,
		TypeObjectives: objectives,
		Top:            true,
		CreatedAt:      f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      time.Now().Format(time.RFC3339),
	}
}

// firstPresent returns the value of the first key present in the map.
func firstPresent(raw map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if value, ok := raw[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

// parseID accepts a numeric or numeric-string identifier.
func parseID(value interface{}) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case string:
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return id
		}
	}
	return 0
}

// parseIDList accepts a JSON array of IDs or a comma-separated string.
func parseIDList(value interface{}) []int64 {
	switch v := value.(type) {
	case []interface{}:
		ids := make([]int64, 0, len(v))
		for _, item := range v {
			if id := parseID(item); id != 0 {
				ids = append(ids, id)
			}
		}
		return ids
	case string:
		parts := strings.Split(v, ",")
		ids := make([]int64, 0, len(parts))
		for _, part := range parts {
			if id := parseID(part); id != 0 {
				ids = append(ids, id)
			}
		}
		return ids
	}
	return nil
}

func slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
