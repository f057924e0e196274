package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/internal/messaging"
)

// DatabaseExecutor interface for write operations
type DatabaseExecutor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// activityRecord is the JSON payload buffered in Redis per user until the
// next flush to the activity log.
type activityRecord struct {
	EventType string                 `json:"event_type"`
	UserID    int64                  `json:"user_id"`
	VideoID   int64                  `json:"video_id,omitempty"`
	VideoURL  string                 `json:"video_url,omitempty"`
	Position  int                    `json:"position,omitempty"`
	FeedType  string                 `json:"feed_type,omitempty"`
	Endpoint  string                 `json:"endpoint,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Timestamp string                 `json:"timestamp"`
	SessionID string                 `json:"session_id"`
}

// ActivityTracker buffers user activity in Redis and periodically flushes
// it to the activity_log table. Tracking is best effort: a Redis outage
// degrades to a warning, never a failed feed.
type ActivityTracker struct {
	redis     *redis.Client
	db        DatabaseExecutor
	publisher *messaging.ActivityPublisher
	config    *config.TrackingConfig
	logger    *logrus.Logger
}

func NewActivityTracker(
	redisClient *redis.Client,
	db DatabaseExecutor,
	publisher *messaging.ActivityPublisher,
	cfg *config.TrackingConfig,
	logger *logrus.Logger,
) *ActivityTracker {
	return &ActivityTracker{
		redis:     redisClient,
		db:        db,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
	}
}

// TrackVideoView buffers one video view. The session set lets the feed
// endpoints exclude videos already served in the same scroll session.
func (t *ActivityTracker) TrackVideoView(
	ctx context.Context,
	userID, videoID int64,
	videoURL string,
	position int,
	feedType, sessionID string,
) {
	sessionID = t.ensureSession(userID, sessionID)

	record := activityRecord{
		EventType: "video_view",
		UserID:    userID,
		VideoID:   videoID,
		VideoURL:  videoURL,
		Position:  position,
		FeedType:  feedType,
		Timestamp: time.Now().Format(time.RFC3339),
		SessionID: sessionID,
	}

	t.buffer(ctx, userID, record)

	sessionKey := sessionID + ":videos"
	if err := t.redis.SAdd(ctx, sessionKey, videoID).Err(); err != nil {
		t.logger.Warn("Failed to record session video", "session_id", sessionID, "error", err)
	} else {
		t.redis.Expire(ctx, sessionKey, t.config.SessionTTL)
	}

	t.publish(ctx, messaging.ActivityEvent{
		EventType: "video_view",
		UserID:    userID,
		VideoID:   videoID,
		FeedType:  feedType,
		SessionID: sessionID,
	})
}

// TrackFeedRequest buffers one feed request.
func (t *ActivityTracker) TrackFeedRequest(
	ctx context.Context,
	userID int64,
	endpoint string,
	params map[string]interface{},
	sessionID string,
) {
	sessionID = t.ensureSession(userID, sessionID)

	record := activityRecord{
		EventType: "feed_request",
		UserID:    userID,
		Endpoint:  endpoint,
		Params:    params,
		Timestamp: time.Now().Format(time.RFC3339),
		SessionID: sessionID,
	}

	t.buffer(ctx, userID, record)

	t.publish(ctx, messaging.ActivityEvent{
		EventType: "feed_request",
		UserID:    userID,
		Endpoint:  endpoint,
		SessionID: sessionID,
	})
}

// SessionVideos returns the video IDs already served in a session.
func (t *ActivityTracker) SessionVideos(ctx context.Context, sessionID string) map[int64]struct{} {
	videos := make(map[int64]struct{})
	if sessionID == "" {
		return videos
	}

	members, err := t.redis.SMembers(ctx, sessionID+":videos").Result()
	if err != nil {
		t.logger.Warn("Failed to read session videos", "session_id", sessionID, "error", err)
		return videos
	}

	for _, member := range members {
		if id, err := strconv.ParseInt(member, 10, 64); err == nil {
			videos[id] = struct{}{}
		}
	}
	return videos
}

// FlushUser drains one user's activity buffer into activity_log.
func (t *ActivityTracker) FlushUser(ctx context.Context, userID int64) (int, error) {
	key := activityKey(userID)
	entries, err := t.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read activity buffer: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	inserted := 0
	for _, entry := range entries {
		var record activityRecord
		if err := json.Unmarshal([]byte(entry), &record); err != nil {
			t.logger.Warn("Skipping malformed activity record", "user_id", userID, "error", err)
			continue
		}

		if err := t.insertActivity(ctx, &record); err != nil {
			t.logger.Error("Failed to insert activity", "user_id", userID, "error", err)
			continue
		}
		inserted++
	}

	if err := t.redis.Del(ctx, key).Err(); err != nil {
		t.logger.Warn("Failed to clear activity buffer", "user_id", userID, "error", err)
	}

	t.logger.Info("Flushed user activity", "user_id", userID, "inserted", inserted)
	return inserted, nil
}

// FlushAll drains every pending activity buffer. Used by the periodic
// flush loop and on shutdown.
func (t *ActivityTracker) FlushAll(ctx context.Context) (int, error) {
	total := 0
	iter := t.redis.Scan(ctx, 0, "user_activity:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		userID, err := strconv.ParseInt(strings.TrimPrefix(key, "user_activity:"), 10, 64)
		if err != nil {
			continue
		}
		count, err := t.FlushUser(ctx, userID)
		if err != nil {
			t.logger.Error("Failed to flush user activity", "user_id", userID, "error", err)
			continue
		}
		total += count
	}
	if err := iter.Err(); err != nil {
		return total, fmt.Errorf("activity key scan failed: %w", err)
	}

	t.logger.Info("Flushed all pending activity", "total", total)
	return total, nil
}

// Run flushes pending activity on an interval until the context ends.
func (t *ActivityTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := t.FlushAll(flushCtx); err != nil {
				t.logger.Error("Final activity flush failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if _, err := t.FlushAll(ctx); err != nil {
				t.logger.Error("Periodic activity flush failed", "error", err)
			}
		}
	}
}

func (t *ActivityTracker) buffer(ctx context.Context, userID int64, record activityRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		t.logger.Error("Failed to marshal activity record", "error", err)
		return
	}

	key := activityKey(userID)
	length, err := t.redis.LPush(ctx, key, payload).Result()
	if err != nil {
		t.logger.Warn("Failed to buffer activity", "user_id", userID, "error", err)
		return
	}
	t.redis.Expire(ctx, key, t.config.ActivityTTL)

	if int(length) >= t.config.FlushThreshold {
		if _, err := t.FlushUser(ctx, userID); err != nil {
			t.logger.Error("Threshold flush failed", "user_id", userID, "error", err)
		}
	}
}

func (t *ActivityTracker) insertActivity(ctx context.Context, record *activityRecord) error {
	properties, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal activity properties: %w", err)
	}

	var subjectID interface{}
	var subjectType interface{}
	if record.EventType == "video_view" {
		subjectID = record.VideoID
		subjectType = "resume"
	}

	createdAt, err := time.Parse(time.RFC3339, record.Timestamp)
	if err != nil {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO activity_log
			(log_name, description, subject_id, subject_type,
			 causer_id, causer_type, properties, url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`

	_, err = t.db.Exec(ctx, query,
		"app",
		describeActivity(record),
		subjectID,
		subjectType,
		record.UserID,
		"user",
		properties,
		activityURL(record),
		createdAt,
	)
	return err
}

func (t *ActivityTracker) publish(ctx context.Context, event messaging.ActivityEvent) {
	if t.publisher == nil {
		return
	}
	if err := t.publisher.Publish(ctx, event); err != nil {
		t.logger.Warn("Failed to publish activity event", "event_type", event.EventType, "error", err)
	}
}

func (t *ActivityTracker) ensureSession(userID int64, sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return fmt.Sprintf("session:%d:%s", userID, uuid.NewString())
}

func activityKey(userID int64) string {
	return fmt.Sprintf("user_activity:%d", userID)
}

func describeActivity(record *activityRecord) string {
	switch record.EventType {
	case "video_view":
		feedType := record.FeedType
		if feedType == "" {
			feedType = "feed"
		}
		return fmt.Sprintf("#video #view #%s", feedType)
	case "feed_request":
		endpoint := record.Endpoint
		if endpoint == "" {
			endpoint = "feed"
		}
		return fmt.Sprintf("#feed #request #%s", endpoint)
	}
	return "#activity"
}

func activityURL(record *activityRecord) string {
	switch record.EventType {
	case "video_view":
		return fmt.Sprintf("/api/search/feed/video/%d", record.VideoID)
	case "feed_request":
		return "/api/search/" + record.Endpoint
	}
	return "/api/search"
}
