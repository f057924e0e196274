package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/config"
)

// ActivityEvent is the message published for every tracked user action,
// so downstream consumers (analytics, learning jobs) see activity without
// touching the serving store.
type ActivityEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType string    `json:"event_type"`
	UserID    int64     `json:"user_id"`
	VideoID   int64     `json:"video_id,omitempty"`
	FeedType  string    `json:"feed_type,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityPublisher writes activity events to Kafka. It is optional:
// when the broker is disabled the tracker simply runs without it.
type ActivityPublisher struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

func NewActivityPublisher(cfg *config.Config, logger *logrus.Logger) *ActivityPublisher {
	return &ActivityPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topics.ActivityEvents,
			Balancer:     &kafka.Hash{}, // key by user for per-user ordering
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		logger: logger,
	}
}

func (p *ActivityPublisher) Publish(ctx context.Context, event ActivityEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal activity event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", event.UserID)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": event.EventType,
			"user_id":    event.UserID,
		}).Error("Failed to publish activity event")
		return fmt.Errorf("failed to write activity event: %w", err)
	}

	return nil
}

func (p *ActivityPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close activity publisher: %w", err)
	}
	return nil
}
