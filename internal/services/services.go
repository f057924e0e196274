package services

import (
	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/internal/database"
	"github.com/talentmix/talentmix/internal/messaging"
)

type Services struct {
	Health  *HealthService
	Engine  *RecommendationEngine
	Tracker *ActivityTracker
	Metrics *MetricsCollector
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	engine := NewRecommendationEngine(db.PG, cfg, logger)

	var publisher *messaging.ActivityPublisher
	if cfg.Kafka.Enabled {
		publisher = messaging.NewActivityPublisher(cfg, logger)
	}

	tracker := NewActivityTracker(db.Redis, db.PG, publisher, &cfg.Tracking, logger)
	healthService := NewHealthService(cfg, logger, db, engine.Data())
	metrics := NewMetricsCollector()

	return &Services{
		Health:  healthService,
		Engine:  engine,
		Tracker: tracker,
		Metrics: metrics,
	}, nil
}
