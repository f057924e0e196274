package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/services"
	"github.com/talentmix/talentmix/internal/validation"
)

type Handlers struct {
	Health *HealthHandler
	Feed   *FeedHandler
}

func New(logger *logrus.Logger, services *services.Services, validator *validation.SchemaValidator) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(logger, services.Health),
		Feed: NewFeedHandler(
			services.Engine,
			services.Tracker,
			services.Metrics,
			validator,
			logger,
		),
	}
}
