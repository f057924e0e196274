package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/internal/database"
	"github.com/talentmix/talentmix/internal/handlers"
	"github.com/talentmix/talentmix/internal/middleware"
	"github.com/talentmix/talentmix/internal/services"
	"github.com/talentmix/talentmix/internal/validation"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	trackerCancel context.CancelFunc
	trackerDone   chan struct{}
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// Initialize services
	svcs, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schemas: %w", err)
	}

	// Initialize handlers
	app.handlers = handlers.New(app.logger, svcs, validator)

	// Setup router
	app.setupRouter()

	return app, nil
}

// Start loads the initial catalog snapshot and launches the activity
// flush loop. Feed requests served before the load completes trigger a
// lazy load instead.
func (a *App) Start(ctx context.Context) error {
	if err := a.services.Engine.Reload(ctx); err != nil {
		return fmt.Errorf("initial catalog load: %w", err)
	}

	trackerCtx, cancel := context.WithCancel(context.Background())
	a.trackerCancel = cancel
	a.trackerDone = make(chan struct{})
	go func() {
		defer close(a.trackerDone)
		a.services.Tracker.Run(trackerCtx)
	}()

	return nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	// The tracker's final flush still needs the connections, so wait for
	// it before closing them.
	if a.trackerCancel != nil {
		a.trackerCancel()
		select {
		case <-a.trackerDone:
		case <-ctx.Done():
			a.logger.Warn("Activity flush did not finish before the shutdown deadline")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.CompressionMiddleware())

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Feed routes
	search := router.Group("/api/search")
	{
		search.POST("/total", a.handlers.Feed.Total)
		search.POST("/discover", a.handlers.Feed.Discover)
		search.POST("/flow", a.handlers.Feed.Flow)
		search.POST("/reload", a.handlers.Feed.Reload)
		search.POST("/reward", a.handlers.Feed.Reward)
	}

	a.router = router
}
