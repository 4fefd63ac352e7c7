// Package app wires configuration into the storage, adapters and services shared by the binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/grade-market/internal/cache"
	"github.com/yourusername/grade-market/internal/config"
	"github.com/yourusername/grade-market/internal/database"
	"github.com/yourusername/grade-market/internal/events"
	"github.com/yourusername/grade-market/internal/forecast"
	"github.com/yourusername/grade-market/internal/health"
	"github.com/yourusername/grade-market/internal/repository"
	"github.com/yourusername/grade-market/internal/service"
	"github.com/yourusername/grade-market/internal/settlement"
)

// App holds every long-lived dependency
type App struct {
	Config      *config.Config
	Logger      *logrus.Logger
	DB          *database.DB
	Repos       *repository.Repositories
	OddsCache   *cache.OddsCache
	Forecaster  *forecast.Client
	Gateway     *settlement.HTTPGateway
	Publisher   events.Publisher
	Odds        *service.OddsService
	Coordinator *service.Coordinator
	Bets        *service.BetQuery
}

// LoadConfig reads configuration, overlays AWS secrets when enabled and validates the result
func LoadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := config.LoadWithDefaults(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			return nil, fmt.Errorf("AWS_REGION and AWS_SECRET_NAME must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(ctx, cfg, region, secretName); err != nil {
			return nil, fmt.Errorf("failed to load secrets: %w", err)
		}
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// New builds the storage layer, the external adapters and the services
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	if cfg.UsesPostgres() {
		db, err := database.Initialize(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.DB = db

		repos, err := repository.NewRepositories(db)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Repos = repos
		log.Info("Database connection established")
	} else {
		a.Repos = repository.NewMemoryRepositories()
		log.Warn("Using in-memory ledger; state is lost on restart")
	}

	if cfg.Cache.Enabled {
		a.OddsCache = cache.NewOddsCache(cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		}, log)
		a.Repos = cache.Wrap(a.Repos, a.OddsCache)
		log.WithField("addr", cfg.Cache.Addr).Info("Odds cache enabled")
	}

	a.Forecaster = forecast.NewClient(&cfg.Forecast, log)
	a.Gateway = settlement.NewHTTPGateway(&cfg.Settlement, log)
	a.Publisher = events.New(&cfg.Events, log)

	a.Odds = service.NewOddsService(a.Repos, a.Forecaster, a.Publisher, log)
	a.Coordinator = service.NewCoordinator(a.Repos, a.Gateway, a.Publisher, cfg.Market, log)
	a.Bets = service.NewBetQuery(a.Repos)

	return a, nil
}

// RegisterChecks adds a readiness check for every configured dependency
func (a *App) RegisterChecks(h *health.Server) {
	if a.DB != nil {
		h.AddCheck("database", a.DB.HealthCheck)
	}
	if a.OddsCache != nil {
		h.AddCheck("redis", a.OddsCache.Ping)
	}
	h.AddCheck("settlement", a.Gateway.Health)
}

// Close releases every dependency
func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.WithError(err).Error("Failed to close event publisher")
		}
	}
	if a.Gateway != nil {
		_ = a.Gateway.Close()
	}
	if a.Forecaster != nil {
		_ = a.Forecaster.Close()
	}
	if a.OddsCache != nil {
		if err := a.OddsCache.Close(); err != nil {
			a.Logger.WithError(err).Error("Failed to close odds cache")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
