// Package main provides the entry point for the grade market API server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/grade-market/internal/api"
	"github.com/yourusername/grade-market/internal/app"
	"github.com/yourusername/grade-market/internal/health"
	"github.com/yourusername/grade-market/internal/logger"
	"github.com/yourusername/grade-market/internal/metrics"
	"github.com/yourusername/grade-market/internal/reconciler"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	sweep := flag.Bool("sweep", true, "Run the pending settlement sweep in-process")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := app.LoadConfig(ctx, *configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	appLog := logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"storage":     cfg.Storage.Driver,
		"version":     Version,
		"commit":      GitCommit,
	}).Info("Grade market server starting")

	metrics.InitRegistry()

	a, err := app.New(ctx, cfg, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize dependencies")
	}
	defer a.Close()

	var healthServer *health.Server
	if cfg.Metrics.Enabled {
		healthServer = health.NewServer(health.Config{
			ServiceName: cfg.App.Name,
			Version:     Version,
			Port:        cfg.Metrics.Port,
			MetricsPath: cfg.Metrics.Path,
			Logger:      appLog,
		})
		a.RegisterChecks(healthServer)
		if err := healthServer.Start(ctx); err != nil {
			appLog.WithError(err).Fatal("Failed to start health server")
		}
	}

	var sweeper *reconciler.Reconciler
	if *sweep && cfg.Reconciler.Schedule != "" {
		sweeper = reconciler.NewReconciler(a.Coordinator, appLog)
		if err := sweeper.Schedule(cfg.Reconciler.Schedule); err != nil {
			appLog.WithError(err).Fatal("Failed to schedule settlement sweep")
		}
		if err := sweeper.Start(); err != nil {
			appLog.WithError(err).Fatal("Failed to start settlement sweep")
		}
	}

	apiServer := api.NewServer(a.Odds, a.Coordinator, a.Bets, cfg.Settlement.AdminKey, appLog)
	httpServer := apiServer.HTTPServer(
		cfg.Server.Port,
		time.Duration(cfg.Server.ReadTimeoutSeconds)*time.Second,
		time.Duration(cfg.Server.WriteTimeoutSeconds)*time.Second,
	)

	go func() {
		appLog.WithField("port", cfg.Server.Port).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("API server error")
		}
	}()

	if healthServer != nil {
		healthServer.SetReady(true)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	appLog.WithField("signal", sig).Info("Shutdown signal received")

	if healthServer != nil {
		healthServer.SetReady(false)
	}

	// In-flight placements and resolutions run on detached contexts; give them time to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Error("Error during API server shutdown")
	}

	if sweeper != nil {
		sweeper.Stop()
	}
	cancel()

	appLog.Info("Grade market server shut down successfully")
}
