/**
 * @description
 * Worker Service Entry Point.
 * Runs the long-lived scheduler that drives every pipeline job:
 * 1. The morning daily batch (archives, races, programs, bet registration).
 * 2. Regular and near-deadline odds polling.
 * 3. Bet decisions, expiry, result collection and settlement.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: /metrics listener
 * - backend/internal/config
 * - backend/internal/jobs
 * - backend/internal/logger
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/jobs"
	"github.com/kyotei-project/backend/internal/logger"
)

func main() {
	logger.Info("🔥 Starting Kyotei Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.File)

	// 2. Context cancelled on TERM/INT
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Wire stores, services and jobs
	rt, err := jobs.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Fatal("Bootstrap failed: %v", err)
	}
	defer rt.Close()

	logger.Info("Operating window %s-%s JST, jobs: %v",
		cfg.Scheduler.OperatingOpen, cfg.Scheduler.OperatingClose, rt.Scheduler.Jobs())

	// 4. Expose job metrics for scraping
	var metricsApp *fiber.App
	if cfg.Server.MetricsPort != "" {
		metricsApp = fiber.New(fiber.Config{DisableStartupMessage: true})
		metricsApp.Get("/metrics", adaptor.HTTPHandler(rt.Metrics.Handler()))
		go func() {
			if err := metricsApp.Listen(":" + cfg.Server.MetricsPort); err != nil {
				logger.Error("Metrics listener stopped: %v", err)
			}
		}()
	}

	// 5. Run until signalled; in-flight jobs finish before Run returns
	if err := rt.Scheduler.Run(ctx); err != nil {
		logger.Error("Scheduler stopped with error: %v", err)
	}
	if metricsApp != nil {
		_ = metricsApp.Shutdown()
	}
	logger.Info("Worker exited.")
}
