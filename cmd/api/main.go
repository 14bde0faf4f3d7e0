/**
 * @description
 * Main entry point for the Kyotei ops API.
 * Serves bets, funds, stored odds, the live odds stream and Prometheus metrics.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - backend/internal/config: Config loader
 * - backend/internal/db: Database connections
 *
 * @notes
 * - Read-only; no authentication, intended for the internal network.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kyotei-project/backend/internal/api"
	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/db"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/metrics"
	"github.com/kyotei-project/backend/internal/services"
	"github.com/kyotei-project/backend/internal/warehouse"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.File)

	// 2. Initialize Database Connections
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres: %v", err)
	}
	redisClient, closeRedis, err := db.ConnectRedisOrLocal(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis: %v", err)
	}
	defer closeRedis()

	gateway := warehouse.New(pgDB)

	// 3. Odds stream hub lives as long as the process
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	hub := services.NewOddsStreamHub(ctx, redisClient, services.OddsChannel)

	// 4. Initialize Fiber App
	app := fiber.New(fiber.Config{
		AppName:       "Kyotei Ops API",
		StrictRouting: true,
		CaseSensitive: true,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, OPTIONS",
	}))

	// 5. Routes
	api.SetupRoutes(app, api.Deps{
		Bets:    gateway,
		Odds:    gateway,
		Stream:  hub,
		Health:  services.NewHealthService(gateway, redisClient),
		Metrics: metrics.Default,
	})

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API...")
		_ = app.Shutdown()
	}()

	// 6. Start Server
	logger.Info("🚀 Starting Kyotei API on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}
