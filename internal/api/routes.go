/**
 * @description
 * API Route definitions.
 * Read-only ops surface over the warehouse, the live odds stream and metrics.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - github.com/gofiber/fiber/v2/middleware/adaptor: Prometheus handler
 * - backend/internal/api/handlers
 */

package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kyotei-project/backend/internal/api/handlers"
	"github.com/kyotei-project/backend/internal/metrics"
)

// Deps are the readers behind the routes.
type Deps struct {
	Bets    handlers.BetReader
	Odds    handlers.OddsReader
	Stream  handlers.OddsStream
	Health  handlers.HealthChecker
	Metrics *metrics.PipelineMetrics
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, d Deps) {
	// 1. Initialize Handlers
	healthHandler := handlers.NewHealthHandler(d.Health)
	betHandler := handlers.NewBetHandler(d.Bets)
	oddsHandler := handlers.NewOddsHandler(d.Odds, d.Stream)

	// 2. Define Routes
	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/health", healthHandler.GetHealth)
	v1.Get("/funds", betHandler.GetFunds)
	v1.Get("/bets", betHandler.GetBets)
	v1.Get("/races/:date/:venue/:race/odds", oddsHandler.GetRaceOdds)
	v1.Get("/odds/stream", oddsHandler.StreamOdds)

	// 3. Prometheus
	pm := d.Metrics
	if pm == nil {
		pm = metrics.Default
	}
	app.Get("/metrics", adaptor.HTTPHandler(pm.Handler()))
}
