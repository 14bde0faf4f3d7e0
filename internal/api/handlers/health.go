package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/kyotei-project/backend/internal/services"
)

// HealthChecker checks the pipeline dependencies.
type HealthChecker interface {
	Check(ctx context.Context) services.HealthReport
}

type HealthHandler struct {
	Checker HealthChecker
}

func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{Checker: checker}
}

// GetHealth reports warehouse and Redis status
// GET /api/v1/health
func (h *HealthHandler) GetHealth(c *fiber.Ctx) error {
	report := h.Checker.Check(c.Context())
	status := fiber.StatusOK
	state := "ok"
	if !report.OK() {
		status = fiber.StatusServiceUnavailable
		state = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":    state,
		"warehouse": report.Warehouse,
		"redis":     report.Redis,
		"checkedAt": report.CheckedAt,
	})
}
