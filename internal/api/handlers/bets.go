package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/kyotei-project/backend/internal/warehouse"
)

// BetReader reads virtual bets and funds.
type BetReader interface {
	ListBets(ctx context.Context, f warehouse.BetFilter) ([]models.VirtualBet, error)
	Funds(ctx context.Context) ([]models.VirtualFund, error)
}

type BetHandler struct {
	Reader BetReader
}

func NewBetHandler(reader BetReader) *BetHandler {
	return &BetHandler{Reader: reader}
}

var betStatuses = map[models.BetStatus]bool{
	models.BetPending: true, models.BetConfirmed: true, models.BetSkipped: true, models.BetExpired: true,
	models.BetWon: true, models.BetLost: true, models.BetCanceled: true,
}

// GetBets lists virtual bets, newest first
// GET /api/v1/bets?date=&strategy=&status=&limit=
func (h *BetHandler) GetBets(c *fiber.Ctx) error {
	filter := warehouse.BetFilter{
		StrategyID: c.Query("strategy"),
		Status:     models.BetStatus(c.Query("status")),
		Limit:      c.QueryInt("limit", 100),
	}
	if raw := c.Query("date"); raw != "" {
		date, err := models.ParseDate(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		filter.Date = date
	}
	if filter.Status != "" && !betStatuses[filter.Status] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown status " + string(filter.Status)})
	}

	bets, err := h.Reader.ListBets(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch bets",
		})
	}
	return c.JSON(bets)
}

// GetFunds returns the bankroll of every strategy
// GET /api/v1/funds
func (h *BetHandler) GetFunds(c *fiber.Ctx) error {
	funds, err := h.Reader.Funds(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch funds",
		})
	}
	return c.JSON(funds)
}
