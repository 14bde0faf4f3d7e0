/**
 * @description
 * Odds API handlers: latest stored odds of a race and the live SSE stream.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 */

package handlers

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kyotei-project/backend/internal/models"
)

// keep-alive comment interval for idle SSE connections
const streamHeartbeat = 15 * time.Second

// OddsReader reads stored odds.
type OddsReader interface {
	LatestOddsForRace(ctx context.Context, key models.RaceKey) ([]models.OddsTick, error)
}

// OddsStream hands out live tick-set subscriptions.
type OddsStream interface {
	Subscribe() (<-chan []byte, func())
}

type OddsHandler struct {
	Reader OddsReader
	Stream OddsStream
}

func NewOddsHandler(reader OddsReader, stream OddsStream) *OddsHandler {
	return &OddsHandler{Reader: reader, Stream: stream}
}

func parseRaceKey(c *fiber.Ctx) (models.RaceKey, error) {
	date, err := models.ParseDate(c.Params("date"))
	if err != nil {
		return models.RaceKey{}, err
	}
	venue, err := models.NormalizeVenueCode(c.Params("venue"))
	if err != nil {
		return models.RaceKey{}, err
	}
	race, err := strconv.Atoi(c.Params("race"))
	if err != nil || race < 1 || race > 12 {
		return models.RaceKey{}, fmt.Errorf("invalid race number %q", c.Params("race"))
	}
	return models.RaceKey{Date: date, VenueCode: venue, RaceNumber: race}, nil
}

// GetRaceOdds returns the latest tick of every kind and combination of a race
// GET /api/v1/races/:date/:venue/:race/odds
func (h *OddsHandler) GetRaceOdds(c *fiber.Ctx) error {
	key, err := parseRaceKey(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ticks, err := h.Reader.LatestOddsForRace(c.Context(), key)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch odds",
		})
	}
	return c.JSON(fiber.Map{
		"race":  key.String(),
		"count": len(ticks),
		"odds":  ticks,
	})
}

// StreamOdds relays freshly stored tick sets over SSE
// GET /api/v1/odds/stream
func (h *OddsHandler) StreamOdds(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	requestCtx := c.Context()
	ch, unsubscribe := h.Stream.Subscribe()

	requestCtx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		// flush headers right away so clients see the stream open
		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		requestDone := requestCtx.Done()
		for {
			select {
			case <-requestDone:
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
			case payload, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "event: odds\ndata: %s\n\n", payload)
			}
			// a failed flush means the client went away
			if err := w.Flush(); err != nil {
				return
			}
		}
	})

	return nil
}
