package betting

import (
	"context"
	"fmt"
	"time"

	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/models"
)

// Register creates a pending bet for every strategy and eligible race of the day.
// Existing (strategy, race, combination) bets are left alone, so re-running is safe.
// It returns the number of bets created.
func (e *Engine) Register(ctx context.Context, date models.Date) (int, error) {
	if err := e.store.EnsureFunds(ctx, e.registry.Funds()); err != nil {
		return 0, fmt.Errorf("ensure funds: %w", err)
	}

	races, err := e.store.RacesForDate(ctx, date)
	if err != nil {
		return 0, err
	}

	now := e.clock.Now()
	created := 0
	for _, s := range e.registry.All() {
		for _, race := range races {
			if race.Canceled || !s.Filter.Admits(race.VenueCode, race.RaceNumber) {
				continue
			}
			bet := &models.VirtualBet{
				StrategyID:  s.ID,
				RaceDate:    race.RaceDate,
				VenueCode:   race.VenueCode,
				RaceNumber:  race.RaceNumber,
				BetKind:     s.BetKind,
				Combination: s.Combination,
			}
			bet.MergeReason(map[string]interface{}{
				"strategy_name": s.Name,
				"registered_at": now.Format(time.RFC3339),
			})

			ok, err := e.store.CreatePendingBet(ctx, bet)
			if err != nil {
				return created, fmt.Errorf("register %s %s: %w", s.ID, race.Key(), err)
			}
			if ok {
				created++
				e.metrics.RecordBetTransition(s.ID, string(models.BetPending))
			}
		}
	}

	logger.WithFields(logger.Fields{"date": date, "races": len(races), "created": created}).Info("bets registered")
	return created, nil
}
