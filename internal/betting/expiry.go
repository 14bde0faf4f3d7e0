package betting

import (
	"context"
	"errors"

	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/models"
)

// Expire moves pending bets whose deadline passed more than the grace ago to expired.
func (e *Engine) Expire(ctx context.Context) (int, error) {
	now := e.clock.Now()
	bets, err := e.store.PendingBetsPastDeadline(ctx, now.Add(-e.cfg.ExpiryGrace))
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range bets {
		bet := bets[i]
		decidedAt := now
		bet.Status = models.BetExpired
		bet.DecisionTime = &decidedAt
		bet.MergeReason(map[string]interface{}{"decision": "expired", "skipReason": SkipDeadlinePassed})

		if err := e.store.TransitionBet(ctx, &bet, models.BetPending); err != nil {
			if errors.Is(err, errs.ErrStaleTransition) {
				continue
			}
			return expired, err
		}
		expired++
		e.metrics.RecordBetTransition(bet.StrategyID, string(models.BetExpired))
	}
	if expired > 0 {
		logger.Info("Expired %d pending bets past deadline", expired)
	}
	return expired, nil
}
