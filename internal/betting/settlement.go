package betting

import (
	"context"
	"errors"
	"time"

	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/kyotei-project/backend/internal/notify"
)

// SettlementStats summarises one settlement pass.
type SettlementStats struct {
	Settled  int
	Won      int
	Lost     int
	Canceled int
	Waiting  int
}

// Settle grades confirmed bets whose race has finished. Bets whose result is not yet
// stored are left confirmed for the next pass. Void races cancel the bet and refund
// the stake without touching the fund.
func (e *Engine) Settle(ctx context.Context) (SettlementStats, error) {
	now := e.clock.Now()
	bets, err := e.store.ConfirmedBets(ctx, now)
	if err != nil {
		return SettlementStats{}, err
	}

	var (
		stats   SettlementStats
		settled []models.VirtualBet
	)
	for i := range bets {
		bet := bets[i]
		outcome, err := e.store.RaceOutcome(ctx, bet.Key())
		if errors.Is(err, errs.ErrDataMissing) {
			stats.Waiting++
			continue
		}
		if err != nil {
			return stats, err
		}

		if err := grade(&bet, outcome, now); err != nil {
			if errors.Is(err, errs.ErrDataMissing) {
				stats.Waiting++
				continue
			}
			logger.WithFields(logger.Fields{"bet": bet.ID, "race": bet.Key().String()}).Errorf("grade failed: %v", err)
			continue
		}

		var initial int64
		if s := e.registry.Get(bet.StrategyID); s != nil {
			initial = s.InitialBalance
		}
		ok, err := e.store.SettleBet(ctx, &bet, initial)
		if err != nil {
			return stats, err
		}
		if !ok {
			continue
		}

		stats.Settled++
		switch bet.Status {
		case models.BetWon:
			stats.Won++
		case models.BetLost:
			stats.Lost++
		case models.BetCanceled:
			stats.Canceled++
		}
		e.metrics.RecordBetTransition(bet.StrategyID, string(bet.Status))
		settled = append(settled, bet)
	}

	if len(settled) > 0 {
		e.publishSettlements(ctx, settled)
	}
	return stats, nil
}

// grade fills the settlement fields of bet from the race outcome.
func grade(bet *models.VirtualBet, outcome *models.RaceOutcome, now time.Time) error {
	settledAt := now
	if outcome.Void {
		refund, zero := bet.StakeAmount, 0
		bet.Status = models.BetCanceled
		bet.ReturnAmount = &refund
		bet.Profit = &zero
		bet.SettlementTime = &settledAt
		bet.MergeReason(map[string]interface{}{"settlement": "race-void"})
		return nil
	}

	hit, payout, err := Grade(bet.BetKind, bet.Combination, outcome)
	if err != nil {
		return err
	}
	ret := 0
	if hit {
		ret = ReturnAmount(payout, bet.StakeAmount)
		bet.Status = models.BetWon
		bet.PayoffPer100 = &payout
	} else {
		bet.Status = models.BetLost
	}
	profit := ret - bet.StakeAmount
	bet.ReturnAmount = &ret
	bet.Profit = &profit
	bet.ActualOutcome = ActualOutcome(outcome)
	bet.SettlementTime = &settledAt
	return nil
}

func (e *Engine) publishSettlements(ctx context.Context, settled []models.VirtualBet) {
	funds, err := e.store.Funds(ctx)
	if err != nil {
		logger.Warn("read funds after settlement: %v", err)
	}
	byStrategy := map[string]*models.VirtualFund{}
	for i := range funds {
		f := &funds[i]
		byStrategy[f.StrategyID] = f
		e.metrics.UpdateFund(f.StrategyID, f.Balance)
	}

	for _, bet := range settled {
		name := bet.StrategyID
		if s := e.registry.Get(bet.StrategyID); s != nil {
			name = s.Name
		}
		logger.WithFields(logger.Fields{
			"bet":      bet.ID,
			"strategy": bet.StrategyID,
			"race":     bet.Key().String(),
			"status":   bet.Status,
			"profit":   *bet.Profit,
		}).Info("bet settled")
		e.notify(ctx, notify.BetSettled(name, bet, byStrategy[bet.StrategyID]))
	}
}
