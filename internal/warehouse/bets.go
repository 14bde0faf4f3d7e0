package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const betWithDeadline = "virtual_bets.*, races.deadline AS race_deadline"

const joinRaces = "JOIN races ON races.race_date = virtual_bets.race_date " +
	"AND races.venue_code = virtual_bets.venue_code AND races.race_number = virtual_bets.race_number"

// CreatePendingBet registers a bet unless one already exists for the
// (strategy, race, combination) key. It reports whether a row was inserted.
func (g *Gateway) CreatePendingBet(ctx context.Context, bet *models.VirtualBet) (bool, error) {
	bet.Status = models.BetPending
	var created bool
	err := g.withRetry(ctx, "create pending bet", func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "strategy_id"}, {Name: "race_date"}, {Name: "venue_code"}, {Name: "race_number"}, {Name: "combination"}},
			DoNothing: true,
		}).Create(bet)
		created = res.RowsAffected == 1
		return res.Error
	})
	return created, err
}

// PendingBetsDue lists pending bets whose race deadline lies in (from, to].
func (g *Gateway) PendingBetsDue(ctx context.Context, from, to time.Time) ([]models.VirtualBet, error) {
	var bets []models.VirtualBet
	err := g.DB.WithContext(ctx).
		Select(betWithDeadline).
		Joins(joinRaces).
		Where("virtual_bets.status = ? AND races.deadline > ? AND races.deadline <= ?", models.BetPending, from, to).
		Order("races.deadline, virtual_bets.id").
		Find(&bets).Error
	return bets, err
}

// PendingBetsPastDeadline lists pending bets whose race deadline is before cutoff.
func (g *Gateway) PendingBetsPastDeadline(ctx context.Context, cutoff time.Time) ([]models.VirtualBet, error) {
	var bets []models.VirtualBet
	err := g.DB.WithContext(ctx).
		Select(betWithDeadline).
		Joins(joinRaces).
		Where("virtual_bets.status = ? AND races.deadline < ?", models.BetPending, cutoff).
		Order("virtual_bets.id").
		Find(&bets).Error
	return bets, err
}

// ConfirmedBets lists confirmed bets whose race deadline is before cutoff.
func (g *Gateway) ConfirmedBets(ctx context.Context, cutoff time.Time) ([]models.VirtualBet, error) {
	var bets []models.VirtualBet
	err := g.DB.WithContext(ctx).
		Select(betWithDeadline).
		Joins(joinRaces).
		Where("virtual_bets.status = ? AND (races.deadline < ? OR races.canceled)", models.BetConfirmed, cutoff).
		Order("virtual_bets.id").
		Find(&bets).Error
	return bets, err
}

// lockBet reads a bet with a row lock and checks its current status.
func lockBet(tx *gorm.DB, id uint64, want models.BetStatus) (*models.VirtualBet, error) {
	var current models.VirtualBet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("bet %d: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if current.Status != want {
		return nil, fmt.Errorf("bet %d is %s, expected %s: %w", id, current.Status, want, errs.ErrStaleTransition)
	}
	return &current, nil
}

// TransitionBet moves a pending bet to its decided status and persists the decision fields.
// It fails with ErrStaleTransition when another worker got there first.
func (g *Gateway) TransitionBet(ctx context.Context, bet *models.VirtualBet, from models.BetStatus) error {
	if !from.CanTransition(bet.Status) {
		return fmt.Errorf("bet %d: %s -> %s is not a legal transition", bet.ID, from, bet.Status)
	}
	return g.withRetry(ctx, "transition bet", func(tx *gorm.DB) error {
		if _, err := lockBet(tx, bet.ID, from); err != nil {
			return err
		}
		return tx.Model(&models.VirtualBet{}).Where("id = ?", bet.ID).Updates(map[string]interface{}{
			"status":         bet.Status,
			"bet_kind":       bet.BetKind,
			"stake_amount":   bet.StakeAmount,
			"final_odds":     bet.FinalOdds,
			"reason":         bet.Reason,
			"decision_time":  bet.DecisionTime,
			"execution_time": bet.ExecutionTime,
		}).Error
	})
}

// SettleBet records the outcome of a confirmed bet and folds it into the strategy fund
// in the same transaction. Canceled bets leave the fund untouched. A bet that is no
// longer confirmed is skipped, so settling twice is a no-op; the result reports
// whether this call settled it.
func (g *Gateway) SettleBet(ctx context.Context, bet *models.VirtualBet, initialBalance int64) (bool, error) {
	var settled bool
	err := g.withRetry(ctx, "settle bet", func(tx *gorm.DB) error {
		settled = false
		current, err := lockBet(tx, bet.ID, models.BetConfirmed)
		if errors.Is(err, errs.ErrStaleTransition) {
			return nil
		}
		if err != nil {
			return err
		}

		err = tx.Model(&models.VirtualBet{}).Where("id = ?", bet.ID).Updates(map[string]interface{}{
			"status":          bet.Status,
			"actual_outcome":  bet.ActualOutcome,
			"payoff_per_100":  bet.PayoffPer100,
			"return_amount":   bet.ReturnAmount,
			"profit":          bet.Profit,
			"reason":          bet.Reason,
			"settlement_time": bet.SettlementTime,
		}).Error
		if err != nil {
			return err
		}
		settled = true
		if bet.Status == models.BetCanceled {
			return nil
		}

		fund, err := lockFund(tx, current.StrategyID, initialBalance)
		if err != nil {
			return err
		}
		ret := 0
		if bet.ReturnAmount != nil {
			ret = *bet.ReturnAmount
		}
		fund.Apply(current.StakeAmount, ret, bet.Status == models.BetWon)
		return tx.Save(fund).Error
	})
	return settled, err
}

// BetFilter narrows ListBets. Zero values match everything.
type BetFilter struct {
	Date       models.Date
	StrategyID string
	Status     models.BetStatus
	Limit      int
}

// ListBets returns bets newest first.
func (g *Gateway) ListBets(ctx context.Context, f BetFilter) ([]models.VirtualBet, error) {
	q := g.DB.WithContext(ctx).Model(&models.VirtualBet{})
	if f.Date != "" {
		q = q.Where("race_date = ?", f.Date)
	}
	if f.StrategyID != "" {
		q = q.Where("strategy_id = ?", f.StrategyID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var bets []models.VirtualBet
	err := q.Order("id DESC").Limit(limit).Find(&bets).Error
	return bets, err
}
