package betting

import (
	"context"
	"errors"
	"time"

	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/kyotei-project/backend/internal/notify"
	"github.com/shopspring/decimal"
)

// Skip reasons recorded in reason.skipReason.
const (
	SkipStrategyUnknown = "strategy-unknown"
	SkipProgramMissing  = "program-data-missing"
	SkipRateBelow       = "local-win-rate-below-threshold"
	SkipRateAbove       = "local-win-rate-above-threshold"
	SkipOddsMissing     = "odds-missing"
	SkipOddsNotOnSale   = "odds-not-on-sale"
	SkipOddsBelowMin    = "odds-below-min"
	SkipOddsAboveMax    = "odds-above-max"
	SkipDeadlinePassed  = "deadline-passed"
)

// DecisionStats summarises one decision pass.
type DecisionStats struct {
	Due       int
	Confirmed int
	Skipped   int
	Expired   int
	Stale     int
}

// Decide evaluates pending bets whose deadline lies within (now, now+window].
// Strategy-level conditions become skipped bets; only infrastructure errors fail the pass.
func (e *Engine) Decide(ctx context.Context) (DecisionStats, error) {
	now := e.clock.Now()
	bets, err := e.store.PendingBetsDue(ctx, now, now.Add(e.cfg.DecisionWindow))
	if err != nil {
		return DecisionStats{}, err
	}

	stats := DecisionStats{Due: len(bets)}
	for i := range bets {
		bet := bets[i]
		if err := e.decide(ctx, &bet, now); err != nil {
			return stats, err
		}

		if err := e.store.TransitionBet(ctx, &bet, models.BetPending); err != nil {
			if errors.Is(err, errs.ErrStaleTransition) {
				stats.Stale++
				continue
			}
			return stats, err
		}
		e.metrics.RecordBetTransition(bet.StrategyID, string(bet.Status))

		fields := logger.Fields{"bet": bet.ID, "strategy": bet.StrategyID, "race": bet.Key().String(), "status": bet.Status}
		switch bet.Status {
		case models.BetConfirmed:
			stats.Confirmed++
			fields["stake"] = bet.StakeAmount
			fields["odds"] = bet.FinalOdds.String()
			name := bet.StrategyID
			if s := e.registry.Get(bet.StrategyID); s != nil {
				name = s.Name
			}
			e.notify(ctx, notify.BetConfirmed(name, bet))
		case models.BetSkipped:
			stats.Skipped++
			fields["reason"] = bet.Reason["skipReason"]
		case models.BetExpired:
			stats.Expired++
		}
		logger.WithFields(fields).Info("bet decided")
	}
	return stats, nil
}

func skip(bet *models.VirtualBet, reason string) {
	bet.Status = models.BetSkipped
	bet.MergeReason(map[string]interface{}{"decision": "skipped", "skipReason": reason})
}

// decide fills in the decision on bet. Errors are infrastructure failures only.
func (e *Engine) decide(ctx context.Context, bet *models.VirtualBet, now time.Time) error {
	decidedAt := now
	bet.DecisionTime = &decidedAt

	s := e.registry.Get(bet.StrategyID)
	if s == nil {
		skip(bet, SkipStrategyUnknown)
		return nil
	}
	if bet.RaceDeadline != nil && !bet.RaceDeadline.After(now) {
		bet.Status = models.BetExpired
		bet.MergeReason(map[string]interface{}{"decision": "expired", "skipReason": SkipDeadlinePassed})
		return nil
	}
	key := bet.Key()

	// 1. Program predicate
	var rate decimal.Decimal
	if s.UsesProgram() {
		entry, err := e.store.BoatOneProgram(ctx, key)
		if errors.Is(err, errs.ErrNotFound) {
			skip(bet, SkipProgramMissing)
			return nil
		}
		if err != nil {
			return err
		}
		rate = entry.LocalWinRate
		bet.MergeReason(map[string]interface{}{"boat1LocalWinRate": rate.StringFixed(2)})

		switch below, above := inRange(s.ProgramRange, rate, false); {
		case below:
			skip(bet, SkipRateBelow)
			return nil
		case above:
			skip(bet, SkipRateAbove)
			return nil
		}
	}

	// 2. Odds
	q, err := e.resolveOdds(ctx, s, key, now)
	if err != nil {
		return err
	}
	if q.skip != "" {
		skip(bet, q.skip)
		return nil
	}
	if s.BetKind == models.BetAuto {
		bet.MergeReason(map[string]interface{}{"selectedBetType": string(q.kind)})
	}
	bet.MergeReason(map[string]interface{}{
		"odds":          q.odds.StringFixed(1),
		"oddsSampledAt": q.sampledAt.Format(time.RFC3339),
	})

	// 3. Odds range
	switch below, above := inRange(s.OddsRange, q.odds, true); {
	case below:
		skip(bet, SkipOddsBelowMin)
		return nil
	case above:
		skip(bet, SkipOddsAboveMax)
		return nil
	}

	// 4. Stake
	stake, why := e.registry.Stake(s, rate, q.sizingOdds)
	odds := q.odds
	bet.Status = models.BetConfirmed
	bet.BetKind = q.kind
	bet.FinalOdds = &odds
	bet.StakeAmount = stake
	bet.ExecutionTime = &decidedAt
	bet.MergeReason(map[string]interface{}{
		"decision":            "confirmed",
		"calculatedBetAmount": stake,
		"amountReason":        why,
	})
	return nil
}

type resolvedOdds struct {
	kind       models.BetKind
	odds       decimal.Decimal
	sizingOdds decimal.Decimal
	sampledAt  time.Time
	skip       string
}

// resolveOdds picks the quote to bet on. For auto bets the exacta and quinella sides
// are compared: the strictly higher one is bet, ties go to the exacta, and the stake
// is sized on the lower of the two.
func (e *Engine) resolveOdds(ctx context.Context, s *Strategy, key models.RaceKey, now time.Time) (resolvedOdds, error) {
	kinds := []models.BetKind{s.BetKind}
	if s.BetKind == models.BetAuto {
		kinds = []models.BetKind{models.BetNirentan, models.BetNirenpuku}
	}

	ticks, err := e.latestTicks(ctx, key, kinds, s.Combination, now)
	if err != nil {
		return resolvedOdds{}, err
	}

	var (
		best      *resolvedOdds
		lowest    decimal.Decimal
		notOnSale bool
	)
	for _, kind := range kinds {
		tick := ticks[kind]
		if tick == nil {
			continue
		}
		if !tick.Value.IsPositive() {
			notOnSale = true
			continue
		}
		if best == nil {
			best = &resolvedOdds{kind: kind, odds: tick.Value, sampledAt: tick.SampledAt}
			lowest = tick.Value
			continue
		}
		if tick.Value.GreaterThan(best.odds) {
			best = &resolvedOdds{kind: kind, odds: tick.Value, sampledAt: tick.SampledAt}
		}
		if tick.Value.LessThan(lowest) {
			lowest = tick.Value
		}
	}

	switch {
	case best != nil:
		best.sizingOdds = lowest
		return *best, nil
	case notOnSale:
		return resolvedOdds{skip: SkipOddsNotOnSale}, nil
	default:
		return resolvedOdds{skip: SkipOddsMissing}, nil
	}
}

// latestTicks reads the newest tick per kind. Missing or stale ticks trigger one
// live scrape of the race before reading again.
func (e *Engine) latestTicks(ctx context.Context, key models.RaceKey, kinds []models.BetKind, combination string, now time.Time) (map[models.BetKind]*models.OddsTick, error) {
	read := func() (map[models.BetKind]*models.OddsTick, bool, error) {
		out := map[models.BetKind]*models.OddsTick{}
		fresh := true
		for _, kind := range kinds {
			oddsKind, ok := kind.OddsKind()
			if !ok {
				fresh = false
				continue
			}
			combo, err := models.CanonicalCombination(kind, combination)
			if err != nil {
				return nil, false, err
			}
			tick, err := e.store.LatestOdds(ctx, key, oddsKind, combo)
			if errors.Is(err, errs.ErrNotFound) {
				fresh = false
				continue
			}
			if err != nil {
				return nil, false, err
			}
			if e.cfg.OddsMaxAge > 0 && tick.SampledAt.Before(now.Add(-e.cfg.OddsMaxAge)) {
				fresh = false
			}
			out[kind] = tick
		}
		return out, fresh, nil
	}

	ticks, fresh, err := read()
	if err != nil || fresh || e.refresher == nil {
		return ticks, err
	}

	if err := e.refresher.Refresh(ctx, key); err != nil {
		logger.Warn("odds refresh for %s failed, using stored ticks: %v", key, err)
		return ticks, nil
	}
	ticks, _, err = read()
	return ticks, err
}
