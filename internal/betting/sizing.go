package betting

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func bandMultiplier(bands []Band, v decimal.Decimal) decimal.Decimal {
	for _, b := range bands {
		if b.Below == nil || v.LessThan(*b.Below) {
			return b.Mult
		}
	}
	return decimal.NewFromInt(1)
}

// Stake sizes a bet: floor(base x multiplier / step) x step, clamped to [min, max].
// rate is the boat-1 local win rate and only matters when the strategy has rate bands.
// The second result explains the multiplier for the bet's reason document.
func (r *Registry) Stake(s *Strategy, rate, odds decimal.Decimal) (int, string) {
	mult := bandMultiplier(s.OddsBands, odds)
	reason := fmt.Sprintf("odds %s -> x%s", odds.StringFixed(1), mult.String())
	if len(s.RateBands) > 0 {
		rateMult := bandMultiplier(s.RateBands, rate)
		reason = fmt.Sprintf("rate %s -> x%s, %s", rate.StringFixed(2), rateMult.String(), reason)
		mult = mult.Mul(rateMult)
	}

	step := decimal.NewFromInt(int64(r.StakeRule.Step))
	raw := decimal.NewFromInt(int64(r.StakeRule.Base)).Mul(mult).Div(step).Floor().Mul(step)
	stake := int(raw.IntPart())
	switch {
	case stake < r.StakeRule.Min:
		stake = r.StakeRule.Min
	case stake > r.StakeRule.Max:
		stake = r.StakeRule.Max
	}
	return stake, fmt.Sprintf("%s = x%s", reason, mult.String())
}

// inRange checks v against a closed or half-open range.
func inRange(rg *Range, v decimal.Decimal, maxInclusive bool) (below, above bool) {
	if rg == nil {
		return false, false
	}
	if rg.Min != nil && v.LessThan(*rg.Min) {
		return true, false
	}
	if rg.Max != nil {
		if maxInclusive && v.GreaterThan(*rg.Max) {
			return false, true
		}
		if !maxInclusive && v.GreaterThanOrEqual(*rg.Max) {
			return false, true
		}
	}
	return false, false
}
