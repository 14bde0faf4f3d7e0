package betting

import (
	"fmt"
	"sort"

	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/models"
)

// Grade decides whether a bet hit and returns the payout per 100 yen when it did.
// A hit without a published payoff row reports ErrDataMissing so settlement waits,
// as does a place or wide bet on an outcome that has no rows of that kind yet.
func Grade(kind models.BetKind, combination string, outcome *models.RaceOutcome) (bool, int, error) {
	finishers := outcome.Finishers()
	boats := models.SplitBoats(combination)
	if len(boats) != kind.Arity() {
		return false, 0, fmt.Errorf("combination %q does not fit %s", combination, kind)
	}
	if (kind == models.BetFukusho || kind == models.BetWide) && !hasPayoffs(outcome, kind) {
		return false, 0, fmt.Errorf("%s payoffs not published: %w", kind, errs.ErrDataMissing)
	}

	var hit bool
	switch kind {
	case models.BetTansho:
		hit = len(finishers) >= 1 && finishers[0] == boats[0]
	case models.BetFukusho:
		// paid places are decided by the payoff rows
		_, paid := outcome.Payout(kind, combination)
		hit = paid && contains(top(finishers, 3), boats[0])
	case models.BetNirentan:
		hit = len(finishers) >= 2 && models.JoinBoats(finishers[:2]) == combination
	case models.BetNirenpuku:
		hit = len(finishers) >= 2 && sortedJoin(finishers[:2]) == combination
	case models.BetWide:
		_, paid := outcome.Payout(kind, combination)
		podium := top(finishers, 3)
		hit = paid && contains(podium, boats[0]) && contains(podium, boats[1])
	case models.BetSanrentan:
		hit = len(finishers) >= 3 && models.JoinBoats(finishers[:3]) == combination
	case models.BetSanrenpuku:
		hit = len(finishers) >= 3 && sortedJoin(finishers[:3]) == combination
	default:
		return false, 0, fmt.Errorf("cannot grade bet kind %s", kind)
	}
	if !hit {
		return false, 0, nil
	}

	payout, ok := outcome.Payout(kind, combination)
	if !ok {
		return false, 0, fmt.Errorf("%s %s hit without payoff row: %w", kind, combination, errs.ErrDataMissing)
	}
	return true, payout, nil
}

// ActualOutcome is the factual finishing order of the first three boats.
func ActualOutcome(outcome *models.RaceOutcome) string {
	return models.JoinBoats(top(outcome.Finishers(), 3))
}

// ReturnAmount is floor(payout x stake / 100).
func ReturnAmount(payoutPer100, stake int) int {
	return payoutPer100 * stake / 100
}

func hasPayoffs(outcome *models.RaceOutcome, kind models.BetKind) bool {
	for _, p := range outcome.Payoffs {
		if p.BetKind == kind {
			return true
		}
	}
	return false
}

func top(finishers []int, n int) []int {
	if len(finishers) < n {
		return finishers
	}
	return finishers[:n]
}

func contains(boats []int, b int) bool {
	for _, x := range boats {
		if x == b {
			return true
		}
	}
	return false
}

func sortedJoin(boats []int) string {
	s := append([]int(nil), boats...)
	sort.Ints(s)
	return models.JoinBoats(s)
}
