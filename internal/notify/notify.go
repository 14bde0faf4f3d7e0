// Package notify delivers bet lifecycle messages to an operator chat.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/kyotei-project/backend/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Notifier delivers a text message. Implementations must not block the caller for long.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Noop discards every message. Used when no chat is configured.
type Noop struct{}

func (Noop) Notify(context.Context, string) error { return nil }

// BetConfirmed renders a confirmation message.
func BetConfirmed(strategyName string, bet models.VirtualBet) string {
	odds := "-"
	if bet.FinalOdds != nil {
		odds = bet.FinalOdds.StringFixed(1)
	}
	return fmt.Sprintf("✅ %s\n%s %s %dR %s %s\nodds %s / stake ¥%d",
		strategyName, bet.RaceDate, venueLabel(bet.VenueCode), bet.RaceNumber,
		bet.BetKind, bet.Combination, odds, bet.StakeAmount)
}

// BetSettled renders a settlement message.
func BetSettled(strategyName string, bet models.VirtualBet, fund *models.VirtualFund) string {
	var b strings.Builder
	icon := "❌"
	switch bet.Status {
	case models.BetWon:
		icon = "🎯"
	case models.BetCanceled:
		icon = "⚪"
	}
	fmt.Fprintf(&b, "%s %s %s\n%s %s %dR %s %s",
		icon, strategyName, bet.Status, bet.RaceDate, venueLabel(bet.VenueCode), bet.RaceNumber,
		bet.BetKind, bet.Combination)
	if bet.ActualOutcome != "" {
		fmt.Fprintf(&b, "\nresult %s", bet.ActualOutcome)
	}
	if bet.Profit != nil {
		fmt.Fprintf(&b, "\nprofit ¥%+d", *bet.Profit)
	}
	if fund != nil {
		fmt.Fprintf(&b, "\nbalance ¥%d (hit %s%%)", fund.Balance, fund.HitRate.Mul(hundred).StringFixed(1))
	}
	return b.String()
}

func venueLabel(code string) string {
	if name := models.VenueName(code); name != "" {
		return name
	}
	return code
}
