package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VirtualFund is the running bankroll of one strategy.
type VirtualFund struct {
	StrategyID     string          `gorm:"column:strategy_id;type:varchar(64);primaryKey" json:"strategy_id"`
	InitialBalance int64           `gorm:"column:initial_balance;not null" json:"initial_balance"`
	Balance        int64           `gorm:"column:balance;not null" json:"balance"`
	TotalStake     int64           `gorm:"column:total_stake;not null;default:0" json:"total_stake"`
	TotalReturn    int64           `gorm:"column:total_return;not null;default:0" json:"total_return"`
	TotalProfit    int64           `gorm:"column:total_profit;not null;default:0" json:"total_profit"`
	Bets           int             `gorm:"column:bets;not null;default:0" json:"bets"`
	Hits           int             `gorm:"column:hits;not null;default:0" json:"hits"`
	HitRate        decimal.Decimal `gorm:"column:hit_rate;type:decimal(7,4);not null;default:0" json:"hit_rate"`
	ReturnRate     decimal.Decimal `gorm:"column:return_rate;type:decimal(9,4);not null;default:0" json:"return_rate"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (VirtualFund) TableName() string { return "virtual_funds" }

// Apply folds one settled bet into the fund and recomputes the derived rates.
func (f *VirtualFund) Apply(stake, ret int, hit bool) {
	profit := int64(ret - stake)
	f.Balance += profit
	f.TotalStake += int64(stake)
	f.TotalReturn += int64(ret)
	f.TotalProfit += profit
	f.Bets++
	if hit {
		f.Hits++
	}
	f.HitRate = decimal.NewFromInt(int64(f.Hits)).DivRound(decimal.NewFromInt(int64(f.Bets)), 4)
	if f.TotalStake > 0 {
		f.ReturnRate = decimal.NewFromInt(f.TotalReturn).DivRound(decimal.NewFromInt(f.TotalStake), 4)
	}
}
