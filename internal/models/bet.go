/**
 * @description
 * Virtual bet model and its lifecycle.
 * Maps to the 'virtual_bets' table in PostgreSQL.
 *
 * @dependencies
 * - gorm.io/gorm
 * - gorm.io/datatypes: JSON reason document
 * - github.com/shopspring/decimal
 */

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BetStatus is the lifecycle state of a virtual bet.
type BetStatus string

const (
	BetPending   BetStatus = "pending"
	BetConfirmed BetStatus = "confirmed"
	BetSkipped   BetStatus = "skipped"
	BetExpired   BetStatus = "expired"
	BetWon       BetStatus = "won"
	BetLost      BetStatus = "lost"
	BetCanceled  BetStatus = "canceled"
)

var betTransitions = map[BetStatus][]BetStatus{
	BetPending:   {BetConfirmed, BetSkipped, BetExpired},
	BetConfirmed: {BetWon, BetLost, BetCanceled},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func (s BetStatus) CanTransition(to BetStatus) bool {
	for _, next := range betTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s BetStatus) IsTerminal() bool {
	return len(betTransitions[s]) == 0
}

// VirtualBet is a simulated wager placed by a strategy.
type VirtualBet struct {
	ID             uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	StrategyID     string            `gorm:"column:strategy_id;type:varchar(64);not null;uniqueIndex:idx_virtual_bet_unique,priority:1;index" json:"strategy_id"`
	RaceDate       Date              `gorm:"column:race_date;not null;uniqueIndex:idx_virtual_bet_unique,priority:2;index:idx_virtual_bet_race,priority:1" json:"race_date"`
	VenueCode      string            `gorm:"column:venue_code;type:varchar(2);not null;uniqueIndex:idx_virtual_bet_unique,priority:3;index:idx_virtual_bet_race,priority:2" json:"venue_code"`
	RaceNumber     int               `gorm:"column:race_number;not null;uniqueIndex:idx_virtual_bet_unique,priority:4;index:idx_virtual_bet_race,priority:3" json:"race_number"`
	BetKind        BetKind           `gorm:"column:bet_kind;type:varchar(16);not null" json:"bet_kind"`
	Combination    string            `gorm:"column:combination;type:varchar(8);not null;uniqueIndex:idx_virtual_bet_unique,priority:5" json:"combination"`
	StakeAmount    int               `gorm:"column:stake_amount;not null;default:0" json:"stake_amount"`
	Status         BetStatus         `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	FinalOdds      *decimal.Decimal  `gorm:"column:final_odds;type:decimal(8,1)" json:"final_odds,omitempty"`
	Reason         datatypes.JSONMap `gorm:"column:reason;type:jsonb" json:"reason"`
	DecisionTime   *time.Time        `gorm:"column:decision_time;type:timestamptz" json:"decision_time,omitempty"`
	ExecutionTime  *time.Time        `gorm:"column:execution_time;type:timestamptz" json:"execution_time,omitempty"`
	ActualOutcome  string            `gorm:"column:actual_outcome;type:varchar(8)" json:"actual_outcome,omitempty"`
	PayoffPer100   *int              `gorm:"column:payoff_per_100" json:"payoff_per_100,omitempty"`
	ReturnAmount   *int              `gorm:"column:return_amount" json:"return_amount,omitempty"`
	Profit         *int              `gorm:"column:profit" json:"profit,omitempty"`
	SettlementTime *time.Time        `gorm:"column:settlement_time;type:timestamptz" json:"settlement_time,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`

	// Populated by joined reads, never persisted.
	RaceDeadline *time.Time `gorm:"column:race_deadline;->;-:migration" json:"race_deadline,omitempty"`
}

func (VirtualBet) TableName() string { return "virtual_bets" }

// Key returns the race key of the bet.
func (b VirtualBet) Key() RaceKey {
	return RaceKey{Date: b.RaceDate, VenueCode: b.VenueCode, RaceNumber: b.RaceNumber}
}

// MergeReason copies fields into the reason document without dropping earlier keys.
func (b *VirtualBet) MergeReason(fields map[string]interface{}) {
	if b.Reason == nil {
		b.Reason = datatypes.JSONMap{}
	}
	for k, v := range fields {
		b.Reason[k] = v
	}
}
