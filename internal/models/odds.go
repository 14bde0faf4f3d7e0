package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OddsTick is one sampled odds value. Ticks are append-only.
// Place ticks carry a band: Value is the lower bound and MaxValue the upper.
type OddsTick struct {
	ID          uint64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RaceDate    Date             `gorm:"column:race_date;not null;uniqueIndex:idx_odds_tick_sample,priority:1;index:idx_odds_tick_latest,priority:1" json:"race_date"`
	VenueCode   string           `gorm:"column:venue_code;type:varchar(2);not null;uniqueIndex:idx_odds_tick_sample,priority:2;index:idx_odds_tick_latest,priority:2" json:"venue_code"`
	RaceNumber  int              `gorm:"column:race_number;not null;uniqueIndex:idx_odds_tick_sample,priority:3;index:idx_odds_tick_latest,priority:3" json:"race_number"`
	OddsKind    OddsKind         `gorm:"column:odds_kind;type:varchar(16);not null;uniqueIndex:idx_odds_tick_sample,priority:4;index:idx_odds_tick_latest,priority:4" json:"odds_kind"`
	Combination string           `gorm:"column:combination;type:varchar(8);not null;uniqueIndex:idx_odds_tick_sample,priority:5;index:idx_odds_tick_latest,priority:5" json:"combination"`
	Value       decimal.Decimal  `gorm:"column:value;type:decimal(8,1);not null" json:"value"`
	MaxValue    *decimal.Decimal `gorm:"column:max_value;type:decimal(8,1)" json:"max_value,omitempty"`
	SampledAt   time.Time        `gorm:"column:sampled_at;type:timestamptz;not null;uniqueIndex:idx_odds_tick_sample,priority:6;index:idx_odds_tick_latest,priority:6,sort:desc" json:"sampled_at"`
}

func (OddsTick) TableName() string { return "odds_ticks" }

// Key returns the race key of the tick.
func (o OddsTick) Key() RaceKey {
	return RaceKey{Date: o.RaceDate, VenueCode: o.VenueCode, RaceNumber: o.RaceNumber}
}
