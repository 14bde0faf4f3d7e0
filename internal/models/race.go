/**
 * @description
 * Race, program, result and payoff models.
 * Every table is keyed by the natural race key (race_date, venue_code, race_number).
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/shopspring/decimal
 */

package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Race is a single race at a venue on a date. Only Deadline and Canceled change after creation.
type Race struct {
	RaceDate   Date       `gorm:"column:race_date;primaryKey" json:"race_date"`
	VenueCode  string     `gorm:"column:venue_code;type:varchar(2);primaryKey" json:"venue_code"`
	RaceNumber int        `gorm:"column:race_number;primaryKey;autoIncrement:false" json:"race_number"`
	Title      string     `gorm:"column:title" json:"title"`
	Deadline   *time.Time `gorm:"column:deadline;type:timestamptz;index" json:"deadline,omitempty"`
	Canceled   bool       `gorm:"column:canceled;not null;default:false" json:"canceled"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Race) TableName() string { return "races" }

// Key returns the natural key.
func (r Race) Key() RaceKey {
	return RaceKey{Date: r.RaceDate, VenueCode: r.VenueCode, RaceNumber: r.RaceNumber}
}

// ProgramEntry is a pre-race card row for one boat.
type ProgramEntry struct {
	RaceDate        Date            `gorm:"column:race_date;primaryKey" json:"race_date"`
	VenueCode       string          `gorm:"column:venue_code;type:varchar(2);primaryKey" json:"venue_code"`
	RaceNumber      int             `gorm:"column:race_number;primaryKey;autoIncrement:false" json:"race_number"`
	BoatNumber      int             `gorm:"column:boat_number;primaryKey;autoIncrement:false" json:"boat_number"`
	RacerID         string          `gorm:"column:racer_id;type:varchar(4);index" json:"racer_id"`
	RacerName       string          `gorm:"column:racer_name" json:"racer_name"`
	Class           string          `gorm:"column:class;type:varchar(2)" json:"class"`
	Age             int             `gorm:"column:age" json:"age"`
	Branch          string          `gorm:"column:branch" json:"branch"`
	Weight          decimal.Decimal `gorm:"column:weight;type:decimal(5,1)" json:"weight"`
	NationalWinRate decimal.Decimal `gorm:"column:national_win_rate;type:decimal(5,2)" json:"national_win_rate"`
	NationalTop2    decimal.Decimal `gorm:"column:national_top2_rate;type:decimal(5,2)" json:"national_top2_rate"`
	LocalWinRate    decimal.Decimal `gorm:"column:local_win_rate;type:decimal(5,2)" json:"local_win_rate"`
	LocalTop2       decimal.Decimal `gorm:"column:local_top2_rate;type:decimal(5,2)" json:"local_top2_rate"`
	MotorNumber     int             `gorm:"column:motor_number" json:"motor_number"`
	MotorTop2       decimal.Decimal `gorm:"column:motor_top2_rate;type:decimal(5,2)" json:"motor_top2_rate"`
	BoatNo          int             `gorm:"column:boat_no" json:"boat_no"`
	BoatTop2        decimal.Decimal `gorm:"column:boat_top2_rate;type:decimal(5,2)" json:"boat_top2_rate"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (ProgramEntry) TableName() string { return "program_entries" }

// Key returns the race key of the entry.
func (p ProgramEntry) Key() RaceKey {
	return RaceKey{Date: p.RaceDate, VenueCode: p.VenueCode, RaceNumber: p.RaceNumber}
}

// Disqualification tokens recorded instead of a finishing rank.
const (
	DQFlying       = "F"       // false start
	DQLate         = "L"       // late start
	DQScratched    = "K"       // withdrawn before the start
	DQDisqualified = "S"       // disqualified in race
	DQFall         = "fall"    // fell into the water
	DQCapsize      = "capsize" // capsized or sank
	DQHinder       = "hinder"  // interference
	DQAbsent       = "absent"  // did not appear
)

var dqTokens = map[string]string{
	"F": DQFlying, "L": DQLate, "K": DQScratched, "S": DQDisqualified,
	"E": DQDisqualified, "エ": DQDisqualified, "失": DQDisqualified,
	"落": DQFall, "転": DQCapsize, "沈": DQCapsize, "妨": DQHinder, "欠": DQAbsent,
}

// ParseRankToken reads a finishing token. Numeric tokens give a rank in 1..6,
// anything else maps to a disqualification token.
func ParseRankToken(tok string) (rank int, dq string, ok bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, "", false
	}
	if n, err := strconv.Atoi(tok); err == nil {
		if n >= 1 && n <= 6 {
			return n, "", true
		}
		return 0, "", false
	}
	r := []rune(tok)
	if v, found := dqTokens[string(r[0])]; found {
		return 0, v, true
	}
	return 0, "", false
}

// ResultEntry is the official finishing row for one boat.
type ResultEntry struct {
	RaceDate         Date             `gorm:"column:race_date;primaryKey" json:"race_date"`
	VenueCode        string           `gorm:"column:venue_code;type:varchar(2);primaryKey" json:"venue_code"`
	RaceNumber       int              `gorm:"column:race_number;primaryKey;autoIncrement:false" json:"race_number"`
	BoatNumber       int              `gorm:"column:boat_number;primaryKey;autoIncrement:false" json:"boat_number"`
	Rank             int              `gorm:"column:rank" json:"rank"` // 0 when disqualified
	Disqualification string           `gorm:"column:disqualification;type:varchar(8)" json:"disqualification,omitempty"`
	RacerID          string           `gorm:"column:racer_id;type:varchar(4)" json:"racer_id"`
	RacerName        string           `gorm:"column:racer_name" json:"racer_name"`
	ExhibitionTime   *decimal.Decimal `gorm:"column:exhibition_time;type:decimal(4,2)" json:"exhibition_time,omitempty"`
	StartCourse      *int             `gorm:"column:start_course" json:"start_course,omitempty"`
	StartTiming      string           `gorm:"column:start_timing;type:varchar(8)" json:"start_timing,omitempty"`
	RaceTime         *decimal.Decimal `gorm:"column:race_time_seconds;type:decimal(6,1)" json:"race_time_seconds,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (ResultEntry) TableName() string { return "result_entries" }

// Payoff is the official payout per 100 yen for a winning combination.
type Payoff struct {
	RaceDate     Date    `gorm:"column:race_date;primaryKey" json:"race_date"`
	VenueCode    string  `gorm:"column:venue_code;type:varchar(2);primaryKey" json:"venue_code"`
	RaceNumber   int     `gorm:"column:race_number;primaryKey;autoIncrement:false" json:"race_number"`
	BetKind      BetKind `gorm:"column:bet_kind;type:varchar(16);primaryKey" json:"bet_kind"`
	Combination  string  `gorm:"column:combination;type:varchar(8);primaryKey" json:"combination"`
	PayoutPer100 int     `gorm:"column:payout_per_100" json:"payout_per_100"`
	Popularity   *int    `gorm:"column:popularity" json:"popularity,omitempty"`
}

func (Payoff) TableName() string { return "payoffs" }

// RaceOutcome bundles what settlement needs to grade a bet.
type RaceOutcome struct {
	Void    bool
	Entries []ResultEntry
	Payoffs []Payoff
}

// Finishers returns boat numbers ordered by rank, skipping disqualified boats.
func (o RaceOutcome) Finishers() []int {
	byRank := map[int]int{}
	for _, e := range o.Entries {
		if e.Rank > 0 {
			byRank[e.Rank] = e.BoatNumber
		}
	}
	var out []int
	for r := 1; r <= 6; r++ {
		b, ok := byRank[r]
		if !ok {
			break
		}
		out = append(out, b)
	}
	return out
}

// Payout returns the payout per 100 yen for a kind and canonical combination.
func (o RaceOutcome) Payout(kind BetKind, combination string) (int, bool) {
	for _, p := range o.Payoffs {
		if p.BetKind == kind && p.Combination == combination {
			return p.PayoutPer100, true
		}
	}
	return 0, false
}
