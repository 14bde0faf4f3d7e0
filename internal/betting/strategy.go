/**
 * @description
 * Declarative strategy registry. The single source of strategy definitions for
 * registration, decision and settlement, loaded from the embedded strategies.yaml.
 *
 * @dependencies
 * - gopkg.in/yaml.v3
 * - github.com/shopspring/decimal
 */

package betting

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/kyotei-project/backend/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed strategies.yaml
var defaultStrategies []byte

// Filter kinds.
const (
	FilterAll    = "all"
	FilterPairs  = "pairs"
	FilterVenues = "venues"
)

// Filter decides which (venue, race) pairs a strategy bets on.
type Filter struct {
	Kind   string
	Venues map[string]bool
	Pairs  map[string]map[int]bool
}

// Admits reports whether the race is eligible.
func (f Filter) Admits(venue string, race int) bool {
	switch f.Kind {
	case FilterAll:
		return true
	case FilterVenues:
		return f.Venues[venue]
	case FilterPairs:
		return f.Pairs[venue][race]
	}
	return false
}

// Range is a bound pair; nil means unbounded.
type Range struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

// Band maps values below a bound to a multiplier. The last band has no bound.
type Band struct {
	Below *decimal.Decimal
	Mult  decimal.Decimal
}

// StakeRule holds the shared sizing constants.
type StakeRule struct {
	Base int
	Min  int
	Max  int
	Step int
}

// Strategy is one declarative betting strategy.
type Strategy struct {
	ID             string
	Name           string
	BetKind        models.BetKind
	Combination    string
	InitialBalance int64
	Filter         Filter
	// boat-1 local win rate, half-open [Min, Max)
	ProgramRange *Range
	// closed [Min, Max]
	OddsRange *Range
	RateBands []Band
	OddsBands []Band
}

// UsesProgram reports whether decisions need the boat-1 program row.
func (s *Strategy) UsesProgram() bool {
	return s.ProgramRange != nil || len(s.RateBands) > 0
}

// Registry holds every strategy by id.
type Registry struct {
	StakeRule  StakeRule
	strategies map[string]*Strategy
	order      []string
}

// Get returns a strategy or nil.
func (r *Registry) Get(id string) *Strategy {
	return r.strategies[id]
}

// All returns strategies in definition order.
func (r *Registry) All() []*Strategy {
	out := make([]*Strategy, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.strategies[id])
	}
	return out
}

// Funds returns the initial fund row of every strategy.
func (r *Registry) Funds() []models.VirtualFund {
	var funds []models.VirtualFund
	for _, s := range r.All() {
		funds = append(funds, models.VirtualFund{StrategyID: s.ID, InitialBalance: s.InitialBalance, Balance: s.InitialBalance})
	}
	return funds
}

type yamlRange struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

type yamlBand struct {
	Below *float64 `yaml:"below"`
	Mult  float64  `yaml:"mult"`
}

type yamlStrategy struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	BetKind        string `yaml:"bet_kind"`
	Combination    string `yaml:"combination"`
	InitialBalance int64  `yaml:"initial_balance"`
	Filter         struct {
		Kind   string           `yaml:"kind"`
		Venues []string         `yaml:"venues"`
		Pairs  map[string][]int `yaml:"pairs"`
	} `yaml:"filter"`
	ProgramRange *yamlRange `yaml:"boat1_local_win_rate"`
	OddsRange    *yamlRange `yaml:"odds_range"`
	RateBands    []yamlBand `yaml:"rate_bands"`
	OddsBands    []yamlBand `yaml:"odds_bands"`
}

type yamlFile struct {
	Stake struct {
		Base int `yaml:"base"`
		Min  int `yaml:"min"`
		Max  int `yaml:"max"`
		Step int `yaml:"step"`
	} `yaml:"stake"`
	Strategies []yamlStrategy `yaml:"strategies"`
}

// DefaultRegistry loads the embedded strategies.
func DefaultRegistry() (*Registry, error) {
	return LoadRegistry(defaultStrategies)
}

// LoadRegistry parses and validates a strategy document.
func LoadRegistry(data []byte) (*Registry, error) {
	var doc yamlFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse strategies: %w", err)
	}

	reg := &Registry{
		StakeRule:  StakeRule{Base: doc.Stake.Base, Min: doc.Stake.Min, Max: doc.Stake.Max, Step: doc.Stake.Step},
		strategies: map[string]*Strategy{},
	}
	if reg.StakeRule.Step <= 0 || reg.StakeRule.Base <= 0 || reg.StakeRule.Min > reg.StakeRule.Max {
		return nil, fmt.Errorf("invalid stake rule %+v", reg.StakeRule)
	}

	for _, ys := range doc.Strategies {
		s, err := ys.build()
		if err != nil {
			return nil, fmt.Errorf("strategy %q: %w", ys.ID, err)
		}
		if _, dup := reg.strategies[s.ID]; dup {
			return nil, fmt.Errorf("duplicate strategy id %q", s.ID)
		}
		reg.strategies[s.ID] = s
		reg.order = append(reg.order, s.ID)
	}
	if len(reg.order) == 0 {
		return nil, fmt.Errorf("no strategies defined")
	}
	return reg, nil
}

func (ys yamlStrategy) build() (*Strategy, error) {
	if ys.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	kind, err := models.ParseBetKind(ys.BetKind)
	if err != nil {
		return nil, err
	}
	combo, err := models.CanonicalCombination(kind, ys.Combination)
	if err != nil {
		return nil, err
	}
	if kind != models.BetAuto {
		if _, ok := kind.OddsKind(); !ok {
			return nil, fmt.Errorf("bet kind %s has no odds table", kind)
		}
	}

	s := &Strategy{
		ID:             ys.ID,
		Name:           ys.Name,
		BetKind:        kind,
		Combination:    combo,
		InitialBalance: ys.InitialBalance,
		ProgramRange:   ys.ProgramRange.build(),
		OddsRange:      ys.OddsRange.build(),
	}
	if s.Name == "" {
		s.Name = s.ID
	}

	s.Filter.Kind = ys.Filter.Kind
	switch ys.Filter.Kind {
	case FilterAll:
	case FilterVenues:
		s.Filter.Venues = map[string]bool{}
		for _, v := range ys.Filter.Venues {
			code, err := models.NormalizeVenueCode(v)
			if err != nil {
				return nil, err
			}
			s.Filter.Venues[code] = true
		}
	case FilterPairs:
		s.Filter.Pairs = map[string]map[int]bool{}
		for v, races := range ys.Filter.Pairs {
			code, err := models.NormalizeVenueCode(v)
			if err != nil {
				return nil, err
			}
			if s.Filter.Pairs[code] == nil {
				s.Filter.Pairs[code] = map[int]bool{}
			}
			for _, n := range races {
				if n < 1 || n > 12 {
					return nil, fmt.Errorf("invalid race number %d at venue %s", n, code)
				}
				s.Filter.Pairs[code][n] = true
			}
		}
	default:
		return nil, fmt.Errorf("unknown filter kind %q", ys.Filter.Kind)
	}

	if s.RateBands, err = buildBands(ys.RateBands); err != nil {
		return nil, fmt.Errorf("rate_bands: %w", err)
	}
	if s.OddsBands, err = buildBands(ys.OddsBands); err != nil {
		return nil, fmt.Errorf("odds_bands: %w", err)
	}
	if len(s.OddsBands) == 0 {
		return nil, fmt.Errorf("odds_bands required")
	}
	return s, nil
}

func (yr *yamlRange) build() *Range {
	if yr == nil {
		return nil
	}
	r := &Range{}
	if yr.Min != nil {
		v := decimal.NewFromFloat(*yr.Min)
		r.Min = &v
	}
	if yr.Max != nil {
		v := decimal.NewFromFloat(*yr.Max)
		r.Max = &v
	}
	return r
}

func buildBands(in []yamlBand) ([]Band, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]Band, 0, len(in))
	for i, b := range in {
		band := Band{Mult: decimal.NewFromFloat(b.Mult)}
		if b.Below != nil {
			v := decimal.NewFromFloat(*b.Below)
			band.Below = &v
		} else if i != len(in)-1 {
			return nil, fmt.Errorf("only the last band may be unbounded")
		}
		out = append(out, band)
	}
	if out[len(out)-1].Below != nil {
		return nil, fmt.Errorf("last band must be unbounded")
	}
	if !sort.SliceIsSorted(out[:len(out)-1], func(i, j int) bool { return out[i].Below.LessThan(*out[j].Below) }) {
		return nil, fmt.Errorf("band bounds must ascend")
	}
	return out, nil
}
