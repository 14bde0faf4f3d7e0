/**
 * @description
 * Bet and odds kinds with their alias tables, plus combination canonicalization.
 */

package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BetKind is the closed set of wager types.
type BetKind string

const (
	BetTansho     BetKind = "tansho"     // win
	BetFukusho    BetKind = "fukusho"    // place
	BetNirentan   BetKind = "nirentan"   // exacta
	BetNirenpuku  BetKind = "nirenpuku"  // quinella
	BetWide       BetKind = "wide"       // quinella place
	BetSanrentan  BetKind = "sanrentan"  // trifecta
	BetSanrenpuku BetKind = "sanrenpuku" // trio
	// BetAuto is a strategy placeholder resolved to nirentan or nirenpuku at decision time.
	BetAuto BetKind = "auto"
)

// payoff labels as printed in result files and pages, plus wire aliases
var betKindAliases = map[string]BetKind{
	"tansho": BetTansho, "単勝": BetTansho, "win": BetTansho,
	"fukusho": BetFukusho, "複勝": BetFukusho, "place": BetFukusho,
	"nirentan": BetNirentan, "2連単": BetNirentan, "２連単": BetNirentan, "2t": BetNirentan,
	"nirenpuku": BetNirenpuku, "2連複": BetNirenpuku, "２連複": BetNirenpuku, "2f": BetNirenpuku,
	"wide": BetWide, "拡連複": BetWide,
	"sanrentan": BetSanrentan, "3連単": BetSanrentan, "３連単": BetSanrentan, "3t": BetSanrentan,
	"sanrenpuku": BetSanrenpuku, "3連複": BetSanrenpuku, "３連複": BetSanrenpuku, "3f": BetSanrenpuku,
	"auto": BetAuto,
}

// ParseBetKind resolves a canonical name, Japanese label or alias.
func ParseBetKind(s string) (BetKind, error) {
	if k, ok := betKindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown bet kind %q", s)
}

// Arity is the number of boats in a combination of this kind.
func (k BetKind) Arity() int {
	switch k {
	case BetTansho, BetFukusho:
		return 1
	case BetNirentan, BetNirenpuku, BetWide, BetAuto:
		return 2
	case BetSanrentan, BetSanrenpuku:
		return 3
	}
	return 0
}

// Unordered reports whether finishing order within the combination is irrelevant.
func (k BetKind) Unordered() bool {
	return k == BetNirenpuku || k == BetWide || k == BetSanrenpuku
}

// OddsKind maps the bet kind to the odds table that prices it.
func (k BetKind) OddsKind() (OddsKind, bool) {
	switch k {
	case BetTansho:
		return OddsWin, true
	case BetFukusho:
		return OddsPlace, true
	case BetNirentan:
		return OddsNirentan, true
	case BetNirenpuku:
		return OddsNirenpuku, true
	}
	return "", false
}

// OddsKind is the closed set of scraped odds tables.
type OddsKind string

const (
	OddsWin       OddsKind = "win"
	OddsPlace     OddsKind = "place"
	OddsNirentan  OddsKind = "nirentan"
	OddsNirenpuku OddsKind = "nirenpuku"
)

var oddsKindAliases = map[string]OddsKind{
	"win": OddsWin, "tansho": OddsWin,
	"place": OddsPlace, "fukusho": OddsPlace,
	"nirentan": OddsNirentan, "2t": OddsNirentan,
	"nirenpuku": OddsNirenpuku, "2f": OddsNirenpuku,
}

// ParseOddsKind resolves an odds kind or alias.
func ParseOddsKind(s string) (OddsKind, error) {
	if k, ok := oddsKindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown odds kind %q", s)
}

// BetKind returns the concrete bet kind priced by this table.
func (k OddsKind) BetKind() BetKind {
	switch k {
	case OddsWin:
		return BetTansho
	case OddsPlace:
		return BetFukusho
	case OddsNirenpuku:
		return BetNirenpuku
	}
	return BetNirentan
}

var combinationSeparators = strings.NewReplacer("=", "-", "－", "-", "＝", "-", " ", "-")

// CanonicalCombination validates a combination and returns it in canonical form:
// boats joined by "-", sorted ascending for unordered kinds.
func CanonicalCombination(kind BetKind, raw string) (string, error) {
	s := combinationSeparators.Replace(strings.TrimSpace(raw))
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' })

	want := kind.Arity()
	if want == 0 {
		return "", fmt.Errorf("unknown bet kind %q", kind)
	}
	if len(parts) != want {
		return "", fmt.Errorf("combination %q needs %d boats for %s", raw, want, kind)
	}

	boats := make([]int, 0, len(parts))
	seen := map[int]bool{}
	for _, p := range parts {
		n, err := strconv.Atoi(normalizeDigit(p))
		if err != nil || n < 1 || n > 6 {
			return "", fmt.Errorf("invalid boat %q in combination %q", p, raw)
		}
		if seen[n] {
			return "", fmt.Errorf("duplicate boat %d in combination %q", n, raw)
		}
		seen[n] = true
		boats = append(boats, n)
	}
	if kind.Unordered() {
		sort.Ints(boats)
	}
	return JoinBoats(boats), nil
}

// JoinBoats renders boat numbers as "1-3-5".
func JoinBoats(boats []int) string {
	out := make([]string, len(boats))
	for i, b := range boats {
		out[i] = strconv.Itoa(b)
	}
	return strings.Join(out, "-")
}

// SplitBoats parses a canonical combination.
func SplitBoats(combination string) []int {
	var out []int
	for _, p := range strings.Split(combination, "-") {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func normalizeDigit(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) == 1 && r[0] >= '０' && r[0] <= '９' {
		return string('0' + (r[0] - '０'))
	}
	return string(r)
}
