package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Quote is one scraped odds cell. Place quotes carry a band in Value..Max.
type Quote struct {
	Kind        models.OddsKind
	Combination string
	Value       decimal.Decimal
	Max         *decimal.Decimal
}

// FetchOdds scrapes the two-boat odds grid and the win/place tables of a race.
func (c *Client) FetchOdds(ctx context.Context, key models.RaceKey) ([]Quote, error) {
	// 1. Exacta and quinella grid
	doc, err := c.fetch(ctx, PageOdds2T, key)
	if err != nil {
		return nil, err
	}
	quotes, err := ParseTwoBoatOdds(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	// 2. Win and place
	doc, err = c.fetch(ctx, PageOddsWin, key)
	if err != nil {
		return nil, err
	}
	winPlace, err := ParseWinPlaceOdds(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	return append(quotes, winPlace...), nil
}

// ParseTwoBoatOdds reads the odds2tf page. The first grid prices the unordered
// pair and the second the ordered pair. Each grid has one column pair
// (second boat, odds) per first boat.
func ParseTwoBoatOdds(doc *goquery.Document) ([]Quote, error) {
	var grids []*goquery.Selection
	doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		if t.Find("td.oddsPoint").Length() > 0 && t.Find("thead th").Length() >= 6 {
			grids = append(grids, t)
		}
	})

	switch len(grids) {
	case 0:
		return nil, fmt.Errorf("%w: two-boat odds not published", errs.ErrDataMissing)
	case 1:
		return nil, fmt.Errorf("%w: expected 2 two-boat odds grids, found 1", errs.ErrParseMalformed)
	}

	var out []Quote
	for i, kind := range []models.OddsKind{models.OddsNirenpuku, models.OddsNirentan} {
		quotes, err := parseGrid(grids[i], kind)
		if err != nil {
			return nil, err
		}
		out = append(out, quotes...)
	}
	return out, nil
}

func parseGrid(t *goquery.Selection, kind models.OddsKind) ([]Quote, error) {
	var firsts []int
	t.Find("thead th").Each(func(_ int, th *goquery.Selection) {
		if n, err := strconv.Atoi(cellText(th)); err == nil && n >= 1 && n <= 6 {
			firsts = append(firsts, n)
		}
	})
	if len(firsts) != 6 {
		return nil, fmt.Errorf("%w: %s grid header has %d boats", errs.ErrParseMalformed, kind, len(firsts))
	}

	seen := map[string]bool{}
	var out []Quote
	t.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Children().Filter("td")
		for col := 0; col+1 < cells.Length() && col/2 < len(firsts); col += 2 {
			boatCell, oddsCell := cells.Eq(col), cells.Eq(col+1)
			if oddsCell.HasClass("is-disabled") {
				continue
			}
			second, err := strconv.Atoi(cellText(boatCell))
			if err != nil {
				continue
			}
			value, ok := parseDecimal(cellText(oddsCell))
			if !ok {
				continue
			}
			combo, err := models.CanonicalCombination(kind.BetKind(), models.JoinBoats([]int{firsts[col/2], second}))
			if err != nil || seen[combo] {
				continue
			}
			seen[combo] = true
			out = append(out, Quote{Kind: kind, Combination: combo, Value: value})
		}
	})
	return out, nil
}

// ParseWinPlaceOdds reads the oddstf page: a win table followed by a place table.
func ParseWinPlaceOdds(doc *goquery.Document) ([]Quote, error) {
	var tables []*goquery.Selection
	doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		if t.Find("td.oddsPoint").Length() > 0 {
			tables = append(tables, t)
		}
	})
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: win/place odds not published", errs.ErrDataMissing)
	}
	if len(tables) < 2 {
		return nil, fmt.Errorf("%w: expected win and place tables, found %d", errs.ErrParseMalformed, len(tables))
	}

	var out []Quote
	for i, kind := range []models.OddsKind{models.OddsWin, models.OddsPlace} {
		tables[i].Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
			boat, err := strconv.Atoi(cellText(tr.Children().First()))
			if err != nil || boat < 1 || boat > 6 {
				return
			}
			text := cellText(tr.Find("td.oddsPoint").First())
			q := Quote{Kind: kind, Combination: strconv.Itoa(boat)}
			if lo, hi, band := strings.Cut(text, "-"); band && kind == models.OddsPlace {
				low, ok1 := parseDecimal(lo)
				high, ok2 := parseDecimal(hi)
				if !ok1 || !ok2 {
					return
				}
				q.Value, q.Max = low, &high
			} else {
				v, ok := parseDecimal(text)
				if !ok {
					return
				}
				q.Value = v
			}
			out = append(out, q)
		})
	}
	return out, nil
}
