package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/shopspring/decimal"
)

// 1'50"3 is one minute 50.3 seconds
var raceTimeRe = regexp.MustCompile(`(\d+)'(\d{2})"(\d)`)

// ResultPage is the official outcome as published on the live site.
type ResultPage struct {
	Void    bool
	Entries []models.ResultEntry
	Payoffs []models.Payoff
}

// FetchResult scrapes the result page of a race.
// ErrDataMissing means the page exists but the result is not confirmed yet.
func (c *Client) FetchResult(ctx context.Context, key models.RaceKey) (*ResultPage, error) {
	doc, err := c.fetch(ctx, PageRaceResult, key)
	if err != nil {
		return nil, err
	}
	return ParseRaceResult(doc, key)
}

// ParseRaceResult reads the finishing table and the payoff table.
func ParseRaceResult(doc *goquery.Document, key models.RaceKey) (*ResultPage, error) {
	if strings.Contains(doc.Text(), "レース中止") {
		return &ResultPage{Void: true}, nil
	}

	page := &ResultPage{}
	doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		head := cellText(t.Find("thead"))
		switch {
		case strings.Contains(head, "着") && strings.Contains(head, "ボートレーサー"):
			page.Entries = parseFinishTable(t, key)
		case strings.Contains(head, "勝式"):
			page.Payoffs = parsePayoffTable(t, key)
		}
	})

	if len(page.Entries) == 0 {
		return nil, fmt.Errorf("%w: result for %s not confirmed", errs.ErrDataMissing, key)
	}
	if len(page.Entries) != 6 {
		return nil, fmt.Errorf("%w: result for %s has %d boats", errs.ErrParseMalformed, key, len(page.Entries))
	}
	return page, nil
}

func parseFinishTable(t *goquery.Selection, key models.RaceKey) []models.ResultEntry {
	var out []models.ResultEntry
	seen := map[int]bool{}
	t.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Children().Filter("td")
		if cells.Length() < 3 {
			return
		}
		rank, dq, ok := models.ParseRankToken(cellText(cells.Eq(0)))
		if !ok {
			return
		}
		boat, err := strconv.Atoi(cellText(cells.Eq(1)))
		if err != nil || boat < 1 || boat > 6 || seen[boat] {
			return
		}
		seen[boat] = true

		racer := cells.Eq(2)
		e := models.ResultEntry{
			RaceDate:         key.Date,
			VenueCode:        key.VenueCode,
			RaceNumber:       key.RaceNumber,
			BoatNumber:       boat,
			Rank:             rank,
			Disqualification: dq,
			RacerID:          cellText(racer.Find("span.is-fs12")),
			RacerName:        strings.ReplaceAll(cellText(racer.Find("span.is-fs18")), " ", ""),
		}
		if cells.Length() > 3 {
			if m := raceTimeRe.FindStringSubmatch(cellText(cells.Eq(3))); m != nil {
				mins, _ := strconv.Atoi(m[1])
				secs, _ := strconv.Atoi(m[2])
				tenths, _ := strconv.Atoi(m[3])
				rt := decimal.NewFromInt(int64(mins*60 + secs)).Add(decimal.New(int64(tenths), -1))
				e.RaceTime = &rt
			}
		}
		out = append(out, e)
	})
	return out
}

func parsePayoffTable(t *goquery.Selection, key models.RaceKey) []models.Payoff {
	var out []models.Payoff
	var kind models.BetKind
	seen := map[string]bool{}

	t.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Children().Filter("td")
		// a label cell (with rowspan) starts a new kind
		if label := cellText(cells.First()); cells.First().Find(".numberSet1_number").Length() == 0 && label != "" {
			if k, err := models.ParseBetKind(label); err == nil {
				kind = k
			}
		}
		if kind == "" {
			return
		}

		var boats []string
		tr.Find(".numberSet1_number").Each(func(_ int, s *goquery.Selection) {
			boats = append(boats, cellText(s))
		})
		if len(boats) == 0 {
			return
		}
		combo, err := models.CanonicalCombination(kind, strings.Join(boats, "-"))
		if err != nil || seen[string(kind)+combo] {
			return
		}
		amount, err := strconv.Atoi(strings.NewReplacer("¥", "", "￥", "", ",", "", "円", "").Replace(cellText(tr.Find(".is-payout1"))))
		if err != nil {
			return
		}
		seen[string(kind)+combo] = true

		p := models.Payoff{
			RaceDate:     key.Date,
			VenueCode:    key.VenueCode,
			RaceNumber:   key.RaceNumber,
			BetKind:      kind,
			Combination:  combo,
			PayoutPer100: amount,
		}
		if pop, err := strconv.Atoi(cellText(cells.Last())); err == nil {
			p.Popularity = &pop
		}
		out = append(out, p)
	})
	return out
}
