package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	racerIDClassRe = regexp.MustCompile(`(\d{4})\s*/\s*([AB][12])`)
	ageRe          = regexp.MustCompile(`(\d+)歳`)
	weightRe       = regexp.MustCompile(`([\d.]+)kg`)
)

// Program is the live race card of one race.
type Program struct {
	Entries  []models.ProgramEntry
	Deadline *time.Time
}

// FetchProgram scrapes the race card. Used when the B-file has not been imported yet.
func (c *Client) FetchProgram(ctx context.Context, key models.RaceKey) (*Program, error) {
	doc, err := c.fetch(ctx, PageRaceList, key)
	if err != nil {
		return nil, err
	}
	return ParseRaceList(doc, key)
}

// ParseRaceList reads the six boat blocks of the racelist page.
func ParseRaceList(doc *goquery.Document, key models.RaceKey) (*Program, error) {
	var entries []models.ProgramEntry
	seen := map[int]bool{}

	doc.Find("tbody.is-fs12").Each(func(_ int, tb *goquery.Selection) {
		cells := tb.Find("tr").First().Children().Filter("td")
		if cells.Length() < 8 {
			return
		}
		boat, err := strconv.Atoi(cellText(cells.Eq(0)))
		if err != nil || boat < 1 || boat > 6 || seen[boat] {
			return
		}

		e := models.ProgramEntry{
			RaceDate:   key.Date,
			VenueCode:  key.VenueCode,
			RaceNumber: key.RaceNumber,
			BoatNumber: boat,
		}

		info := cells.Eq(2)
		meta := info.Find("div.is-fs11")
		if m := racerIDClassRe.FindStringSubmatch(cellText(meta.Eq(0))); m != nil {
			e.RacerID, e.Class = m[1], m[2]
		}
		e.RacerName = strings.ReplaceAll(cellText(info.Find("div.is-fs18")), " ", "")
		profile := cellLines(meta.Eq(1))
		if home := lineAt(profile, 0); home != "" {
			e.Branch, _, _ = strings.Cut(home, "/")
		}
		if m := ageRe.FindStringSubmatch(lineAt(profile, 1)); m != nil {
			e.Age, _ = strconv.Atoi(m[1])
		}
		if m := weightRe.FindStringSubmatch(lineAt(profile, 1)); m != nil {
			e.Weight, _ = decimal.NewFromString(m[1])
		}

		national := cellLines(cells.Eq(4))
		local := cellLines(cells.Eq(5))
		motor := cellLines(cells.Eq(6))
		hull := cellLines(cells.Eq(7))
		e.NationalWinRate, _ = parseDecimal(lineAt(national, 0))
		e.NationalTop2, _ = parseDecimal(lineAt(national, 1))
		e.LocalWinRate, _ = parseDecimal(lineAt(local, 0))
		e.LocalTop2, _ = parseDecimal(lineAt(local, 1))
		e.MotorNumber, _ = strconv.Atoi(lineAt(motor, 0))
		e.MotorTop2, _ = parseDecimal(lineAt(motor, 1))
		e.BoatNo, _ = strconv.Atoi(lineAt(hull, 0))
		e.BoatTop2, _ = parseDecimal(lineAt(hull, 1))

		seen[boat] = true
		entries = append(entries, e)
	})

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no race card for %s", errs.ErrDataMissing, key)
	}
	if len(entries) != 6 {
		return nil, fmt.Errorf("%w: race card for %s has %d boats", errs.ErrParseMalformed, key, len(entries))
	}

	p := &Program{Entries: entries}
	if t, ok := ParseDeadlines(doc, key.Date)[key.RaceNumber]; ok {
		p.Deadline = &t
	}
	return p, nil
}
