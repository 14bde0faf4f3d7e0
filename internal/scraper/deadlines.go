package scraper

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/models"
)

const deadlineLabel = "締切予定時刻"

// FetchDeadlines returns the scheduled deadline of every race at a venue,
// read from the header row of the first race's odds page.
// A venue that is not racing that day yields an empty map.
func (c *Client) FetchDeadlines(ctx context.Context, date models.Date, venue string) (map[int]time.Time, error) {
	doc, err := c.fetch(ctx, PageOdds2T, models.RaceKey{Date: date, VenueCode: venue, RaceNumber: 1})
	if errors.Is(err, errs.ErrUpstreamAbsent) {
		return map[int]time.Time{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseDeadlines(doc, date), nil
}

// ParseDeadlines finds the deadline row and maps race number to JST deadline.
// Cells that are not HH:MM are skipped.
func ParseDeadlines(doc *goquery.Document, date models.Date) map[int]time.Time {
	out := map[int]time.Time{}
	doc.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		cells := tr.Children()
		if !strings.Contains(cellText(cells.First()), deadlineLabel) {
			return true
		}
		cells.Slice(1, goquery.ToEnd).Each(func(i int, td *goquery.Selection) {
			if t, ok := clockOnDate(cellText(td), date); ok {
				out[i+1] = t
			}
		})
		return false
	})
	return out
}

func clockOnDate(hhmm string, date models.Date) (time.Time, bool) {
	t, err := time.ParseInLocation("15:04", strings.TrimSpace(hhmm), clock.JST)
	if err != nil {
		return time.Time{}, false
	}
	day := date.Time()
	if day.IsZero() {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, clock.JST), true
}
