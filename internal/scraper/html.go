package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

// cellText returns folded, whitespace-collapsed text.
func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(width.Fold.String(s.Text())), " ")
}

// cellLines returns the text nodes of a cell, which the site separates with <br>.
func cellLines(s *goquery.Selection) []string {
	var out []string
	s.Contents().Each(func(_ int, n *goquery.Selection) {
		if goquery.NodeName(n) != "#text" {
			return
		}
		if t := strings.TrimSpace(width.Fold.String(n.Text())); t != "" {
			out = append(out, t)
		}
	})
	return out
}

func lineAt(lines []string, i int) string {
	if i < len(lines) {
		return lines[i]
	}
	return ""
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
