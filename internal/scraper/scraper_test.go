package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/metrics"
	"github.com/kyotei-project/backend/internal/models"
)

var testKey = models.RaceKey{Date: "2024-03-15", VenueCode: "24", RaceNumber: 1}

// twoBoatGrid renders a grid where first boat f and second boat s price at "f.s".
// When unordered, cells below the diagonal are disabled like on the live site.
func twoBoatGrid(unordered bool) string {
	var b strings.Builder
	b.WriteString(`<div class="table1"><table><thead><tr>`)
	for f := 1; f <= 6; f++ {
		fmt.Fprintf(&b, `<th class="is-boatColor%d" colspan="2">%d</th>`, f, f)
	}
	b.WriteString(`</tr></thead><tbody>`)
	for row := 0; row < 5; row++ {
		b.WriteString("<tr>")
		for f := 1; f <= 6; f++ {
			var others []int
			for s := 1; s <= 6; s++ {
				if s != f {
					others = append(others, s)
				}
			}
			s := others[row]
			class := "oddsPoint"
			if unordered && s < f {
				class += " is-disabled"
			}
			fmt.Fprintf(&b, `<td class="is-boatColor%d">%d</td><td class="%s">%d.%d</td>`, s, s, class, f, s)
		}
		b.WriteString("</tr>")
	}
	b.WriteString(`</tbody></table></div>`)
	return b.String()
}

const deadlineRow = `<div class="table1"><table><tbody><tr><th>締切予定時刻</th>` +
	`<td>10:45</td><td>11:12</td><td>-</td><td>12:10</td></tr></tbody></table></div>`

func odds2tfPage() string {
	return "<html><body>" + deadlineRow + twoBoatGrid(true) + twoBoatGrid(false) + "</body></html>"
}

const oddstfPage = `<html><body>
<div class="title7"><span>単勝オッズ</span></div>
<table class="is-w495"><tbody>
<tr><td class="is-boatColor1">1</td><td>峰　竜太</td><td class="oddsPoint">2.4</td></tr>
<tr><td class="is-boatColor2">2</td><td>山田　太郎</td><td class="oddsPoint">0.0</td></tr>
<tr><td class="is-boatColor3">3</td><td>欠場</td><td class="oddsPoint">-</td></tr>
</tbody></table>
<div class="title7"><span>複勝オッズ</span></div>
<table class="is-w495"><tbody>
<tr><td class="is-boatColor1">1</td><td>峰　竜太</td><td class="oddsPoint">1.0-1.3</td></tr>
<tr><td class="is-boatColor2">2</td><td>山田　太郎</td><td class="oddsPoint">2.2-4.8</td></tr>
</tbody></table>
</body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func quoteMap(quotes []Quote) map[string]Quote {
	out := map[string]Quote{}
	for _, q := range quotes {
		out[string(q.Kind)+":"+q.Combination] = q
	}
	return out
}

func TestParseTwoBoatOdds(t *testing.T) {
	quotes, err := ParseTwoBoatOdds(mustDoc(t, odds2tfPage()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byKey := quoteMap(quotes)
	var pairs, exactas int
	for _, q := range quotes {
		switch q.Kind {
		case models.OddsNirenpuku:
			pairs++
		case models.OddsNirentan:
			exactas++
		}
	}
	if pairs != 15 || exactas != 30 {
		t.Fatalf("expected 15 quinella and 30 exacta quotes, got %d and %d", pairs, exactas)
	}
	if q := byKey["nirenpuku:1-3"]; q.Value.String() != "1.3" {
		t.Fatalf("expected quinella 1-3 at 1.3, got %s", q.Value)
	}
	if q := byKey["nirentan:3-1"]; q.Value.String() != "3.1" {
		t.Fatalf("expected exacta 3-1 at 3.1, got %s", q.Value)
	}
	if _, ok := byKey["nirenpuku:3-1"]; ok {
		t.Fatalf("quinella combinations must be canonical")
	}
}

func TestParseTwoBoatOddsNotPublished(t *testing.T) {
	_, err := ParseTwoBoatOdds(mustDoc(t, "<html><body><p>データがありません</p></body></html>"))
	if !errors.Is(err, errs.ErrDataMissing) {
		t.Fatalf("expected ErrDataMissing, got %v", err)
	}
}

func TestParseWinPlaceOdds(t *testing.T) {
	quotes, err := ParseWinPlaceOdds(mustDoc(t, oddstfPage))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byKey := quoteMap(quotes)

	if q := byKey["win:1"]; q.Value.String() != "2.4" {
		t.Fatalf("expected win 1 at 2.4, got %s", q.Value)
	}
	if q, ok := byKey["win:2"]; !ok || !q.Value.IsZero() {
		t.Fatalf("not-on-sale win odds must be kept as zero")
	}
	if _, ok := byKey["win:3"]; ok {
		t.Fatalf("non-numeric odds must be skipped")
	}
	place := byKey["place:2"]
	if place.Value.String() != "2.2" || place.Max == nil || place.Max.String() != "4.8" {
		t.Fatalf("unexpected place band %+v", place)
	}
}

func TestParseDeadlines(t *testing.T) {
	got := ParseDeadlines(mustDoc(t, odds2tfPage()), "2024-03-15")

	if len(got) != 3 {
		t.Fatalf("expected 3 deadlines, got %v", got)
	}
	want := clock.At(2024, time.March, 15, 10, 45, 0)
	if !got[1].Equal(want) {
		t.Fatalf("race 1: expected %s, got %s", want, got[1])
	}
	if _, ok := got[3]; ok {
		t.Fatalf("race 3 has no deadline")
	}
	if got[4].Hour() != 12 || got[4].Minute() != 10 {
		t.Fatalf("race 4: got %s", got[4])
	}
}

const racelistPage = `<html><body>` + deadlineRow + `
<div class="table1 is-tableFixed__3rdadd"><table>
%s
</table></div></body></html>`

func racelistBoat(boat int, id, class, name, branch string, age int, local string) string {
	return fmt.Sprintf(`<tbody class="is-fs12"><tr>
<td class="is-boatColor%[1]d is-fs14" rowspan="4">%[1]d</td>
<td rowspan="4"><a><img src="x.jpg"></a></td>
<td rowspan="4">
<div class="is-fs11">%[2]s / <span class="is-fColor1">%[3]s</span></div>
<div class="is-fs18 is-fBold"><a href="#">%[4]s</a></div>
<div class="is-fs11">%[5]s/%[5]s<br>%[6]d歳/52.0kg</div>
</td>
<td class="is-lineH2" rowspan="4">F0<br>L0<br>0.15</td>
<td class="is-lineH2" rowspan="4">7.89<br>62.50<br>75.00</td>
<td class="is-lineH2" rowspan="4">%[7]s<br>70.00<br>80.00</td>
<td class="is-lineH2" rowspan="4">12<br>45.67<br>60.00</td>
<td class="is-lineH2" rowspan="4">34<br>38.90<br>55.00</td>
</tr><tr><td>x</td></tr></tbody>`, boat, id, class, name, branch, age, local)
}

func TestParseRaceList(t *testing.T) {
	var boats strings.Builder
	boats.WriteString(racelistBoat(1, "4320", "A1", "峰　竜太", "佐賀", 34, "8.12"))
	for b := 2; b <= 6; b++ {
		boats.WriteString(racelistBoat(b, fmt.Sprintf("40%02d", b), "B1", "選手", "福岡", 30, "5.00"))
	}
	key := models.RaceKey{Date: "2024-03-15", VenueCode: "24", RaceNumber: 2}

	p, err := ParseRaceList(mustDoc(t, fmt.Sprintf(racelistPage, boats.String())), key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Entries) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(p.Entries))
	}
	e := p.Entries[0]
	if e.BoatNumber != 1 || e.RacerID != "4320" || e.Class != "A1" || e.RacerName != "峰竜太" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.Branch != "佐賀" || e.Age != 34 || e.Weight.String() != "52" {
		t.Fatalf("unexpected profile %+v", e)
	}
	if e.LocalWinRate.String() != "8.12" || e.NationalWinRate.String() != "7.89" || e.MotorNumber != 12 || e.BoatNo != 34 {
		t.Fatalf("unexpected rates %+v", e)
	}
	if p.Deadline == nil || p.Deadline.Hour() != 11 || p.Deadline.Minute() != 12 {
		t.Fatalf("expected race 2 deadline 11:12, got %v", p.Deadline)
	}
}

func TestParseRaceListRejectsShortCard(t *testing.T) {
	html := fmt.Sprintf(racelistPage, racelistBoat(1, "4320", "A1", "峰　竜太", "佐賀", 34, "8.12"))
	if _, err := ParseRaceList(mustDoc(t, html), testKey); !errors.Is(err, errs.ErrParseMalformed) {
		t.Fatalf("expected ErrParseMalformed, got %v", err)
	}
}

const resultPage = `<html><body>
<div class="table1"><table class="is-w495">
<thead><tr><th>着</th><th>枠</th><th>ボートレーサー</th><th>レースタイム</th></tr></thead>
<tbody><tr><td>１</td><td>1</td><td><span class="is-fs12">4320</span><span class="is-fs18">峰　竜太</span></td><td>1'50"3</td></tr></tbody>
<tbody><tr><td>２</td><td>3</td><td><span class="is-fs12">4003</span><span class="is-fs18">選手</span></td><td>1'52"0</td></tr></tbody>
<tbody><tr><td>３</td><td>2</td><td><span class="is-fs12">4002</span><span class="is-fs18">選手</span></td><td></td></tr></tbody>
<tbody><tr><td>４</td><td>5</td><td><span class="is-fs12">4005</span><span class="is-fs18">選手</span></td><td></td></tr></tbody>
<tbody><tr><td>５</td><td>6</td><td><span class="is-fs12">4006</span><span class="is-fs18">選手</span></td><td></td></tr></tbody>
<tbody><tr><td>Ｆ</td><td>4</td><td><span class="is-fs12">4004</span><span class="is-fs18">選手</span></td><td></td></tr></tbody>
</table></div>
<div class="table1"><table class="is-w495">
<thead><tr><th>勝式</th><th>組番</th><th>払戻金</th><th>人気</th></tr></thead>
<tbody>
<tr><td rowspan="2">2連単</td><td><div class="numberSet1"><span class="numberSet1_number">1</span><span class="numberSet1_text">-</span><span class="numberSet1_number">3</span></div></td><td><span class="is-payout1">&yen;980</span></td><td>3</td></tr>
<tr><td></td><td></td><td></td></tr>
</tbody>
<tbody>
<tr><td rowspan="3">拡連複</td><td><div class="numberSet1"><span class="numberSet1_number">3</span><span class="numberSet1_text">=</span><span class="numberSet1_number">1</span></div></td><td><span class="is-payout1">&yen;250</span></td><td>2</td></tr>
<tr><td><div class="numberSet1"><span class="numberSet1_number">1</span><span class="numberSet1_number">2</span></div></td><td><span class="is-payout1">&yen;1,130</span></td><td>12</td></tr>
<tr><td><div class="numberSet1"><span class="numberSet1_number">2</span><span class="numberSet1_number">3</span></div></td><td><span class="is-payout1">&yen;400</span></td><td>5</td></tr>
</tbody>
</table></div>
</body></html>`

func TestParseRaceResult(t *testing.T) {
	page, err := ParseRaceResult(mustDoc(t, resultPage), testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Void || len(page.Entries) != 6 {
		t.Fatalf("unexpected page %+v", page)
	}

	outcome := models.RaceOutcome{Entries: page.Entries, Payoffs: page.Payoffs}
	if got := models.JoinBoats(outcome.Finishers()); got != "1-3-2-5-6" {
		t.Fatalf("unexpected finishing order %s", got)
	}
	for _, e := range page.Entries {
		if e.BoatNumber == 4 && (e.Rank != 0 || e.Disqualification != models.DQFlying) {
			t.Fatalf("boat 4 should be a flying start, got %+v", e)
		}
		if e.BoatNumber == 1 && (e.RaceTime == nil || e.RaceTime.String() != "110.3") {
			t.Fatalf("boat 1 race time: %v", e.RaceTime)
		}
	}

	if len(page.Payoffs) != 4 {
		t.Fatalf("expected 4 payoffs, got %+v", page.Payoffs)
	}
	if v, ok := outcome.Payout(models.BetWide, "1-3"); !ok || v != 250 {
		t.Fatalf("wide 1-3: %d %v", v, ok)
	}
	if v, ok := outcome.Payout(models.BetWide, "1-2"); !ok || v != 1130 {
		t.Fatalf("wide 1-2: %d %v", v, ok)
	}
	if v, ok := outcome.Payout(models.BetNirentan, "1-3"); !ok || v != 980 {
		t.Fatalf("exacta 1-3: %d %v", v, ok)
	}
}

func TestParseRaceResultVoidAndPending(t *testing.T) {
	page, err := ParseRaceResult(mustDoc(t, `<html><body><p>レース中止</p></body></html>`), testKey)
	if err != nil || !page.Void {
		t.Fatalf("expected void page, got %+v, %v", page, err)
	}

	_, err = ParseRaceResult(mustDoc(t, `<html><body><p>準備中</p></body></html>`), testKey)
	if !errors.Is(err, errs.ErrDataMissing) {
		t.Fatalf("expected ErrDataMissing, got %v", err)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ScraperConfig{
		BaseURL:   srv.URL,
		Timeout:   2 * time.Second,
		UserAgent: "kyotei-test",
	}, WithRateLimit(100, 10), WithMetrics(metrics.New()))
}

func TestClientFetchOddsSendsRaceQuery(t *testing.T) {
	var queries []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Path+"?"+r.URL.RawQuery)
		if r.Header.Get("User-Agent") != "kyotei-test" {
			t.Errorf("missing user agent")
		}
		switch r.URL.Path {
		case "/" + PageOdds2T:
			fmt.Fprint(w, odds2tfPage())
		case "/" + PageOddsWin:
			fmt.Fprint(w, oddstfPage)
		default:
			http.NotFound(w, r)
		}
	})

	quotes, err := c.FetchOdds(context.Background(), testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quotes) != 15+30+2+2 {
		t.Fatalf("expected 49 quotes, got %d", len(quotes))
	}
	if len(queries) != 2 || !strings.Contains(queries[0], "hd=20240315") || !strings.Contains(queries[0], "jcd=24") || !strings.Contains(queries[0], "rno=1") {
		t.Fatalf("unexpected requests %v", queries)
	}
}

func TestClientClassifiesStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("jcd") == "02" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	got, err := c.FetchDeadlines(context.Background(), "2024-03-15", "02")
	if err != nil || len(got) != 0 {
		t.Fatalf("absent venue should give an empty schedule, got %v, %v", got, err)
	}
	if _, err := c.FetchResult(context.Background(), testKey); !errors.Is(err, errs.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}
