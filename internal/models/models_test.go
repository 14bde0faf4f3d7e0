package models

import (
	"testing"
	"time"

	"github.com/kyotei-project/backend/internal/clock"
)

func TestCanonicalCombination(t *testing.T) {
	cases := []struct {
		kind    BetKind
		in      string
		want    string
		wantErr bool
	}{
		{BetNirenpuku, "3=1", "1-3", false},
		{BetNirenpuku, "1-3", "1-3", false},
		{BetNirentan, "3-1", "3-1", false},
		{BetWide, "５＝２", "2-5", false},
		{BetSanrenpuku, "5-3-1", "1-3-5", false},
		{BetSanrentan, "5-3-1", "5-3-1", false},
		{BetTansho, "1", "1", false},
		{BetAuto, "1-3", "1-3", false},
		{BetNirentan, "1-1", "", true},
		{BetNirentan, "1-7", "", true},
		{BetSanrentan, "1-2", "", true},
	}
	for _, tc := range cases {
		got, err := CanonicalCombination(tc.kind, tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s %q: expected error, got %q", tc.kind, tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%s %q: got %q, %v; want %q", tc.kind, tc.in, got, err, tc.want)
		}
	}
}

func TestParseBetKindAliases(t *testing.T) {
	for in, want := range map[string]BetKind{
		"単勝": BetTansho, "２連単": BetNirentan, "2連複": BetNirenpuku,
		"拡連複": BetWide, "3連単": BetSanrentan, "2t": BetNirentan, "2f": BetNirenpuku,
	} {
		got, err := ParseBetKind(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q, %v", in, got, err)
		}
	}
	if _, err := ParseBetKind("exotic"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestNormalizeVenueCode(t *testing.T) {
	for in, want := range map[string]string{"1": "01", "01": "01", " 24": "24"} {
		got, err := NormalizeVenueCode(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q, %v", in, got, err)
		}
	}
	for _, bad := range []string{"0", "25", "x"} {
		if _, err := NormalizeVenueCode(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
	if LegacyVenueCode("01") != "1" || LegacyVenueCode("12") != "12" {
		t.Fatalf("unexpected legacy code")
	}
}

func TestBetStatusTransitions(t *testing.T) {
	allowed := [][2]BetStatus{
		{BetPending, BetConfirmed}, {BetPending, BetSkipped}, {BetPending, BetExpired},
		{BetConfirmed, BetWon}, {BetConfirmed, BetLost}, {BetConfirmed, BetCanceled},
	}
	for _, e := range allowed {
		if !e[0].CanTransition(e[1]) {
			t.Fatalf("expected %s -> %s to be allowed", e[0], e[1])
		}
	}
	for _, e := range [][2]BetStatus{{BetSkipped, BetConfirmed}, {BetWon, BetLost}, {BetPending, BetWon}, {BetExpired, BetConfirmed}} {
		if e[0].CanTransition(e[1]) {
			t.Fatalf("expected %s -> %s to be rejected", e[0], e[1])
		}
	}
	if !BetWon.IsTerminal() || BetPending.IsTerminal() {
		t.Fatalf("unexpected terminal flags")
	}
}

func TestDateScanAndShift(t *testing.T) {
	var d Date
	if err := d.Scan(time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)); err != nil || d != "2025-07-05" {
		t.Fatalf("scan time: %q %v", d, err)
	}
	if err := d.Scan([]byte("2025-07-06")); err != nil || d != "2025-07-06" {
		t.Fatalf("scan bytes: %q %v", d, err)
	}
	if d.AddDays(-6) != "2025-06-30" || d.Compact() != "20250706" || d.YearMonth() != "2025-07" {
		t.Fatalf("unexpected shift/format for %s", d)
	}
	if DateOf(time.Date(2025, 7, 4, 16, 0, 0, 0, time.UTC)) != "2025-07-05" {
		t.Fatalf("DateOf should use JST")
	}
	if got := Date("2025-07-05").Time(); !got.Equal(clock.At(2025, 7, 5, 0, 0, 0)) {
		t.Fatalf("unexpected midnight %s", got)
	}
}

func TestParseRankToken(t *testing.T) {
	cases := []struct {
		in   string
		rank int
		dq   string
		ok   bool
	}{
		{"01", 1, "", true},
		{"6", 6, "", true},
		{"F", 0, DQFlying, true},
		{"K0", 0, DQScratched, true},
		{"S1", 0, DQDisqualified, true},
		{"転", 0, DQCapsize, true},
		{"妨", 0, DQHinder, true},
		{"07", 0, "", false},
		{"?", 0, "", false},
	}
	for _, tc := range cases {
		rank, dq, ok := ParseRankToken(tc.in)
		if rank != tc.rank || dq != tc.dq || ok != tc.ok {
			t.Fatalf("%q: got (%d,%q,%v)", tc.in, rank, dq, ok)
		}
	}
}

func TestFundApply(t *testing.T) {
	f := VirtualFund{StrategyID: "s", InitialBalance: 100000, Balance: 100000}
	f.Apply(3000, 7200, true)
	f.Apply(1000, 0, false)

	if f.Balance != 103200 || f.TotalProfit != 3200 || f.Bets != 2 || f.Hits != 1 {
		t.Fatalf("unexpected fund %+v", f)
	}
	if f.HitRate.String() != "0.5" || f.ReturnRate.String() != "1.8" {
		t.Fatalf("unexpected rates hit=%s return=%s", f.HitRate, f.ReturnRate)
	}
}

func TestOutcomeFinishers(t *testing.T) {
	o := RaceOutcome{Entries: []ResultEntry{
		{BoatNumber: 3, Rank: 2}, {BoatNumber: 1, Rank: 1}, {BoatNumber: 5, Rank: 3},
		{BoatNumber: 2, Disqualification: DQFlying},
	}}
	got := JoinBoats(o.Finishers())
	if got != "1-3-5" {
		t.Fatalf("expected 1-3-5, got %s", got)
	}
}
