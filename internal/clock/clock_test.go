package clock

import (
	"testing"
	"time"
)

func TestTodayUsesJST(t *testing.T) {
	// 2025-07-04 20:30 UTC is already 2025-07-05 in Japan.
	c := NewFixed(time.Date(2025, 7, 4, 20, 30, 0, 0, time.UTC))

	got := Today(c)
	if got.Year() != 2025 || got.Month() != time.July || got.Day() != 5 {
		t.Fatalf("expected 2025-07-05, got %s", got)
	}
	if got.Hour() != 0 || got.Location() != JST {
		t.Fatalf("expected JST midnight, got %s", got)
	}
}

func TestFixedAdvance(t *testing.T) {
	c := NewFixed(At(2025, 7, 5, 10, 49, 0))
	c.Advance(90 * time.Second)

	if MinuteOfDay(c.Now()) != 10*60+50 {
		t.Fatalf("unexpected minute of day for %s", c.Now())
	}
}
