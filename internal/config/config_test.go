package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/kyotei")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Import.MaxMonthsPerRun != 100 {
		t.Fatalf("expected MAX_MONTHS_PER_RUN default 100, got %d", cfg.Import.MaxMonthsPerRun)
	}
	if cfg.Import.ParallelWorkers != 5 {
		t.Fatalf("expected PARALLEL_WORKERS default 5, got %d", cfg.Import.ParallelWorkers)
	}
	if cfg.Scheduler.OperatingOpen.String() != "08:00" || cfg.Scheduler.OperatingClose.String() != "21:30" {
		t.Fatalf("unexpected operating window %s-%s", cfg.Scheduler.OperatingOpen, cfg.Scheduler.OperatingClose)
	}
	if cfg.Scheduler.HighFreqInterval != time.Minute {
		t.Fatalf("expected 60s near-deadline cadence, got %s", cfg.Scheduler.HighFreqInterval)
	}
}

func TestLoadClampsDecisionWindow(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/kyotei")
	t.Setenv("DECISION_WINDOW", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scheduler.DecisionWindow != 2*time.Minute {
		t.Fatalf("expected decision window floor of 2m, got %s", cfg.Scheduler.DecisionWindow)
	}
}

func TestParseClockTime(t *testing.T) {
	cases := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{"08:00", 480, false},
		{"21:30", 1290, false},
		{" 6:05 ", 365, false},
		{"24:00", 0, true},
		{"0830", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClockTime(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %v, %v", tc.in, got, err)
		}
	}
}

func TestGetEnvAsDurationAcceptsSeconds(t *testing.T) {
	t.Setenv("SOME_INTERVAL", "45")
	if got := getEnvAsDuration("SOME_INTERVAL", time.Second); got != 45*time.Second {
		t.Fatalf("expected 45s, got %s", got)
	}
}
