package jobs

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/kyotei-project/backend/internal/betting"
	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/metrics"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/kyotei-project/backend/internal/scheduler"
	"github.com/kyotei-project/backend/internal/services"
)

// recorder implements every job collaborator and logs the calls in order.
type recorder struct {
	calls []string
	fail  map[string]error
}

func (r *recorder) call(name string) error {
	r.calls = append(r.calls, name)
	return r.fail[name]
}

func (r *recorder) ImportYesterday(context.Context) error { return r.call("import") }
func (r *recorder) Backfill(context.Context) error        { return r.call("backfill") }

func (r *recorder) EnsureRaces(_ context.Context, date models.Date) ([]models.Race, error) {
	return nil, r.call("races:" + string(date))
}

func (r *recorder) FetchDay(_ context.Context, date models.Date) (int, error) {
	return 0, r.call("programs:" + string(date))
}

func (r *recorder) PollRegular(context.Context) (services.PollStats, error) {
	return services.PollStats{}, r.call("poll-regular")
}

func (r *recorder) PollNearDeadline(context.Context) (services.PollStats, error) {
	return services.PollStats{}, r.call("poll-near")
}

func (r *recorder) CollectDay(_ context.Context, date models.Date) (int, error) {
	return 0, r.call("collect:" + string(date))
}

func (r *recorder) Register(_ context.Context, date models.Date) (int, error) {
	return 0, r.call("register:" + string(date))
}

func (r *recorder) Decide(context.Context) (betting.DecisionStats, error) {
	return betting.DecisionStats{}, r.call("decide")
}

func (r *recorder) Expire(context.Context) (int, error) { return 0, r.call("expire") }

func (r *recorder) Settle(context.Context) (betting.SettlementStats, error) {
	return betting.SettlementStats{}, r.call("settle")
}

func (r *recorder) Verify(context.Context) error { return r.call("verify") }

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		OperatingOpen:      8 * 60,
		OperatingClose:     21*60 + 30,
		RegistrationOpen:   6 * 60,
		RegistrationClose:  8*60 + 30,
		DailyBatchAt:       6*60 + 30,
		RegularInterval:    10 * time.Minute,
		HighFreqInterval:   time.Minute,
		BettingInterval:    time.Minute,
		SettlementInterval: 5 * time.Minute,
	}
}

func newTestScheduler(t *testing.T, now time.Time) (*scheduler.Scheduler, *recorder, *clock.Fixed) {
	t.Helper()
	clk := clock.NewFixed(now)
	rec := &recorder{fail: map[string]error{}}
	s := scheduler.New(clk, nil, metrics.New(), time.Minute)
	err := Register(s, Deps{
		Importer: rec,
		Schedule: rec,
		Programs: rec,
		Odds:     rec,
		Results:  rec,
		Engine:   rec,
		Health:   rec,
		Clock:    clk,
		Config:   testConfig(),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return s, rec, clk
}

func TestRegisterAddsEveryJob(t *testing.T) {
	s, _, _ := newTestScheduler(t, clock.At(2025, 7, 5, 9, 0, 0))
	want := append([]string(nil), Names...)
	sort.Strings(want)
	if got := s.Jobs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDailyBatchRegistersInMorningWindow(t *testing.T) {
	s, rec, _ := newTestScheduler(t, clock.At(2025, 7, 5, 6, 30, 0))

	outcome, err := s.RunOnce(context.Background(), DailyBatch)
	if err != nil || outcome != scheduler.OutcomeOK {
		t.Fatalf("expected ok, got %s %v", outcome, err)
	}
	want := []string{"import", "backfill", "settle", "races:2025-07-05", "programs:2025-07-05", "register:2025-07-05"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("expected %v, got %v", want, rec.calls)
	}
}

func TestDailyBatchLateSkipsRegistration(t *testing.T) {
	s, rec, _ := newTestScheduler(t, clock.At(2025, 7, 5, 9, 15, 0))
	if _, err := s.RunOnce(context.Background(), DailyBatch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range rec.calls {
		if c == "register:2025-07-05" {
			t.Fatalf("registered outside the morning window")
		}
	}
}

func TestDailyBatchContinuesPastFailedStep(t *testing.T) {
	s, rec, _ := newTestScheduler(t, clock.At(2025, 7, 5, 6, 30, 0))
	codec := errors.New("unsupported method -lh1-")
	rec.fail["import"] = codec

	outcome, err := s.RunOnce(context.Background(), DailyBatch)
	if outcome != scheduler.OutcomeFailed || !errors.Is(err, codec) {
		t.Fatalf("expected failed run wrapping the import error, got %s %v", outcome, err)
	}
	if len(rec.calls) != 6 {
		t.Fatalf("expected every step to run, got %v", rec.calls)
	}
}

func TestBettingExpiresBeforeDeciding(t *testing.T) {
	s, rec, _ := newTestScheduler(t, clock.At(2025, 7, 5, 11, 1, 15))
	if _, err := s.RunOnce(context.Background(), Betting); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(rec.calls, []string{"expire", "decide"}) {
		t.Fatalf("unexpected call order %v", rec.calls)
	}
}

func TestDataJobsIdleOutsideOperatingHours(t *testing.T) {
	s, rec, clk := newTestScheduler(t, clock.At(2025, 7, 5, 22, 0, 0))
	for _, name := range []string{OddsRegular, OddsHighFreq, Result, Betting} {
		outcome, err := s.RunOnce(context.Background(), name)
		if err != nil || outcome != scheduler.OutcomeSkippedWindow {
			t.Fatalf("%s: expected skipped_window, got %s %v", name, outcome, err)
		}
	}
	if len(rec.calls) != 0 {
		t.Fatalf("jobs ran outside operating hours: %v", rec.calls)
	}

	clk.Set(clock.At(2025, 7, 5, 21, 30, 0))
	if outcome, _ := s.RunOnce(context.Background(), OddsHighFreq); outcome != scheduler.OutcomeOK {
		t.Fatalf("expected near-deadline poll at closing time, got %s", outcome)
	}
}

func TestResultCollectsThenSettles(t *testing.T) {
	s, rec, _ := newTestScheduler(t, clock.At(2025, 7, 5, 15, 0, 0))
	if _, err := s.RunOnce(context.Background(), Result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(rec.calls, []string{"collect:2025-07-05", "settle"}) {
		t.Fatalf("unexpected call order %v", rec.calls)
	}
}

func TestOddsJobsPollTheirCadence(t *testing.T) {
	s, rec, _ := newTestScheduler(t, clock.At(2025, 7, 5, 10, 0, 0))
	_, _ = s.RunOnce(context.Background(), OddsRegular)
	_, _ = s.RunOnce(context.Background(), OddsHighFreq)
	want := []string{"races:2025-07-05", "poll-regular", "poll-near"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("unexpected calls %v", rec.calls)
	}
}

func TestRegularPollRetriesScheduleAndRegistersEarly(t *testing.T) {
	s, rec, _ := newTestScheduler(t, clock.At(2025, 7, 5, 8, 10, 0))
	rec.fail["races:2025-07-05"] = errors.New("venue 05 unavailable")

	outcome, err := s.RunOnce(context.Background(), OddsRegular)
	if outcome != scheduler.OutcomeOK || err != nil {
		t.Fatalf("schedule gaps must not fail the poll, got %s %v", outcome, err)
	}
	want := []string{"races:2025-07-05", "register:2025-07-05", "poll-regular"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("unexpected calls %v", rec.calls)
	}
}

func TestTestJobReportsUnhealthyDependencies(t *testing.T) {
	s, rec, _ := newTestScheduler(t, clock.At(2025, 7, 5, 3, 0, 0))
	down := errors.New("health check failed")
	rec.fail["verify"] = down
	outcome, err := s.RunOnce(context.Background(), Test)
	if outcome != scheduler.OutcomeFailed || !errors.Is(err, down) {
		t.Fatalf("expected failure at any hour, got %s %v", outcome, err)
	}
}
