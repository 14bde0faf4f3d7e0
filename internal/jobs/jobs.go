// Package jobs defines the six pipeline entrypoints and registers them with the scheduler.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/kyotei-project/backend/internal/betting"
	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/kyotei-project/backend/internal/scheduler"
	"github.com/kyotei-project/backend/internal/services"
	"github.com/sirupsen/logrus"
)

// Job names, as accepted by the one-shot CLI.
const (
	DailyBatch   = "daily-batch"
	OddsRegular  = "odds-regular"
	OddsHighFreq = "odds-high-freq"
	Result       = "result"
	Betting      = "betting"
	Test         = "test"
)

// Names lists every job.
var Names = []string{DailyBatch, OddsRegular, OddsHighFreq, Result, Betting, Test}

// Importer loads the official archives.
type Importer interface {
	ImportYesterday(ctx context.Context) error
	Backfill(ctx context.Context) error
}

// RaceScheduler makes sure the day's races exist with deadlines.
type RaceScheduler interface {
	EnsureRaces(ctx context.Context, date models.Date) ([]models.Race, error)
}

// ProgramFetcher loads the day's race cards from the live site.
type ProgramFetcher interface {
	FetchDay(ctx context.Context, date models.Date) (int, error)
}

// OddsPoller runs the two odds cadences.
type OddsPoller interface {
	PollRegular(ctx context.Context) (services.PollStats, error)
	PollNearDeadline(ctx context.Context) (services.PollStats, error)
}

// ResultCollector loads finished races from the live site.
type ResultCollector interface {
	CollectDay(ctx context.Context, date models.Date) (int, error)
}

// BetEngine is the virtual betting lifecycle.
type BetEngine interface {
	Register(ctx context.Context, date models.Date) (int, error)
	Decide(ctx context.Context) (betting.DecisionStats, error)
	Expire(ctx context.Context) (int, error)
	Settle(ctx context.Context) (betting.SettlementStats, error)
}

// Checker verifies connectivity.
type Checker interface {
	Verify(ctx context.Context) error
}

// Deps are the collaborators the jobs drive.
type Deps struct {
	Importer Importer
	Schedule RaceScheduler
	Programs ProgramFetcher
	Odds     OddsPoller
	Results  ResultCollector
	Engine   BetEngine
	Health   Checker
	Clock    clock.Clock
	Config   config.SchedulerConfig
}

// Register adds the six jobs to s.
func Register(s *scheduler.Scheduler, d Deps) error {
	cfg := d.Config
	operating := &scheduler.Window{Open: cfg.OperatingOpen, Close: cfg.OperatingClose}
	dailyAt := cfg.DailyBatchAt

	table := []scheduler.Job{
		{Name: DailyBatch, DailyAt: &dailyAt, Run: d.dailyBatch},
		{Name: OddsRegular, Interval: cfg.RegularInterval, Window: operating, Run: d.oddsRegular},
		{Name: OddsHighFreq, Interval: cfg.HighFreqInterval, Window: operating, Run: d.oddsHighFreq},
		{Name: Result, Interval: cfg.SettlementInterval, Window: operating, Run: d.result},
		{Name: Betting, Interval: cfg.BettingInterval, Window: operating, Run: d.betting},
		{Name: Test, Run: d.test},
	}
	for _, job := range table {
		if err := s.Register(job); err != nil {
			return err
		}
	}
	return nil
}

func (d Deps) today() models.Date {
	return models.DateOf(clock.Today(d.Clock))
}

func (d Deps) entry(ctx context.Context, job string) *logrus.Entry {
	return logger.WithJob(job).WithField("run", scheduler.RunID(ctx))
}

// dailyBatch imports yesterday's archives, backfills missing months, loads today's
// races and programs, and registers the morning bets. Steps continue past a
// failed step; the job fails if any step did.
func (d Deps) dailyBatch(ctx context.Context) error {
	log := d.entry(ctx, DailyBatch)
	today := d.today()
	var failures []error

	// 1. Yesterday's archives
	if err := d.Importer.ImportYesterday(ctx); err != nil {
		failures = append(failures, fmt.Errorf("import: %w", err))
	}

	// 2. Missing months
	if err := d.Importer.Backfill(ctx); err != nil {
		failures = append(failures, fmt.Errorf("backfill: %w", err))
	}

	// 3. Bets waiting on a late result archive
	if stats, err := d.Engine.Settle(ctx); err != nil {
		failures = append(failures, fmt.Errorf("settle: %w", err))
	} else if stats.Settled > 0 {
		log.WithField("settled", stats.Settled).Info("settled bets from archived results")
	}

	// 4. Today's races and programs
	races, err := d.Schedule.EnsureRaces(ctx, today)
	if err != nil {
		failures = append(failures, fmt.Errorf("races: %w", err))
	}
	programs, err := d.Programs.FetchDay(ctx, today)
	if err != nil {
		failures = append(failures, fmt.Errorf("programs: %w", err))
	}
	log.WithField("races", len(races)).WithField("programs", programs).Info("day loaded")

	// 5. Morning registration
	registration := scheduler.Window{Open: d.Config.RegistrationOpen, Close: d.Config.RegistrationClose}
	if registration.Contains(d.Clock.Now()) {
		if _, err := d.Engine.Register(ctx, today); err != nil {
			failures = append(failures, fmt.Errorf("register: %w", err))
		}
	} else {
		log.Infof("outside registration window %s-%s, not registering", registration.Open, registration.Close)
	}

	return errors.Join(failures...)
}

// oddsRegular first retries venues whose schedule could not be read earlier in the
// day, registering their bets while the registration window is still open.
func (d Deps) oddsRegular(ctx context.Context) error {
	log := d.entry(ctx, OddsRegular)
	today := d.today()
	if _, err := d.Schedule.EnsureRaces(ctx, today); err != nil {
		log.WithError(err).Warn("schedule incomplete, polling known races")
	}
	registration := scheduler.Window{Open: d.Config.RegistrationOpen, Close: d.Config.RegistrationClose}
	if registration.Contains(d.Clock.Now()) {
		if _, err := d.Engine.Register(ctx, today); err != nil {
			log.WithError(err).Warn("late registration failed")
		}
	}

	stats, err := d.Odds.PollRegular(ctx)
	if err != nil {
		return err
	}
	log.WithField("races", stats.Races).WithField("ticks", stats.Ticks).
		WithField("failed", stats.Failed).Info("regular poll done")
	return nil
}

func (d Deps) oddsHighFreq(ctx context.Context) error {
	stats, err := d.Odds.PollNearDeadline(ctx)
	if err != nil {
		return err
	}
	if stats.Races > 0 {
		d.entry(ctx, OddsHighFreq).WithField("races", stats.Races).WithField("ticks", stats.Ticks).
			WithField("failed", stats.Failed).Info("near-deadline poll done")
	}
	return nil
}

// result collects finished races and settles the bets on them.
func (d Deps) result(ctx context.Context) error {
	collected, err := d.Results.CollectDay(ctx, d.today())
	if err != nil {
		return fmt.Errorf("collect results: %w", err)
	}
	stats, err := d.Engine.Settle(ctx)
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	d.entry(ctx, Result).WithFields(logger.Fields{
		"collected": collected,
		"settled":   stats.Settled,
		"won":       stats.Won,
		"lost":      stats.Lost,
		"canceled":  stats.Canceled,
		"waiting":   stats.Waiting,
	}).Info("results processed")
	return nil
}

// betting expires overdue bets before deciding, so a bet past its deadline never
// reaches the rule.
func (d Deps) betting(ctx context.Context) error {
	expired, err := d.Engine.Expire(ctx)
	if err != nil {
		return fmt.Errorf("expire: %w", err)
	}
	stats, err := d.Engine.Decide(ctx)
	if err != nil {
		return fmt.Errorf("decide: %w", err)
	}
	if stats.Due > 0 || expired > 0 {
		d.entry(ctx, Betting).WithFields(logger.Fields{
			"due":       stats.Due,
			"confirmed": stats.Confirmed,
			"skipped":   stats.Skipped,
			"expired":   expired + stats.Expired,
		}).Info("decisions made")
	}
	return nil
}

func (d Deps) test(ctx context.Context) error {
	if err := d.Health.Verify(ctx); err != nil {
		return err
	}
	d.entry(ctx, Test).Info("warehouse and redis reachable, schema present")
	return nil
}
