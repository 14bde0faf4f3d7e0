package services

import (
	"context"
	"errors"
	"sync"

	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/metrics"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/kyotei-project/backend/internal/scraper"
	"golang.org/x/sync/errgroup"
)

// ResultSource scrapes the live result page.
type ResultSource interface {
	FetchResult(ctx context.Context, key models.RaceKey) (*scraper.ResultPage, error)
}

// ResultStore is the warehouse surface used by the result collector.
type ResultStore interface {
	RacesForDate(ctx context.Context, date models.Date) ([]models.Race, error)
	RaceOutcome(ctx context.Context, key models.RaceKey) (*models.RaceOutcome, error)
	SaveResults(ctx context.Context, races []models.Race, entries []models.ResultEntry, payoffs []models.Payoff) error
}

// ResultService collects official results of finished races.
type ResultService struct {
	source  ResultSource
	store   ResultStore
	clock   clock.Clock
	metrics *metrics.PipelineMetrics
	workers int
}

// NewResultService creates a ResultService.
func NewResultService(source ResultSource, store ResultStore, clk clock.Clock, pm *metrics.PipelineMetrics, workers int) *ResultService {
	if workers < 1 {
		workers = 1
	}
	return &ResultService{source: source, store: store, clock: clk, metrics: pm, workers: workers}
}

// CollectDay fetches results for races of the day whose deadline has passed and
// that have no stored result yet, or finishing rows without payoffs. It returns
// the number of races stored.
func (s *ResultService) CollectDay(ctx context.Context, date models.Date) (int, error) {
	races, err := s.store.RacesForDate(ctx, date)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()

	var (
		mu     sync.Mutex
		stored int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, race := range races {
		if race.Canceled || race.Deadline == nil || !race.Deadline.Before(now) {
			continue
		}
		g.Go(func() error {
			ok, err := s.collect(gctx, race)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				stored++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stored, err
	}
	s.metrics.RecordImport("live_results", stored)
	return stored, nil
}

func (s *ResultService) collect(ctx context.Context, race models.Race) (bool, error) {
	key := race.Key()
	outcome, err := s.store.RaceOutcome(ctx, key)
	switch {
	case err == nil && (outcome.Void || len(outcome.Payoffs) > 0):
		return false, nil
	case err != nil && !errors.Is(err, errs.ErrDataMissing):
		return false, err
	}

	page, err := s.source.FetchResult(ctx, key)
	if err != nil {
		if errors.Is(err, errs.ErrDataMissing) || errors.Is(err, errs.ErrUpstreamAbsent) ||
			errors.Is(err, errs.ErrUpstreamUnavailable) || errors.Is(err, errs.ErrParseMalformed) {
			logger.Warn("result %s: %v", key, err)
			return false, nil
		}
		return false, err
	}

	if page.Void {
		race.Canceled = true
		return true, s.store.SaveResults(ctx, []models.Race{race}, nil, nil)
	}
	return true, s.store.SaveResults(ctx, []models.Race{race}, page.Entries, page.Payoffs)
}
