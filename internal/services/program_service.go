package services

import (
	"context"
	"errors"
	"sync"

	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/metrics"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/kyotei-project/backend/internal/scraper"
	"golang.org/x/sync/errgroup"
)

// ProgramSource scrapes the live race card.
type ProgramSource interface {
	FetchProgram(ctx context.Context, key models.RaceKey) (*scraper.Program, error)
}

// ProgramStore is the warehouse surface used by the program fetcher.
type ProgramStore interface {
	RacesForDate(ctx context.Context, date models.Date) ([]models.Race, error)
	SavePrograms(ctx context.Context, races []models.Race, entries []models.ProgramEntry) error
}

// ProgramService fetches the day's race cards from the live site, since the
// B-file for today is usually published too late for morning decisions.
type ProgramService struct {
	source  ProgramSource
	store   ProgramStore
	metrics *metrics.PipelineMetrics
	workers int
}

// NewProgramService creates a ProgramService.
func NewProgramService(source ProgramSource, store ProgramStore, pm *metrics.PipelineMetrics, workers int) *ProgramService {
	if workers < 1 {
		workers = 1
	}
	return &ProgramService{source: source, store: store, metrics: pm, workers: workers}
}

// FetchDay fetches every race card of the day and stores them in one transaction.
// Races without a published card are skipped.
func (s *ProgramService) FetchDay(ctx context.Context, date models.Date) (int, error) {
	races, err := s.store.RacesForDate(ctx, date)
	if err != nil {
		return 0, err
	}

	var (
		mu      sync.Mutex
		updated []models.Race
		entries []models.ProgramEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, race := range races {
		if race.Canceled {
			continue
		}
		g.Go(func() error {
			p, err := s.source.FetchProgram(gctx, race.Key())
			if err != nil {
				if errors.Is(err, errs.ErrDataMissing) || errors.Is(err, errs.ErrUpstreamAbsent) ||
					errors.Is(err, errs.ErrUpstreamUnavailable) || errors.Is(err, errs.ErrParseMalformed) {
					logger.Warn("program %s: %v", race.Key(), err)
					return nil
				}
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			r := race
			if p.Deadline != nil {
				r.Deadline = p.Deadline
			}
			updated = append(updated, r)
			entries = append(entries, p.Entries...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if len(updated) == 0 {
		return 0, nil
	}
	if err := s.store.SavePrograms(ctx, updated, entries); err != nil {
		return 0, err
	}
	s.metrics.RecordImport("live_programs", len(updated))
	return len(updated), nil
}
