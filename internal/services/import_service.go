/**
 * @description
 * Archive import: downloads daily K/B archives, parses them and persists the rows.
 * Tracks month-level progress so the backfill resumes where it stopped.
 *
 * @dependencies
 * - golang.org/x/sync/errgroup: bounded per-day fan-out inside a month
 * - github.com/google/uuid: run ids on progress rows
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kyotei-project/backend/internal/archive"
	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/metrics"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/kyotei-project/backend/internal/parser"
	"golang.org/x/sync/errgroup"
)

// ArchiveFetcher returns the local path of an extracted daily archive.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, kind archive.Kind, date models.Date) (string, error)
}

// ImportStore is the warehouse surface used by the importer.
type ImportStore interface {
	SaveResults(ctx context.Context, races []models.Race, entries []models.ResultEntry, payoffs []models.Payoff) error
	SavePrograms(ctx context.Context, races []models.Race, entries []models.ProgramEntry) error
	CompletedMonths(ctx context.Context, task string) (map[string]bool, error)
	MarkProgress(ctx context.Context, p *models.ImportProgress) error
}

// ImportService imports archives into the warehouse.
type ImportService struct {
	fetcher ArchiveFetcher
	store   ImportStore
	clock   clock.Clock
	cfg     config.ImportConfig
	metrics *metrics.PipelineMetrics
}

// NewImportService creates an ImportService.
func NewImportService(fetcher ArchiveFetcher, store ImportStore, clk clock.Clock, cfg config.ImportConfig, pm *metrics.PipelineMetrics) *ImportService {
	return &ImportService{fetcher: fetcher, store: store, clock: clk, cfg: cfg, metrics: pm}
}

func taskOf(kind archive.Kind) string {
	if kind == archive.KindPrograms {
		return models.TaskPrograms
	}
	return models.TaskResults
}

// ImportDay downloads, parses and persists one archive. It returns the number of races stored.
func (s *ImportService) ImportDay(ctx context.Context, kind archive.Kind, date models.Date) (int, error) {
	path, err := s.fetcher.Fetch(ctx, kind, date)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var races []models.Race
	switch kind {
	case archive.KindResults:
		parsed, err := parser.ParseResults(path, f)
		if err != nil {
			return 0, err
		}
		var entries []models.ResultEntry
		var payoffs []models.Payoff
		for _, r := range parsed.Races {
			races = append(races, r.Race)
			entries = append(entries, r.Entries...)
			payoffs = append(payoffs, r.Payoffs...)
		}
		if parsed.Dropped > 0 {
			logger.Warn("%s: dropped %d malformed races", path, parsed.Dropped)
		}
		if err := s.store.SaveResults(ctx, races, entries, payoffs); err != nil {
			return 0, err
		}
	case archive.KindPrograms:
		parsed, err := parser.ParsePrograms(path, f)
		if err != nil {
			return 0, err
		}
		var entries []models.ProgramEntry
		for _, r := range parsed.Races {
			races = append(races, r.Race)
			entries = append(entries, r.Entries...)
		}
		if parsed.Dropped > 0 {
			logger.Warn("%s: dropped %d malformed races", path, parsed.Dropped)
		}
		if err := s.store.SavePrograms(ctx, races, entries); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unknown archive kind %q", kind)
	}

	s.metrics.RecordImport(taskOf(kind), len(races))
	return len(races), nil
}

// ImportYesterday imports the previous day's results and programs.
// An archive that is not published yet is logged and left for the next run.
func (s *ImportService) ImportYesterday(ctx context.Context) error {
	yesterday := models.DateOf(clock.Today(s.clock)).AddDays(-1)
	for _, kind := range []archive.Kind{archive.KindResults, archive.KindPrograms} {
		n, err := s.ImportDay(ctx, kind, yesterday)
		if errors.Is(err, errs.ErrUpstreamAbsent) {
			logger.Warn("%s archive for %s not published yet", kind, yesterday)
			if err := s.markAbsent(ctx, kind, yesterday); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("import %s %s: %w", kind, yesterday, err)
		}
		logger.Info("Imported %d races from %s archive for %s", n, kind, yesterday)
	}
	return nil
}

// markAbsent leaves the month of an unpublished day pending so the backfill retries it.
func (s *ImportService) markAbsent(ctx context.Context, kind archive.Kind, date models.Date) error {
	return s.store.MarkProgress(ctx, &models.ImportProgress{
		TaskKind:     taskOf(kind),
		YearMonth:    date.Time().Format("2006-01"),
		Status:       models.ImportPending,
		RunID:        uuid.New().String(),
		ErrorMessage: fmt.Sprintf("%s not published", date),
	})
}

// BackfillMonths lists the months to import, oldest first: from the configured start
// (24 months back by default) through the month of yesterday.
func (s *ImportService) BackfillMonths() []string {
	yesterday := clock.Today(s.clock).AddDate(0, 0, -1)
	last := time.Date(yesterday.Year(), yesterday.Month(), 1, 0, 0, 0, 0, clock.JST)

	first := last.AddDate(0, -24, 0)
	if s.cfg.BackfillFrom != "" {
		if t, err := time.ParseInLocation("2006-01", s.cfg.BackfillFrom, clock.JST); err == nil {
			first = t
		}
	}

	var months []string
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		months = append(months, m.Format("2006-01"))
	}
	return months
}

// Backfill imports missing months for both tasks, at most MaxMonthsPerRun months per task.
func (s *ImportService) Backfill(ctx context.Context) error {
	months := s.BackfillMonths()
	runID := uuid.New().String()

	for _, kind := range []archive.Kind{archive.KindResults, archive.KindPrograms} {
		task := taskOf(kind)
		done, err := s.store.CompletedMonths(ctx, task)
		if err != nil {
			return err
		}

		budget := s.cfg.MaxMonthsPerRun
		for _, month := range months {
			if done[month] {
				continue
			}
			if budget <= 0 {
				logger.Info("Backfill %s: month budget reached, resuming next run", task)
				break
			}
			budget--

			if err := s.importMonth(ctx, kind, month, runID); err != nil {
				return err
			}
		}
	}
	return nil
}

// importMonth imports every day of a month up to yesterday. The month completes only
// once its last day has passed and every day imported; a month with an unpublished
// day stays pending and an unsupported archive marks it failed.
func (s *ImportService) importMonth(ctx context.Context, kind archive.Kind, month, runID string) error {
	start := s.clock.Now()
	progress := &models.ImportProgress{
		TaskKind:  taskOf(kind),
		YearMonth: month,
		Status:    models.ImportRunning,
		RunID:     runID,
		StartedAt: &start,
	}
	if err := s.store.MarkProgress(ctx, progress); err != nil {
		return err
	}

	first, _ := time.ParseInLocation("2006-01", month, clock.JST)
	last := first.AddDate(0, 1, -1)
	yesterday := clock.Today(s.clock).AddDate(0, 0, -1)

	var (
		mu       sync.Mutex
		days     int
		records  int
		absent   int
		codecErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ParallelWorkers)
	for day := first; day.Month() == first.Month() && !day.After(yesterday); day = day.AddDate(0, 0, 1) {
		date := models.DateOf(day)
		g.Go(func() error {
			n, err := s.ImportDay(gctx, kind, date)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				days++
				records += n
			case errors.Is(err, errs.ErrUpstreamAbsent):
				absent++
			case errors.Is(err, errs.ErrCodecUnsupported):
				if codecErr == nil {
					codecErr = err
				}
			default:
				return fmt.Errorf("import %s %s: %w", kind, date, err)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	progress.DaysImported = days
	progress.RecordsCount = records
	switch {
	case waitErr != nil:
		progress.Status = models.ImportFailed
		progress.ErrorMessage = waitErr.Error()
	case codecErr != nil:
		progress.Status = models.ImportFailed
		progress.ErrorMessage = codecErr.Error()
	case absent > 0:
		progress.Status = models.ImportPending
		progress.ErrorMessage = fmt.Sprintf("%d days not published", absent)
	case last.After(yesterday):
		progress.Status = models.ImportPending
		progress.ErrorMessage = fmt.Sprintf("month in progress, imported through %s", models.DateOf(yesterday))
	default:
		finished := s.clock.Now()
		progress.Status = models.ImportCompleted
		progress.CompletedAt = &finished
	}
	logger.WithFields(logger.Fields{
		"task": progress.TaskKind, "month": month, "status": progress.Status,
		"days": days, "records": records, "absent": absent,
	}).Info("backfill month done")

	// keep the progress row even when the job context is gone
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.MarkProgress(markCtx, progress); err != nil {
		return err
	}
	if waitErr != nil {
		return waitErr
	}
	return codecErr
}
