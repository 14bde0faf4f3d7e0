/**
 * @description
 * Odds collection. Scrapes a race's odds pages, appends one tick set to the
 * warehouse and publishes it on a Redis channel for live subscribers.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: pub/sub fan-out
 * - golang.org/x/sync/errgroup
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/metrics"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/kyotei-project/backend/internal/scraper"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// OddsChannel is the Redis channel carrying freshly stored tick sets.
const OddsChannel = "odds:ticks"

// OddsSource scrapes the odds of one race.
type OddsSource interface {
	FetchOdds(ctx context.Context, key models.RaceKey) ([]scraper.Quote, error)
}

// OddsStore is the warehouse surface used by the odds collector.
type OddsStore interface {
	AppendOddsTicks(ctx context.Context, ticks []models.OddsTick) (int64, error)
	RacesWithDeadlineBetween(ctx context.Context, from, to time.Time) ([]models.Race, error)
}

// OddsService collects odds.
type OddsService struct {
	source    OddsSource
	store     OddsStore
	redis     *redis.Client
	clock     clock.Clock
	metrics   *metrics.PipelineMetrics
	threshold time.Duration
	workers   int
}

// NewOddsService creates an OddsService. threshold separates the regular poll from the near-deadline poll.
func NewOddsService(source OddsSource, store OddsStore, rdb *redis.Client, clk clock.Clock, pm *metrics.PipelineMetrics, threshold time.Duration, workers int) *OddsService {
	if workers < 1 {
		workers = 1
	}
	return &OddsService{source: source, store: store, redis: rdb, clock: clk, metrics: pm, threshold: threshold, workers: workers}
}

// TickMessage is the payload published on OddsChannel.
type TickMessage struct {
	RaceDate   models.Date    `json:"race_date"`
	VenueCode  string         `json:"venue_code"`
	RaceNumber int            `json:"race_number"`
	SampledAt  time.Time      `json:"sampled_at"`
	Quotes     []QuoteMessage `json:"quotes"`
}

// QuoteMessage is one quote inside a TickMessage.
type QuoteMessage struct {
	Kind        models.OddsKind  `json:"kind"`
	Combination string           `json:"combination"`
	Value       decimal.Decimal  `json:"value"`
	Max         *decimal.Decimal `json:"max,omitempty"`
}

// Collect scrapes and stores one tick set for a race.
func (s *OddsService) Collect(ctx context.Context, key models.RaceKey) (int, error) {
	quotes, err := s.source.FetchOdds(ctx, key)
	if err != nil {
		return 0, err
	}

	sampledAt := s.clock.Now()
	ticks := make([]models.OddsTick, 0, len(quotes))
	msg := TickMessage{RaceDate: key.Date, VenueCode: key.VenueCode, RaceNumber: key.RaceNumber, SampledAt: sampledAt}
	for _, q := range quotes {
		ticks = append(ticks, models.OddsTick{
			RaceDate:    key.Date,
			VenueCode:   key.VenueCode,
			RaceNumber:  key.RaceNumber,
			OddsKind:    q.Kind,
			Combination: q.Combination,
			Value:       q.Value,
			MaxValue:    q.Max,
			SampledAt:   sampledAt,
		})
		msg.Quotes = append(msg.Quotes, QuoteMessage{Kind: q.Kind, Combination: q.Combination, Value: q.Value, Max: q.Max})
	}

	stored, err := s.store.AppendOddsTicks(ctx, ticks)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordOddsTicks(int(stored))

	if data, err := json.Marshal(msg); err != nil {
		logger.Error("Failed to marshal odds message: %v", err)
	} else if err := s.redis.Publish(ctx, OddsChannel, data).Err(); err != nil {
		logger.Warn("Failed to publish odds for %s: %v", key, err)
	}
	return int(stored), nil
}

// Refresh collects a race on demand. Used by the decision worker when ticks are stale.
func (s *OddsService) Refresh(ctx context.Context, key models.RaceKey) error {
	_, err := s.Collect(ctx, key)
	return err
}

// PollStats summarises one polling pass.
type PollStats struct {
	Races  int
	Ticks  int
	Failed int
}

// PollRegular collects every race of today whose deadline is further away than the threshold.
func (s *OddsService) PollRegular(ctx context.Context) (PollStats, error) {
	now := s.clock.Now()
	endOfDay := clock.Midnight(now).AddDate(0, 0, 1)
	races, err := s.store.RacesWithDeadlineBetween(ctx, now.Add(s.threshold), endOfDay)
	if err != nil {
		return PollStats{}, err
	}
	return s.collectAll(ctx, races)
}

// PollNearDeadline collects races whose deadline falls within the threshold.
func (s *OddsService) PollNearDeadline(ctx context.Context) (PollStats, error) {
	now := s.clock.Now()
	races, err := s.store.RacesWithDeadlineBetween(ctx, now, now.Add(s.threshold))
	if err != nil {
		return PollStats{}, err
	}
	return s.collectAll(ctx, races)
}

// collectAll tolerates upstream failures per race; warehouse errors fail the pass.
func (s *OddsService) collectAll(ctx context.Context, races []models.Race) (PollStats, error) {
	var (
		mu    sync.Mutex
		stats = PollStats{Races: len(races)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, race := range races {
		key := race.Key()
		g.Go(func() error {
			n, err := s.Collect(gctx, key)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stats.Ticks += n
			case errors.Is(err, errs.ErrUpstreamUnavailable), errors.Is(err, errs.ErrUpstreamAbsent),
				errors.Is(err, errs.ErrDataMissing), errors.Is(err, errs.ErrParseMalformed):
				stats.Failed++
				logger.Warn("odds %s: %v", key, err)
			default:
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	return stats, err
}
