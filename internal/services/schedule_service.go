/**
 * @description
 * Day schedule: which races run today and their deadlines.
 * Deadlines are read per venue from the live odds page and cached in Redis
 * until JST midnight so every job of the day shares one scrape. Venues whose
 * fetch failed are kept in a pending set and fetched again on the next call.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 * - golang.org/x/sync/errgroup
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// DeadlineSource reads the deadlines of one venue for a day.
type DeadlineSource interface {
	FetchDeadlines(ctx context.Context, date models.Date, venue string) (map[int]time.Time, error)
}

// RaceStore reads and writes race rows.
type RaceStore interface {
	UpsertRaces(ctx context.Context, races []models.Race) error
	RacesForDate(ctx context.Context, date models.Date) ([]models.Race, error)
}

// ScheduleService resolves the races of a day.
type ScheduleService struct {
	source  DeadlineSource
	store   RaceStore
	redis   *redis.Client
	clock   clock.Clock
	workers int
}

// NewScheduleService creates a ScheduleService.
func NewScheduleService(source DeadlineSource, store RaceStore, rdb *redis.Client, clk clock.Clock, workers int) *ScheduleService {
	if workers < 1 {
		workers = 1
	}
	return &ScheduleService{source: source, store: store, redis: rdb, clock: clk, workers: workers}
}

func scheduleCacheKey(date models.Date) string {
	return "schedule:" + date.Compact()
}

func pendingVenuesKey(date models.Date) string {
	return "schedule:" + date.Compact() + ":pending"
}

// EnsureRaces makes sure race rows with deadlines exist for the day and returns them.
// Venues that failed on an earlier call are fetched again.
func (s *ScheduleService) EnsureRaces(ctx context.Context, date models.Date) ([]models.Race, error) {
	// 1. Already in the warehouse
	races, err := s.store.RacesForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	pending := s.pendingVenues(ctx, date)

	// 2. Cached or scraped schedule, or only the venues still pending
	var scheduled []models.Race
	switch {
	case !hasDeadlines(races):
		if scheduled, err = s.Schedule(ctx, date); err != nil {
			return nil, err
		}
	case len(pending) > 0:
		var failed []string
		scheduled, failed, err = s.scrape(ctx, date, pending)
		if err != nil {
			return races, err
		}
		s.setPending(ctx, date, failed)
		logger.Info("schedule %s: refetched %d venues, %d still failing", date, len(pending)-len(failed), len(failed))
	default:
		return races, nil
	}

	if len(scheduled) == 0 {
		return races, nil
	}
	if err := s.store.UpsertRaces(ctx, scheduled); err != nil {
		return nil, err
	}
	return s.store.RacesForDate(ctx, date)
}

func hasDeadlines(races []models.Race) bool {
	if len(races) == 0 {
		return false
	}
	for _, r := range races {
		if r.Deadline == nil && !r.Canceled {
			return false
		}
	}
	return true
}

// Schedule returns the races of the day with deadlines, from cache when possible.
func (s *ScheduleService) Schedule(ctx context.Context, date models.Date) ([]models.Race, error) {
	key := scheduleCacheKey(date)
	if data, err := s.redis.Get(ctx, key).Bytes(); err == nil {
		var races []models.Race
		if err := json.Unmarshal(data, &races); err == nil {
			return races, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn("schedule cache read failed: %v", err)
	}

	races, failed, err := s.scrape(ctx, date, venueCodes())
	if err != nil {
		return nil, err
	}

	// a partial schedule is not cached; the failed venues are retried instead
	s.setPending(ctx, date, failed)
	if len(races) > 0 && len(failed) == 0 {
		data, err := json.Marshal(races)
		if err != nil {
			logger.Error("Failed to marshal schedule for cache: %v", err)
		} else if err := s.redis.Set(ctx, key, data, s.cacheTTL(date)).Err(); err != nil {
			logger.Error("Failed to set schedule cache: %v", err)
		}
	}
	return races, nil
}

// cacheTTL lasts until the end of the JST day, with a floor for past dates.
func (s *ScheduleService) cacheTTL(date models.Date) time.Duration {
	ttl := date.AddDays(1).Time().Sub(s.clock.Now())
	if ttl < time.Hour {
		ttl = time.Hour
	}
	return ttl
}

func venueCodes() []string {
	var codes []string
	for _, v := range models.Venues() {
		codes = append(codes, v.Code)
	}
	return codes
}

func (s *ScheduleService) pendingVenues(ctx context.Context, date models.Date) []string {
	codes, err := s.redis.SMembers(ctx, pendingVenuesKey(date)).Result()
	if err != nil {
		logger.Warn("schedule pending read failed: %v", err)
		return nil
	}
	sort.Strings(codes)
	return codes
}

// setPending replaces the pending venue set of a day.
func (s *ScheduleService) setPending(ctx context.Context, date models.Date, codes []string) {
	key := pendingVenuesKey(date)
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key)
	if len(codes) > 0 {
		members := make([]interface{}, len(codes))
		for i, c := range codes {
			members[i] = c
		}
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, s.cacheTTL(date))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("Failed to store pending schedule venues: %v", err)
	}
}

// scrape fetches the deadlines of the given venues. Venues that failed are returned
// so the caller can retry them; a venue that is not racing yields no races.
func (s *ScheduleService) scrape(ctx context.Context, date models.Date, codes []string) ([]models.Race, []string, error) {
	var (
		mu     sync.Mutex
		races  []models.Race
		failed []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, code := range codes {
		g.Go(func() error {
			deadlines, err := s.source.FetchDeadlines(gctx, date, code)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("schedule %s %s (%s): %v", date, code, models.VenueName(code), err)
				failed = append(failed, code)
				return nil
			}
			for number, deadline := range deadlines {
				d := deadline
				races = append(races, models.Race{RaceDate: date, VenueCode: code, RaceNumber: number, Deadline: &d})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if len(codes) > 0 && len(failed) == len(codes) {
		return nil, failed, fmt.Errorf("schedule %s: every venue failed: %w", date, errs.ErrUpstreamUnavailable)
	}

	sort.Strings(failed)
	sort.Slice(races, func(i, j int) bool {
		if races[i].VenueCode != races[j].VenueCode {
			return races[i].VenueCode < races[j].VenueCode
		}
		return races[i].RaceNumber < races[j].RaceNumber
	})
	return races, failed, nil
}
