/**
 * @description
 * Warehouse gateway over PostgreSQL.
 * All writes are idempotent upserts keyed by the natural race key and run in a
 * single transaction so a failure leaves no partial rows.
 *
 * @dependencies
 * - gorm.io/gorm: ORM and upsert clauses
 * - github.com/jackc/pgx/v5/pgconn: transient error codes
 */

package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 100

var raceKeyColumns = []clause.Column{{Name: "race_date"}, {Name: "venue_code"}, {Name: "race_number"}}

func keyColumns(extra ...string) []clause.Column {
	cols := append([]clause.Column{}, raceKeyColumns...)
	for _, name := range extra {
		cols = append(cols, clause.Column{Name: name})
	}
	return cols
}

// Gateway is the only component that talks to the warehouse.
type Gateway struct {
	DB *gorm.DB
}

// New creates a gateway.
func New(db *gorm.DB) *Gateway {
	return &Gateway{DB: db}
}

// upsertRaces keeps known deadlines and titles when a later source lacks them.
// A race once marked void stays void.
func upsertRaces(tx *gorm.DB, races []models.Race) error {
	if len(races) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns: raceKeyColumns,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"title":      gorm.Expr("COALESCE(NULLIF(EXCLUDED.title, ''), races.title)"),
			"deadline":   gorm.Expr("COALESCE(EXCLUDED.deadline, races.deadline)"),
			"canceled":   gorm.Expr("races.canceled OR EXCLUDED.canceled"),
			"updated_at": gorm.Expr("EXCLUDED.updated_at"),
		}),
	}).CreateInBatches(races, batchSize).Error
}

// UpsertRaces inserts or refreshes race rows.
func (g *Gateway) UpsertRaces(ctx context.Context, races []models.Race) error {
	return g.withRetry(ctx, "upsert races", func(tx *gorm.DB) error {
		return upsertRaces(tx, races)
	})
}

// SavePrograms persists race rows and their program entries together.
func (g *Gateway) SavePrograms(ctx context.Context, races []models.Race, entries []models.ProgramEntry) error {
	return g.withRetry(ctx, "save programs", func(tx *gorm.DB) error {
		if err := upsertRaces(tx, races); err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns: keyColumns("boat_number"),
			DoUpdates: clause.AssignmentColumns([]string{
				"racer_id", "racer_name", "class", "age", "branch", "weight",
				"national_win_rate", "national_top2_rate", "local_win_rate", "local_top2_rate",
				"motor_number", "motor_top2_rate", "boat_no", "boat_top2_rate", "updated_at",
			}),
		}).CreateInBatches(entries, batchSize).Error
	})
}

// SaveResults persists race rows, finishing rows and payoffs together.
// Re-saving the same file leaves the row set unchanged.
func (g *Gateway) SaveResults(ctx context.Context, races []models.Race, entries []models.ResultEntry, payoffs []models.Payoff) error {
	return g.withRetry(ctx, "save results", func(tx *gorm.DB) error {
		if err := upsertRaces(tx, races); err != nil {
			return err
		}
		if len(entries) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns: keyColumns("boat_number"),
				DoUpdates: clause.AssignmentColumns([]string{
					"rank", "disqualification", "racer_id", "racer_name", "exhibition_time",
					"start_course", "start_timing", "race_time_seconds", "updated_at",
				}),
			}).CreateInBatches(entries, batchSize).Error
			if err != nil {
				return err
			}
		}
		if len(payoffs) > 0 {
			return tx.Clauses(clause.OnConflict{
				Columns:   keyColumns("bet_kind", "combination"),
				DoUpdates: clause.AssignmentColumns([]string{"payout_per_100", "popularity"}),
			}).CreateInBatches(payoffs, batchSize).Error
		}
		return nil
	})
}

// Race returns one race row.
func (g *Gateway) Race(ctx context.Context, key models.RaceKey) (*models.Race, error) {
	var race models.Race
	err := g.DB.WithContext(ctx).
		Where("race_date = ? AND venue_code = ? AND race_number = ?", key.Date, key.VenueCode, key.RaceNumber).
		First(&race).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("race %s: %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &race, nil
}

// RacesForDate lists the races of a day ordered by venue and number.
func (g *Gateway) RacesForDate(ctx context.Context, date models.Date) ([]models.Race, error) {
	var races []models.Race
	err := g.DB.WithContext(ctx).
		Where("race_date = ?", date).
		Order("venue_code, race_number").
		Find(&races).Error
	return races, err
}

// RacesWithDeadlineBetween lists races still on sale whose deadline lies in (from, to].
func (g *Gateway) RacesWithDeadlineBetween(ctx context.Context, from, to time.Time) ([]models.Race, error) {
	var races []models.Race
	err := g.DB.WithContext(ctx).
		Where("canceled = ? AND deadline > ? AND deadline <= ?", false, from, to).
		Order("deadline, venue_code, race_number").
		Find(&races).Error
	return races, err
}

// BoatOneProgram returns the program row of boat 1.
func (g *Gateway) BoatOneProgram(ctx context.Context, key models.RaceKey) (*models.ProgramEntry, error) {
	var entry models.ProgramEntry
	err := g.DB.WithContext(ctx).
		Where("race_date = ? AND venue_code = ? AND race_number = ? AND boat_number = 1", key.Date, key.VenueCode, key.RaceNumber).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("program %s boat 1: %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// HasPrograms reports whether any program rows exist for the day.
func (g *Gateway) HasPrograms(ctx context.Context, date models.Date) (bool, error) {
	var n int64
	err := g.DB.WithContext(ctx).Model(&models.ProgramEntry{}).Where("race_date = ?", date).Count(&n).Error
	return n > 0, err
}

// RaceOutcome loads what settlement needs. ErrDataMissing means no result yet.
func (g *Gateway) RaceOutcome(ctx context.Context, key models.RaceKey) (*models.RaceOutcome, error) {
	race, err := g.Race(ctx, key)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	if race != nil && race.Canceled {
		return &models.RaceOutcome{Void: true}, nil
	}

	where := "race_date = ? AND venue_code = ? AND race_number = ?"
	var outcome models.RaceOutcome
	if err := g.DB.WithContext(ctx).Where(where, key.Date, key.VenueCode, key.RaceNumber).
		Order("boat_number").Find(&outcome.Entries).Error; err != nil {
		return nil, err
	}
	if len(outcome.Entries) == 0 {
		return nil, fmt.Errorf("result %s: %w", key, errs.ErrDataMissing)
	}
	if err := g.DB.WithContext(ctx).Where(where, key.Date, key.VenueCode, key.RaceNumber).
		Find(&outcome.Payoffs).Error; err != nil {
		return nil, err
	}
	return &outcome, nil
}

// Health pings the warehouse and checks that every table exists.
func (g *Gateway) Health(ctx context.Context) error {
	sqlDB, err := g.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	migrator := g.DB.WithContext(ctx).Migrator()
	for _, m := range models.All() {
		if !migrator.HasTable(m) {
			return fmt.Errorf("schema: table for %T missing", m)
		}
	}
	return nil
}
