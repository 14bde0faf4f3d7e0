package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppendOddsTicks stores a sample set. Re-sending the same sample is a no-op.
func (g *Gateway) AppendOddsTicks(ctx context.Context, ticks []models.OddsTick) (int64, error) {
	if len(ticks) == 0 {
		return 0, nil
	}
	var stored int64
	err := g.withRetry(ctx, "append odds ticks", func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(ticks, batchSize)
		stored = res.RowsAffected
		return res.Error
	})
	return stored, err
}

// LatestOdds returns the newest tick for a combination. Historical rows may carry the
// unpadded venue code, so that form is tried second.
func (g *Gateway) LatestOdds(ctx context.Context, key models.RaceKey, kind models.OddsKind, combination string) (*models.OddsTick, error) {
	venues := []string{key.VenueCode}
	if legacy := models.LegacyVenueCode(key.VenueCode); legacy != key.VenueCode {
		venues = append(venues, legacy)
	}

	for _, venue := range venues {
		var tick models.OddsTick
		err := g.DB.WithContext(ctx).
			Where("race_date = ? AND venue_code = ? AND race_number = ? AND odds_kind = ? AND combination = ?",
				key.Date, venue, key.RaceNumber, kind, combination).
			Order("sampled_at DESC").
			First(&tick).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &tick, nil
	}
	return nil, fmt.Errorf("odds %s %s %s: %w", key, kind, combination, errs.ErrNotFound)
}

// LatestOddsForRace returns the newest tick of every (kind, combination) of a race.
func (g *Gateway) LatestOddsForRace(ctx context.Context, key models.RaceKey) ([]models.OddsTick, error) {
	var ticks []models.OddsTick
	err := g.DB.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (odds_kind, combination) *
		FROM odds_ticks
		WHERE race_date = ? AND venue_code = ? AND race_number = ?
		ORDER BY odds_kind, combination, sampled_at DESC`,
		key.Date, key.VenueCode, key.RaceNumber).Scan(&ticks).Error
	return ticks, err
}
