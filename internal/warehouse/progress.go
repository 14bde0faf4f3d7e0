package warehouse

import (
	"context"

	"github.com/kyotei-project/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CompletedMonths returns the months of a task already imported.
func (g *Gateway) CompletedMonths(ctx context.Context, task string) (map[string]bool, error) {
	var months []string
	err := g.DB.WithContext(ctx).Model(&models.ImportProgress{}).
		Where("task_kind = ? AND status = ?", task, models.ImportCompleted).
		Pluck("year_month", &months).Error
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(months))
	for _, m := range months {
		done[m] = true
	}
	return done, nil
}

// MarkProgress upserts the progress row of a (task, month).
func (g *Gateway) MarkProgress(ctx context.Context, p *models.ImportProgress) error {
	return g.withRetry(ctx, "mark import progress", func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "task_kind"}, {Name: "year_month"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "run_id", "days_imported", "records_count",
				"error_message", "started_at", "completed_at", "updated_at",
			}),
		}).Create(p).Error
	})
}

// ImportProgress lists progress rows, newest month first.
func (g *Gateway) ImportProgress(ctx context.Context) ([]models.ImportProgress, error) {
	var rows []models.ImportProgress
	err := g.DB.WithContext(ctx).Order("year_month DESC, task_kind").Find(&rows).Error
	return rows, err
}
