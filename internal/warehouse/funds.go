package warehouse

import (
	"context"

	"github.com/kyotei-project/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureFunds creates missing strategy funds. Existing balances are never reset.
func (g *Gateway) EnsureFunds(ctx context.Context, funds []models.VirtualFund) error {
	if len(funds) == 0 {
		return nil
	}
	return g.withRetry(ctx, "ensure funds", func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&funds).Error
	})
}

// Funds lists every strategy fund.
func (g *Gateway) Funds(ctx context.Context) ([]models.VirtualFund, error) {
	var funds []models.VirtualFund
	err := g.DB.WithContext(ctx).Order("strategy_id").Find(&funds).Error
	return funds, err
}

// lockFund reads a fund row for update, creating it at the initial balance first if needed.
func lockFund(tx *gorm.DB, strategyID string, initialBalance int64) (*models.VirtualFund, error) {
	seed := models.VirtualFund{StrategyID: strategyID, InitialBalance: initialBalance, Balance: initialBalance}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}
	var fund models.VirtualFund
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("strategy_id = ?", strategyID).
		First(&fund).Error; err != nil {
		return nil, err
	}
	return &fund, nil
}
