package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vammperp/backend/internal/model"
)

type LiquidationRepository struct {
	db *gorm.DB
}

func NewLiquidationRepository(db *gorm.DB) *LiquidationRepository {
	return &LiquidationRepository{db: db}
}

func (r *LiquidationRepository) Create(liq *model.Liquidation) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(liq).Error
}

func (r *LiquidationRepository) GetByTrader(trader, market string, after, before int64, limit int) ([]model.Liquidation, error) {
	var liquidations []model.Liquidation
	query := r.db.Where("trader = ?", trader)
	if market != "" {
		query = query.Where("market = ?", market)
	}
	if after > 0 {
		query = query.Where("ts < ?", after)
	}
	if before > 0 {
		query = query.Where("ts > ?", before)
	}
	if err := query.Order("ts DESC").Limit(limit).Find(&liquidations).Error; err != nil {
		return nil, err
	}
	return liquidations, nil
}

func (r *LiquidationRepository) GetRecent(market string, limit int) ([]model.Liquidation, error) {
	var liquidations []model.Liquidation
	query := r.db.Model(&model.Liquidation{})
	if market != "" {
		query = query.Where("market = ?", market)
	}
	if err := query.Order("ts DESC").Limit(limit).Find(&liquidations).Error; err != nil {
		return nil, err
	}
	return liquidations, nil
}
