package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vammperp/backend/internal/model"
)

type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) GetByPosID(posID string) (*model.Position, error) {
	var pos model.Position
	if err := r.db.Where("pos_id = ?", posID).First(&pos).Error; err != nil {
		return nil, err
	}
	return &pos, nil
}

func (r *PositionRepository) Upsert(pos *model.Position) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pos_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "size", "collateral", "exit_price", "liquidation_price",
			"realized_pnl", "entry_cumulative_funding", "u_time",
		}),
	}).Create(pos).Error
}

// GetByTrader returns a trader's positions, newest first. Empty market or
// status match everything.
func (r *PositionRepository) GetByTrader(trader, market, status string, limit int) ([]model.Position, error) {
	var positions []model.Position
	query := r.db.Where("trader = ?", trader)
	if market != "" {
		query = query.Where("market = ?", market)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("c_time DESC").Limit(limit).Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

func (r *PositionRepository) GetOpenByMarket(market string) ([]model.Position, error) {
	var positions []model.Position
	if err := r.db.Where("market = ? AND status = ?", market, "open").Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}
