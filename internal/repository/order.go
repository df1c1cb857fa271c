package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vammperp/backend/internal/model"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) GetByOrdID(ordID string) (*model.Order, error) {
	var order model.Order
	if err := r.db.Where("ord_id = ?", ordID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) Upsert(order *model.Order) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ord_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "filled_size", "position_id", "u_time"}),
	}).Create(order).Error
}

func (r *OrderRepository) GetPendingByTrader(trader, market string, limit int) ([]model.Order, error) {
	var orders []model.Order
	query := r.db.Where("trader = ? AND status = ?", trader, "active")
	if market != "" {
		query = query.Where("market = ?", market)
	}
	if err := query.Order("c_time DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) GetHistoryByTrader(trader, market string, after, before int64, limit int) ([]model.Order, error) {
	var orders []model.Order
	query := r.db.Where("trader = ? AND status IN ?", trader, []string{"filled", "cancelled"})
	if market != "" {
		query = query.Where("market = ?", market)
	}
	if after > 0 {
		query = query.Where("c_time < ?", after)
	}
	if before > 0 {
		query = query.Where("c_time > ?", before)
	}
	if err := query.Order("c_time DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
