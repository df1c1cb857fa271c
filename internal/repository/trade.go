package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vammperp/backend/internal/model"
)

type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create inserts a trade; a trade id seen before is ignored.
func (r *TradeRepository) Create(trade *model.Trade) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(trade).Error
}

func (r *TradeRepository) GetByMarket(market string, limit int) ([]model.Trade, error) {
	var trades []model.Trade
	if err := r.db.Where("market = ?", market).Order("ts DESC, id DESC").Limit(limit).Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (r *TradeRepository) GetByTrader(trader, market string, after, before int64, limit int) ([]model.Trade, error) {
	var trades []model.Trade
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
	if err := query.Order("ts DESC, id DESC").Limit(limit).Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (r *TradeRepository) GetLatest(market string) (*model.Trade, error) {
	var trade model.Trade
	if err := r.db.Where("market = ?", market).Order("ts DESC, id DESC").First(&trade).Error; err != nil {
		return nil, err
	}
	return &trade, nil
}

// Get24hStats aggregates the trades of the last 24 hours before now.
func (r *TradeRepository) Get24hStats(market string, now time.Time) (*Trade24hStats, error) {
	var stats Trade24hStats
	since := now.Add(-24 * time.Hour).Unix()

	err := r.db.Model(&model.Trade{}).
		Where("market = ? AND ts >= ?", market, since).
		Select("COALESCE(MIN(price), 0) AS low, COALESCE(MAX(price), 0) AS high, COALESCE(SUM(size), 0) AS volume").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	var open model.Trade
	if err := r.db.Where("market = ? AND ts >= ?", market, since).Order("ts ASC, id ASC").First(&open).Error; err == nil {
		stats.Open = open.Price
	}
	return &stats, nil
}

type Trade24hStats struct {
	Open   model.Decimal
	High   model.Decimal
	Low    model.Decimal
	Volume model.Decimal
}
