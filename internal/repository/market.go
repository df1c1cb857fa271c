package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vammperp/backend/internal/model"
)

type MarketRepository struct {
	db *gorm.DB
}

func NewMarketRepository(db *gorm.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

func (r *MarketRepository) GetBySymbol(symbol string) (*model.Market, error) {
	var m model.Market
	if err := r.db.Where("symbol = ?", symbol).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MarketRepository) GetAll() ([]model.Market, error) {
	var markets []model.Market
	if err := r.db.Order("symbol ASC").Find(&markets).Error; err != nil {
		return nil, err
	}
	return markets, nil
}

// Upsert writes the row keyed by symbol. An empty Snapshot keeps the stored one.
func (r *MarketRepository) Upsert(m *model.Market) error {
	columns := []string{
		"authority", "is_active", "pricing", "base_reserve", "quote_reserve", "last_price",
		"maintenance_margin_ratio", "initial_margin_ratio", "max_leverage",
		"liquidation_fee_ratio", "trading_fee_ratio",
		"funding_rate", "cumulative_funding", "funding_interval", "last_funding_time",
		"fee_pool", "insurance_fund", "bad_debt", "open_interest_long", "open_interest_short",
		"event_seq", "u_time",
	}
	if m.Snapshot != "" {
		columns = append(columns, "snapshot")
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(m).Error
}
