package repository

import (
	"gorm.io/gorm"

	"github.com/vammperp/backend/internal/model"
)

type CandleRepository struct {
	db *gorm.DB
}

func NewCandleRepository(db *gorm.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

func (r *CandleRepository) GetByMarketAndBar(market, bar string, after, before int64, limit int) ([]model.Candle, error) {
	var candles []model.Candle
	query := r.db.Where("market = ? AND bar = ?", market, bar)
	if after > 0 {
		query = query.Where("ts < ?", after)
	}
	if before > 0 {
		query = query.Where("ts > ?", before)
	}
	if err := query.Order("ts DESC").Limit(limit).Find(&candles).Error; err != nil {
		return nil, err
	}
	// Reverse to ascending order
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

func (r *CandleRepository) GetLatest(market, bar string) (*model.Candle, error) {
	var candle model.Candle
	if err := r.db.Where("market = ? AND bar = ?", market, bar).Order("ts DESC").First(&candle).Error; err != nil {
		return nil, err
	}
	return &candle, nil
}

func (r *CandleRepository) GetByTimestamp(market, bar string, ts int64) (*model.Candle, error) {
	var candle model.Candle
	if err := r.db.Where("market = ? AND bar = ? AND ts = ?", market, bar, ts).First(&candle).Error; err != nil {
		return nil, err
	}
	return &candle, nil
}

func (r *CandleRepository) UpdateOrCreate(candle *model.Candle) error {
	var existing model.Candle
	err := r.db.Where("market = ? AND bar = ? AND ts = ?", candle.Market, candle.Bar, candle.Ts).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return r.db.Create(candle).Error
	}
	if err != nil {
		return err
	}
	candle.ID = existing.ID
	return r.db.Save(candle).Error
}

// ConfirmBefore marks every candle of a bar that started before ts as final.
func (r *CandleRepository) ConfirmBefore(market, bar string, ts int64) error {
	return r.db.Model(&model.Candle{}).
		Where("market = ? AND bar = ? AND ts < ? AND confirm = 0", market, bar, ts).
		Update("confirm", 1).Error
}
