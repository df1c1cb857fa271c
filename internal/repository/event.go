package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vammperp/backend/internal/model"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateBatch appends events. Rows already present for (market, seq) are
// skipped so redelivery is harmless.
func (r *EventRepository) CreateBatch(events []*model.EngineEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&events).Error
}

// GetByMarket pages forward through a market's log from afterSeq.
func (r *EventRepository) GetByMarket(market, typ string, afterSeq uint64, limit int) ([]model.EngineEvent, error) {
	var events []model.EngineEvent
	query := r.db.Where("market = ? AND seq > ?", market, afterSeq)
	if typ != "" {
		query = query.Where("type = ?", typ)
	}
	if err := query.Order("seq ASC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *EventRepository) LastSeq(market string) (uint64, error) {
	var seq uint64
	err := r.db.Model(&model.EngineEvent{}).
		Where("market = ?", market).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&seq).Error
	return seq, err
}
