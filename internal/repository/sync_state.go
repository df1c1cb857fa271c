package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vammperp/backend/internal/model"
)

type SyncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// Get returns the cursor of market, zero when the market was never indexed.
func (r *SyncStateRepository) Get(market string) (uint64, error) {
	var state model.SyncState
	err := r.db.Where("market = ?", market).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return state.LastSeq, nil
}

func (r *SyncStateRepository) Save(market string, seq uint64) error {
	state := &model.SyncState{Market: market, LastSeq: seq}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seq", "updated_at"}),
	}).Create(state).Error
}
