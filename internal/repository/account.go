package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vammperp/backend/internal/model"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Get(market, owner string) (*model.MarginAccount, error) {
	var a model.MarginAccount
	if err := r.db.Where("market = ? AND owner = ?", market, owner).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) GetByOwner(owner string) ([]model.MarginAccount, error) {
	var accounts []model.MarginAccount
	if err := r.db.Where("owner = ?", owner).Order("market ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *AccountRepository) Upsert(a *model.MarginAccount) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market"}, {Name: "owner"}},
		DoUpdates: clause.AssignmentColumns([]string{"margin_type", "collateral", "allocated_margin", "u_time"}),
	}).Create(a).Error
}
