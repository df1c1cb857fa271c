package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vammperp/backend/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByAddress(address string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("address = ?", address).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByAPIKey(apiKey string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("api_key = ?", apiKey).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// RotateCredentials creates the user on first login and replaces the API key
// pair on every later one. Address must be checksummed.
func (r *UserRepository) RotateCredentials(address, apiKey, apiSecret string) (*model.User, error) {
	user := model.User{Address: address, APIKey: apiKey, APISecret: apiSecret}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"api_key", "api_secret", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return nil, err
	}
	return r.GetByAddress(address)
}
