package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stock-sim-go/internal/models"
)

type gormAccounts struct {
	db *gorm.DB
}

var _ AccountStore = (*gormAccounts)(nil)

func (s *gormAccounts) Get(apiKey string) (*models.Account, error) {
	var account models.Account
	err := s.db.Where("api_key = ?", apiKey).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not get account: %w", err)
	}
	return &account, nil
}

func (s *gormAccounts) GetForUpdate(apiKey string) (*models.Account, error) {
	var account models.Account
	err := lockForUpdate(s.db).
		Where("api_key = ?", apiKey).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not lock account: %w", err)
	}
	return &account, nil
}

func (s *gormAccounts) Create(account *models.Account) error {
	if err := s.db.Create(account).Error; err != nil {
		return fmt.Errorf("could not create account: %w", err)
	}
	return nil
}

func (s *gormAccounts) Delete(apiKey string) error {
	res := s.db.Where("api_key = ?", apiKey).Delete(&models.Account{})
	if res.Error != nil {
		return fmt.Errorf("could not delete account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormAccounts) UpdateBalance(apiKey string, balance decimal.Decimal) error {
	res := s.db.Model(&models.Account{}).Where("api_key = ?", apiKey).
		Update("balance", balance)
	if res.Error != nil {
		return fmt.Errorf("could not update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormAccounts) UpdateToken(apiKey, token string, expiry time.Time) error {
	res := s.db.Model(&models.Account{}).Where("api_key = ?", apiKey).
		Updates(map[string]interface{}{"token": token, "token_expiry": expiry})
	if res.Error != nil {
		return fmt.Errorf("could not update token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormAccounts) ByTeam(team string) ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.Where("team = ?", team).Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("could not list accounts for team: %w", err)
	}
	return accounts, nil
}
