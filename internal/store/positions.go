package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"stock-sim-go/internal/models"
)

type gormPositions struct {
	db *gorm.DB
}

var _ PositionStore = (*gormPositions)(nil)

func (s *gormPositions) Get(apiKey, stock string) (*models.Position, error) {
	var position models.Position
	err := s.db.Where("account_key = ? AND stock = ?", apiKey, stock).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not get position: %w", err)
	}
	return &position, nil
}

func (s *gormPositions) GetForUpdate(apiKey, stock string) (*models.Position, error) {
	var position models.Position
	err := lockForUpdate(s.db).
		Where("account_key = ? AND stock = ?", apiKey, stock).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not lock position: %w", err)
	}
	return &position, nil
}

func (s *gormPositions) List(apiKey, stock string) ([]models.Position, error) {
	query := s.db.Where("account_key = ?", apiKey)
	if stock != "" {
		query = query.Where("stock = ?", stock)
	}
	var positions []models.Position
	if err := query.Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("could not list positions: %w", err)
	}
	return positions, nil
}

func (s *gormPositions) Create(apiKey, stock string, quantity int64) error {
	position := models.Position{AccountKey: apiKey, Stock: stock, Quantity: quantity}
	if err := s.db.Create(&position).Error; err != nil {
		return fmt.Errorf("could not create position: %w", err)
	}
	return nil
}

func (s *gormPositions) Update(apiKey, stock string, quantity int64) error {
	res := s.db.Model(&models.Position{}).
		Where("account_key = ? AND stock = ?", apiKey, stock).
		Update("quantity", quantity)
	if res.Error != nil {
		return fmt.Errorf("could not update position: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormPositions) Delete(apiKey, stock string) error {
	res := s.db.Where("account_key = ? AND stock = ?", apiKey, stock).
		Delete(&models.Position{})
	if res.Error != nil {
		return fmt.Errorf("could not delete position: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
