package store

import (
	"fmt"

	"gorm.io/gorm"

	"stock-sim-go/internal/models"
)

type gormLedger struct {
	db *gorm.DB
}

var _ LedgerStore = (*gormLedger)(nil)

func (s *gormLedger) Insert(trade *models.Trade) error {
	if err := s.db.Create(trade).Error; err != nil {
		return fmt.Errorf("could not insert trade: %w", err)
	}
	return nil
}

func (s *gormLedger) Query(apiKey string, filter LedgerFilter) ([]models.Trade, error) {
	query := s.db.Where("account_key = ?", apiKey)
	if filter.Stock != "" {
		query = query.Where("stock = ?", filter.Stock)
	}
	if filter.Side != "" {
		query = query.Where("side = ?", filter.Side)
	}
	if !filter.Start.IsZero() {
		query = query.Where("time >= ?", filter.Start)
	}
	if !filter.End.IsZero() {
		query = query.Where("time <= ?", filter.End)
	}

	var trades []models.Trade
	// Order by most recent first
	if err := query.Order("time desc").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("could not query trades: %w", err)
	}
	return trades, nil
}
