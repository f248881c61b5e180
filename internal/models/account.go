package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a registered participant. The API key doubles as the
// primary key and is immutable once issued.
type Account struct {
	APIKey      string          `gorm:"primaryKey" json:"api_key"`
	Name        string          `gorm:"not null" json:"name"`
	Team        string          `gorm:"index" json:"team"`
	Balance     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"balance"`
	Token       string          `json:"-"`
	TokenExpiry time.Time       `json:"-"`
	CreatedAt   time.Time       `json:"-"`
	UpdatedAt   time.Time       `json:"-"`
}
