package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade is one executed trade in the append-only ledger. Rows are immutable
// once written; balances are recorded before and after so the ledger can be
// reconciled against the account without replaying it.
type Trade struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	AccountKey    string          `gorm:"index;not null" json:"account_key"`
	Name          string          `json:"name"`
	Stock         string          `gorm:"index" json:"stock"`
	Price         decimal.Decimal `gorm:"type:numeric(18,2)" json:"price"`
	Quantity      int64           `json:"quantity"`
	Side          string          `json:"side"` // "buy" or "sell"
	BalanceBefore decimal.Decimal `gorm:"type:numeric(18,2)" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(18,2)" json:"balance_after"`
	Time          time.Time       `gorm:"index" json:"time"`
}
