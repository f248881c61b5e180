package models

// Position is the quantity of one stock held by one account.
// There is at most one row per (account, stock) pair, and a quantity of zero
// is never stored: selling down to zero deletes the row.
type Position struct {
	ID         uint   `gorm:"primarykey" json:"-"`
	AccountKey string `gorm:"uniqueIndex:idx_account_stock;not null" json:"account_key"`
	Stock      string `gorm:"uniqueIndex:idx_account_stock;not null" json:"stock"`
	Quantity   int64  `gorm:"not null" json:"quantity"`
}
