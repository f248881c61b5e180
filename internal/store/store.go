// Package store holds the persistence layer: the account, position and
// ledger stores plus the transaction manager that scopes an atomic group of
// writes across all three.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stock-sim-go/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// AccountStore exposes participant records.
type AccountStore interface {
	Get(apiKey string) (*models.Account, error)
	// GetForUpdate reads the account holding a row lock. It is only
	// meaningful when called on a transaction-bound store.
	GetForUpdate(apiKey string) (*models.Account, error)
	Create(account *models.Account) error
	Delete(apiKey string) error
	UpdateBalance(apiKey string, balance decimal.Decimal) error
	UpdateToken(apiKey, token string, expiry time.Time) error
	ByTeam(team string) ([]models.Account, error)
}

// PositionStore exposes per-(account, stock) holdings.
type PositionStore interface {
	Get(apiKey, stock string) (*models.Position, error)
	GetForUpdate(apiKey, stock string) (*models.Position, error)
	// List returns all positions for an account, optionally filtered to one
	// stock when stock is non-empty.
	List(apiKey, stock string) ([]models.Position, error)
	Create(apiKey, stock string, quantity int64) error
	Update(apiKey, stock string, quantity int64) error
	Delete(apiKey, stock string) error
}

// LedgerFilter narrows a ledger query. Zero values mean "no filter".
type LedgerFilter struct {
	Stock string
	Side  string
	Start time.Time
	End   time.Time
}

// LedgerStore is the append-only trade history.
type LedgerStore interface {
	Insert(trade *models.Trade) error
	// Query returns an account's trades most-recent-first.
	Query(apiKey string, filter LedgerFilter) ([]models.Trade, error)
}

// Stores bundles the three stores bound to one gorm handle, which may be
// either the root connection or an open transaction.
type Stores struct {
	Accounts  AccountStore
	Positions PositionStore
	Ledger    LedgerStore
}

// New returns stores bound to the root connection. Reads through these see
// only committed data; mutating trade state must go through a TxManager.
func New(db *gorm.DB) *Stores {
	return &Stores{
		Accounts:  &gormAccounts{db: db},
		Positions: &gormPositions{db: db},
		Ledger:    &gormLedger{db: db},
	}
}

// lockForUpdate applies SELECT ... FOR UPDATE row locking on databases that
// support it. sqlite rejects the syntax and serializes writers at the
// connection level instead, so the clause is skipped there.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Txn is one in-flight atomic group over the three stores. Every Begin must
// be paired with exactly one Commit or Rollback; both are no-ops once the
// transaction is finished.
type Txn interface {
	Accounts() AccountStore
	Positions() PositionStore
	Ledger() LedgerStore
	Commit() error
	Rollback() error
}

// TxManager begins atomic groups. The engine receives it by injection so
// tests can substitute failing stores.
type TxManager interface {
	Begin(ctx context.Context) (Txn, error)
}
