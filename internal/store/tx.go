package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// gormTxManager begins gorm transactions bounded by a timeout. The row locks
// taken by GetForUpdate live for the duration of the transaction, so two
// concurrent trades on one account serialize on the account row.
type gormTxManager struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewTxManager returns a TxManager over db. A transaction exceeding timeout
// is cancelled and surfaces as a persistence failure to the caller.
func NewTxManager(db *gorm.DB, timeout time.Duration) TxManager {
	return &gormTxManager{db: db, timeout: timeout}
}

func (m *gormTxManager) Begin(ctx context.Context) (Txn, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	tx := m.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		cancel()
		return nil, fmt.Errorf("could not begin transaction: %w", tx.Error)
	}
	return &gormTxn{
		stores: Stores{
			Accounts:  &gormAccounts{db: tx},
			Positions: &gormPositions{db: tx},
			Ledger:    &gormLedger{db: tx},
		},
		tx:     tx,
		cancel: cancel,
	}, nil
}

type gormTxn struct {
	stores Stores
	tx     *gorm.DB
	cancel context.CancelFunc
	done   bool
}

var _ Txn = (*gormTxn)(nil)

func (t *gormTxn) Accounts() AccountStore   { return t.stores.Accounts }
func (t *gormTxn) Positions() PositionStore { return t.stores.Positions }
func (t *gormTxn) Ledger() LedgerStore      { return t.stores.Ledger }

func (t *gormTxn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.cancel()
	if err := t.tx.Commit().Error; err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

func (t *gormTxn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.cancel()
	if err := t.tx.Rollback().Error; err != nil {
		return fmt.Errorf("could not rollback transaction: %w", err)
	}
	return nil
}
