// Package engine validates proposed trades against market-hours and session
// rules, computes their financial effect under the fee model, and applies the
// resulting ledger/position/balance change as one atomic group.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stock-sim-go/internal/clock"
	"stock-sim-go/internal/config"
	"stock-sim-go/internal/models"
	"stock-sim-go/internal/store"
)

const (
	// submitWindow bounds how far a trade's submission time may drift from
	// the engine's clock in either direction.
	submitWindow = 30 * time.Minute

	// Trading window, minutes since midnight IST, both ends inclusive.
	marketOpenMinute  = 9*60 + 15  // 09:15
	marketCloseMinute = 15*60 + 30 // 15:30
)

// Reason identifies why a trade was rejected during validation.
type Reason string

const (
	ReasonStaleTiming          Reason = "invalid date and time"
	ReasonOutsideHours         Reason = "trade time must be between 9:15 AM and 3:30 PM"
	ReasonMarketClosed         Reason = "trades can only be executed Monday to Friday"
	ReasonInsufficientFunds    Reason = "insufficient balance"
	ReasonInsufficientPosition Reason = "insufficient stock"
	ReasonInvalidAction        Reason = "invalid action"
)

// Request is a proposed trade against a single synthetic fill price supplied
// by the caller.
type Request struct {
	Side        string          `json:"side"`
	Stock       string          `json:"stock"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Outcome is the structured result of a trade request. A rejection is a
// normal outcome, not an error: Success is false, Reason says why, and
// Balance carries the unchanged balance. On success Balance is the new one.
type Outcome struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Reason   Reason          `json:"reason,omitempty"`
	Name     string          `json:"name"`
	Stock    string          `json:"stock"`
	Quantity int64           `json:"quantity"`
	Balance  decimal.Decimal `json:"balance"`
}

// Engine executes trades. All collaborators are injected; it holds no global
// state and is safe for concurrent use, relying on the transaction manager's
// row locks to serialize trades on one account.
type Engine struct {
	logger      *zap.Logger
	clock       clock.Clock
	txm         store.TxManager
	feeRate     decimal.Decimal
	flatSellFee decimal.Decimal
}

// New creates a trade execution engine from the trading configuration.
func New(logger *zap.Logger, clk clock.Clock, txm store.TxManager, cfg config.Trading) *Engine {
	return &Engine{
		logger:      logger,
		clock:       clk,
		txm:         txm,
		feeRate:     decimal.NewFromFloat(cfg.FeeRate),
		flatSellFee: decimal.NewFromFloat(cfg.FlatSellFee),
	}
}

// Execute validates req for account and, if accepted, applies its effect
// atomically. Validation rejections come back as an unsuccessful Outcome with
// a nil error; a non-nil error means a persistence failure after which no
// partial state is observable.
func (e *Engine) Execute(ctx context.Context, account *models.Account, req Request) (*Outcome, error) {
	l := e.logger.With(
		zap.String("api_key", account.APIKey),
		zap.String("side", req.Side),
		zap.String("stock", req.Stock),
		zap.Int64("quantity", req.Quantity),
	)

	now := e.clock.Now()
	submitted := req.SubmittedAt.In(now.Location())

	// Timing and calendar checks never touch the database.
	if submitted.Before(now.Add(-submitWindow)) || submitted.After(now.Add(submitWindow)) {
		l.Info("Trade rejected", zap.String("reason", string(ReasonStaleTiming)))
		return reject(account, req, ReasonStaleTiming), nil
	}
	minute := submitted.Hour()*60 + submitted.Minute()
	if minute < marketOpenMinute || minute > marketCloseMinute {
		l.Info("Trade rejected", zap.String("reason", string(ReasonOutsideHours)))
		return reject(account, req, ReasonOutsideHours), nil
	}
	if wd := submitted.Weekday(); wd == time.Saturday || wd == time.Sunday {
		l.Info("Trade rejected", zap.String("reason", string(ReasonMarketClosed)))
		return reject(account, req, ReasonMarketClosed), nil
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		l.Info("Trade rejected", zap.String("reason", string(ReasonInvalidAction)))
		return reject(account, req, ReasonInvalidAction), nil
	}

	// Funds and position checks are decided on rows read under lock inside
	// the same transaction that applies the trade, so a concurrent trade on
	// this account cannot commit against the same snapshot. A rejection here
	// rolls back a transaction that performed no writes.
	tx, err := e.txm.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not begin trade transaction: %w", err)
	}
	defer tx.Rollback()

	locked, err := tx.Accounts().GetForUpdate(account.APIKey)
	if err != nil {
		return nil, fmt.Errorf("could not read account %s: %w", account.APIKey, err)
	}

	var outcome *Outcome
	switch req.Side {
	case models.SideBuy:
		outcome, err = e.applyBuy(tx, locked, req, now)
	case models.SideSell:
		outcome, err = e.applySell(tx, locked, req, now)
	}
	if err != nil {
		l.Error("Trade failed, rolling back", zap.Error(err))
		return nil, err
	}
	if !outcome.Success {
		l.Info("Trade rejected", zap.String("reason", string(outcome.Reason)))
		return outcome, nil
	}

	if err := tx.Commit(); err != nil {
		l.Error("Trade commit failed, rolling back", zap.Error(err))
		return nil, fmt.Errorf("could not commit trade: %w", err)
	}

	l.Info("Trade executed",
		zap.String("balance_before", locked.Balance.String()),
		zap.String("balance_after", outcome.Balance.String()))
	return outcome, nil
}

// applyBuy debits cost incl. the proportional fee and adds to the position,
// creating the row on a first buy.
func (e *Engine) applyBuy(tx store.Txn, account *models.Account, req Request, now time.Time) (*Outcome, error) {
	qty := decimal.NewFromInt(req.Quantity)
	cost := qty.Mul(req.Price).Mul(decimal.NewFromInt(1).Add(e.feeRate)).Round(2)

	if account.Balance.LessThan(cost) {
		return reject(account, req, ReasonInsufficientFunds), nil
	}
	newBalance := account.Balance.Sub(cost)

	if err := e.writeTrade(tx, account, req, newBalance, now); err != nil {
		return nil, err
	}

	position, err := tx.Positions().GetForUpdate(account.APIKey, req.Stock)
	switch {
	case err == nil:
		if err := tx.Positions().Update(account.APIKey, req.Stock, position.Quantity+req.Quantity); err != nil {
			return nil, fmt.Errorf("could not update position: %w", err)
		}
	case errors.Is(err, store.ErrNotFound):
		if err := tx.Positions().Create(account.APIKey, req.Stock, req.Quantity); err != nil {
			return nil, fmt.Errorf("could not create position: %w", err)
		}
	default:
		return nil, fmt.Errorf("could not read position: %w", err)
	}

	if err := tx.Accounts().UpdateBalance(account.APIKey, newBalance); err != nil {
		return nil, fmt.Errorf("could not update balance: %w", err)
	}

	return &Outcome{
		Success:  true,
		Message:  fmt.Sprintf("Bought %d shares of %s successfully", req.Quantity, req.Stock),
		Name:     account.Name,
		Stock:    req.Stock,
		Quantity: req.Quantity,
		Balance:  newBalance,
	}, nil
}

// applySell credits the proceeds net of the proportional fee and the flat
// depository charge, and shrinks the position, deleting the row at zero.
func (e *Engine) applySell(tx store.Txn, account *models.Account, req Request, now time.Time) (*Outcome, error) {
	position, err := tx.Positions().GetForUpdate(account.APIKey, req.Stock)
	if errors.Is(err, store.ErrNotFound) {
		return reject(account, req, ReasonInsufficientPosition), nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read position: %w", err)
	}
	if position.Quantity < req.Quantity {
		return reject(account, req, ReasonInsufficientPosition), nil
	}

	qty := decimal.NewFromInt(req.Quantity)
	proceeds := qty.Mul(req.Price).Mul(decimal.NewFromInt(1).Sub(e.feeRate)).
		Sub(e.flatSellFee).Round(2)
	newBalance := account.Balance.Add(proceeds)

	// The flat depository charge can exceed the gross proceeds of a small
	// sell. The balance never goes negative, so such a sell is rejected.
	if newBalance.IsNegative() {
		return reject(account, req, ReasonInsufficientFunds), nil
	}

	if err := e.writeTrade(tx, account, req, newBalance, now); err != nil {
		return nil, err
	}

	remaining := position.Quantity - req.Quantity
	if remaining == 0 {
		if err := tx.Positions().Delete(account.APIKey, req.Stock); err != nil {
			return nil, fmt.Errorf("could not delete position: %w", err)
		}
	} else {
		if err := tx.Positions().Update(account.APIKey, req.Stock, remaining); err != nil {
			return nil, fmt.Errorf("could not update position: %w", err)
		}
	}

	if err := tx.Accounts().UpdateBalance(account.APIKey, newBalance); err != nil {
		return nil, fmt.Errorf("could not update balance: %w", err)
	}

	return &Outcome{
		Success:  true,
		Message:  fmt.Sprintf("Sold %d shares of %s successfully", req.Quantity, req.Stock),
		Name:     account.Name,
		Stock:    req.Stock,
		Quantity: req.Quantity,
		Balance:  newBalance,
	}, nil
}

func (e *Engine) writeTrade(tx store.Txn, account *models.Account, req Request, newBalance decimal.Decimal, now time.Time) error {
	trade := models.Trade{
		AccountKey:    account.APIKey,
		Name:          account.Name,
		Stock:         req.Stock,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Side:          req.Side,
		BalanceBefore: account.Balance,
		BalanceAfter:  newBalance,
		Time:          now,
	}
	if err := tx.Ledger().Insert(&trade); err != nil {
		return fmt.Errorf("could not insert trade record: %w", err)
	}
	return nil
}

func reject(account *models.Account, req Request, reason Reason) *Outcome {
	return &Outcome{
		Success:  false,
		Message:  string(reason),
		Reason:   reason,
		Name:     account.Name,
		Stock:    req.Stock,
		Quantity: req.Quantity,
		Balance:  account.Balance,
	}
}
