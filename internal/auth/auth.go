// Package auth issues and validates the time-boxed session tokens trades are
// gated on. An account holds at most one valid token; issuing a new one
// overwrites the old.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stock-sim-go/internal/clock"
	"stock-sim-go/internal/models"
	"stock-sim-go/internal/store"
)

var (
	// ErrInvalidToken is returned when the presented token does not match
	// the stored one.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when the stored token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

// Authenticator issues and validates session tokens against the account store.
type Authenticator struct {
	accounts store.AccountStore
	clock    clock.Clock
	logger   *zap.Logger
	ttl      time.Duration
}

// New creates an Authenticator. ttl is the lifetime of issued tokens.
func New(accounts store.AccountStore, clk clock.Clock, logger *zap.Logger, ttl time.Duration) *Authenticator {
	return &Authenticator{
		accounts: accounts,
		clock:    clk,
		logger:   logger,
		ttl:      ttl,
	}
}

// Issue generates a fresh random token for the account, persists it with an
// expiry of now+ttl and returns both. Returns store.ErrNotFound if the
// account does not exist.
func (a *Authenticator) Issue(apiKey string) (string, time.Time, error) {
	if _, err := a.accounts.Get(apiKey); err != nil {
		return "", time.Time{}, err
	}

	token := uuid.NewString()
	expiry := a.clock.Now().Add(a.ttl)

	if err := a.accounts.UpdateToken(apiKey, token, expiry); err != nil {
		return "", time.Time{}, fmt.Errorf("could not persist token: %w", err)
	}

	a.logger.Info("Issued session token",
		zap.String("api_key", apiKey),
		zap.Time("expiry", expiry))
	return token, expiry, nil
}

// Validate checks the presented token against the stored one and its expiry.
// On success it returns the current account snapshot.
func (a *Authenticator) Validate(apiKey, token string) (*models.Account, error) {
	account, err := a.accounts.Get(apiKey)
	if err != nil {
		return nil, err
	}

	if account.Token == "" || account.Token != token {
		return nil, ErrInvalidToken
	}
	if account.TokenExpiry.Before(a.clock.Now()) {
		return nil, ErrTokenExpired
	}

	return account, nil
}
