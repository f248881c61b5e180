package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"stock-sim-go/internal/auth"
	"stock-sim-go/internal/clock"
	"stock-sim-go/internal/config"
	"stock-sim-go/internal/engine"
	"stock-sim-go/internal/models"
	"stock-sim-go/internal/store"
)

// testServer wires a Server against an in-memory database and a fixed clock.
func testServer(t *testing.T, now time.Time) (*Server, *store.Stores) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&models.Account{}, &models.Position{}, &models.Trade{})
	require.NoError(t, err)

	stores := store.New(db)
	txm := store.NewTxManager(db, 5*time.Second)
	clk := clock.Fixed{T: now}
	authenticator := auth.New(stores.Accounts, clk, zap.NewNop(), 7*time.Hour)
	eng := engine.New(zap.NewNop(), clk, txm, config.Trading{
		FeeRate:          0.0011842,
		FlatSellFee:      15,
		TxTimeoutSeconds: 5,
	})

	srv := New(config.Server{Port: 0, RateLimit: 100, RateLimitBurst: 100},
		zap.NewNop(), authenticator, eng, stores)
	return srv, stores
}

func istNow(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	// Tuesday, inside trading hours.
	return time.Date(2025, 6, 10, 10, 30, 0, 0, loc)
}

func seedAccount(t *testing.T, stores *store.Stores) {
	t.Helper()
	require.NoError(t, stores.Accounts.Create(&models.Account{
		APIKey:  "key-1",
		Name:    "Tester",
		Team:    "testers",
		Balance: decimal.NewFromInt(100000),
	}))
}

func authenticateRequest(t *testing.T, srv *Server) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/authenticate?api_key=key-1", nil)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestAuthenticateHandler(t *testing.T) {
	srv, stores := testServer(t, istNow(t))
	seedAccount(t, stores)

	t.Run("Success", func(t *testing.T) {
		token := authenticateRequest(t, srv)
		account, err := stores.Accounts.Get("key-1")
		require.NoError(t, err)
		assert.Equal(t, token, account.Token)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/authenticate?api_key=missing", nil)
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("MissingKey", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/authenticate", nil)
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("GetNotAllowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/authenticate?api_key=key-1", nil)
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestUserHandler(t *testing.T) {
	srv, stores := testServer(t, istNow(t))
	seedAccount(t, stores)
	token := authenticateRequest(t, srv)

	t.Run("Success", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/user", nil)
		req.Header.Set(headerAPIKey, "key-1")
		req.Header.Set(headerToken, token)
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body UserResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "Tester", body.Name)
		assert.Equal(t, "100000", body.Balance)
	})

	t.Run("WrongToken", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/user", nil)
		req.Header.Set(headerAPIKey, "key-1")
		req.Header.Set(headerToken, "bogus")
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func tradeRequest(t *testing.T, token string, body engine.Request) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/trade", bytes.NewReader(raw))
	req.Header.Set(headerAPIKey, "key-1")
	req.Header.Set(headerToken, token)
	return req
}

func TestTradeHandler(t *testing.T) {
	now := istNow(t)
	srv, stores := testServer(t, now)
	seedAccount(t, stores)
	token := authenticateRequest(t, srv)

	t.Run("BuyAccepted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, tradeRequest(t, token, engine.Request{
			Side:        models.SideBuy,
			Stock:       "RELIANCE",
			Price:       decimal.RequireFromString("150"),
			Quantity:    10,
			SubmittedAt: now,
		}))

		require.Equal(t, http.StatusOK, rec.Code)
		var outcome engine.Outcome
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&outcome))
		assert.True(t, outcome.Success)
		assert.Equal(t, "98498.22", outcome.Balance.String())
	})

	t.Run("RejectionIsBadRequest", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, tradeRequest(t, token, engine.Request{
			Side:        models.SideSell,
			Stock:       "TCS",
			Price:       decimal.RequireFromString("100"),
			Quantity:    5,
			SubmittedAt: now,
		}))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var outcome engine.Outcome
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&outcome))
		assert.False(t, outcome.Success)
		assert.Equal(t, engine.ReasonInsufficientPosition, outcome.Reason)
	})

	t.Run("NonPositiveQuantity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, tradeRequest(t, token, engine.Request{
			Side:        models.SideBuy,
			Stock:       "RELIANCE",
			Price:       decimal.RequireFromString("150"),
			Quantity:    0,
			SubmittedAt: now,
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("NoToken", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := tradeRequest(t, "bogus", engine.Request{
			Side:        models.SideBuy,
			Stock:       "RELIANCE",
			Price:       decimal.RequireFromString("150"),
			Quantity:    1,
			SubmittedAt: now,
		})
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestTradeHandler_RateLimited(t *testing.T) {
	now := istNow(t)
	srv, stores := testServer(t, now)
	seedAccount(t, stores)
	token := authenticateRequest(t, srv)

	// One request allowed, then the bucket is empty.
	srv.rateLimit = 0
	srv.burst = 1

	body := engine.Request{
		Side:        models.SideBuy,
		Stock:       "RELIANCE",
		Price:       decimal.RequireFromString("150"),
		Quantity:    1,
		SubmittedAt: now,
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, tradeRequest(t, token, body))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, tradeRequest(t, token, body))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestTradeHandler_UnauthenticatedKeysGetNoLimiter(t *testing.T) {
	now := istNow(t)
	srv, stores := testServer(t, now)
	seedAccount(t, stores)

	body, err := json.Marshal(engine.Request{
		Side:        models.SideBuy,
		Stock:       "RELIANCE",
		Price:       decimal.RequireFromString("150"),
		Quantity:    1,
		SubmittedAt: now,
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/trade", bytes.NewReader(body))
		req.Header.Set(headerAPIKey, fmt.Sprintf("fabricated-%d", i))
		req.Header.Set(headerToken, "bogus")
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// Only authenticated trades may populate the limiter map, so the
	// fabricated keys above left it empty.
	srv.mu.Lock()
	assert.Empty(t, srv.limiters)
	srv.mu.Unlock()
}

func TestPortfolioAndTransactionHandlers(t *testing.T) {
	now := istNow(t)
	srv, stores := testServer(t, now)
	seedAccount(t, stores)
	token := authenticateRequest(t, srv)

	// Execute two trades through the API so the ledger has history.
	for _, stock := range []string{"RELIANCE", "TCS"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, tradeRequest(t, token, engine.Request{
			Side:        models.SideBuy,
			Stock:       stock,
			Price:       decimal.RequireFromString("150"),
			Quantity:    10,
			SubmittedAt: now,
		}))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	t.Run("Portfolio", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/portfolio", nil)
		req.Header.Set(headerAPIKey, "key-1")
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var positions []models.Position
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&positions))
		assert.Len(t, positions, 2)
	})

	t.Run("PortfolioFilteredByStock", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/portfolio?stock=TCS", nil)
		req.Header.Set(headerAPIKey, "key-1")
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var positions []models.Position
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&positions))
		require.Len(t, positions, 1)
		assert.Equal(t, "TCS", positions[0].Stock)
	})

	t.Run("Transactions", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/transaction?type=buy", nil)
		req.Header.Set(headerAPIKey, "key-1")
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var trades []models.Trade
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&trades))
		assert.Len(t, trades, 2)
	})

	t.Run("TransactionsBadTimeFilter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/transaction?start=yesterday", nil)
		req.Header.Set(headerAPIKey, "key-1")
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("UnknownKeyUnauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/portfolio", nil)
		req.Header.Set(headerAPIKey, "missing")
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestDashboardHandler(t *testing.T) {
	srv, stores := testServer(t, istNow(t))
	seedAccount(t, stores)
	require.NoError(t, stores.Accounts.Create(&models.Account{
		APIKey:  "key-2",
		Name:    "Other",
		Team:    "testers",
		Balance: decimal.NewFromInt(50000),
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set(headerTeam, "testers")
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var rows []DashboardRow
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	assert.Len(t, rows, 2)
}

func TestHealthHandlers(t *testing.T) {
	srv, _ := testServer(t, istNow(t))

	for _, path := range []string{"/health", "/dbhealth"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("path %s", path))
	}
}
