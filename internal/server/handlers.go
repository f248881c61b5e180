package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"stock-sim-go/internal/auth"
	"stock-sim-go/internal/engine"
	"stock-sim-go/internal/models"
	"stock-sim-go/internal/store"
)

const (
	headerAPIKey = "Api-Key"
	headerToken  = "Token"
	headerTeam   = "Team"
)

// AuthResponse is the body returned by /authenticate.
type AuthResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// UserResponse is the body returned by /user.
type UserResponse struct {
	Name    string `json:"name"`
	Team    string `json:"team"`
	Balance string `json:"balance"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// authError maps authentication failures onto status codes: any expected auth
// failure is a 401, everything else is a store problem and a 500.
func (s *Server) authError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusUnauthorized, "invalid api key")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		s.writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.logger.Error("Auth lookup failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) authenticateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	apiKey := r.URL.Query().Get("api_key")
	if apiKey == "" {
		s.writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	token, expiry, err := s.auth.Issue(apiKey)
	if err != nil {
		s.authError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AuthResponse{Token: token, ExpiresAt: expiry.Unix()})
}

func (s *Server) userHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, UserResponse{
		Name:    account.Name,
		Team:    account.Team,
		Balance: account.Balance.String(),
	})
}

func (s *Server) tradeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	account, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	// Limiting after authentication keeps the per-key limiter map bounded
	// by the number of real accounts.
	if !s.limiter(account.APIKey).Allow() {
		s.writeError(w, http.StatusTooManyRequests, "too many trade requests")
		return
	}

	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid trade request body")
		return
	}
	if req.Quantity <= 0 || !req.Price.IsPositive() {
		s.writeError(w, http.StatusBadRequest, "price and quantity must be positive")
		return
	}

	outcome, err := s.engine.Execute(r.Context(), account, req)
	if err != nil {
		// Persistence failure: the trade was rolled back, tell the caller
		// nothing changed without leaking store internals.
		s.logger.Error("Trade execution failed", zap.String("api_key", account.APIKey), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "trade could not be executed")
		return
	}
	if !outcome.Success {
		s.writeJSON(w, http.StatusBadRequest, outcome)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := s.authenticateKeyOnly(w, r)
	if !ok {
		return
	}
	positions, err := s.stores.Positions.List(account.APIKey, r.URL.Query().Get("stock"))
	if err != nil {
		s.logger.Error("Failed to get portfolio", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to get portfolio")
		return
	}
	if positions == nil {
		positions = []models.Position{}
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) transactionHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := s.authenticateKeyOnly(w, r)
	if !ok {
		return
	}

	filter := store.LedgerFilter{
		Stock: r.URL.Query().Get("stock"),
		Side:  r.URL.Query().Get("type"),
	}
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "start must be RFC3339")
			return
		}
		filter.Start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "end must be RFC3339")
			return
		}
		filter.End = t
	}

	trades, err := s.stores.Ledger.Query(account.APIKey, filter)
	if err != nil {
		s.logger.Error("Failed to get transactions", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to get transactions")
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

// DashboardRow is one participant on the team dashboard.
type DashboardRow struct {
	Name    string `json:"name"`
	Team    string `json:"team"`
	Balance string `json:"balance"`
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	team := r.Header.Get(headerTeam)
	if team == "" {
		s.writeError(w, http.StatusBadRequest, "team header is required")
		return
	}
	accounts, err := s.stores.Accounts.ByTeam(team)
	if err != nil {
		s.logger.Error("Failed to get dashboard", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to get dashboard")
		return
	}
	rows := make([]DashboardRow, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, DashboardRow{Name: a.Name, Team: a.Team, Balance: a.Balance.String()})
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

func (s *Server) dbHealthHandler(w http.ResponseWriter, r *http.Request) {
	// Any store round-trip proves the database is reachable.
	if _, err := s.stores.Accounts.ByTeam("healthcheck"); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "database connection failed",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "database connected"})
}

// authenticate requires both a valid API key and a live session token.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	account, err := s.auth.Validate(r.Header.Get(headerAPIKey), r.Header.Get(headerToken))
	if err != nil {
		s.authError(w, err)
		return nil, false
	}
	return account, true
}

// authenticateKeyOnly gates the read-only reporting endpoints, which the
// original dashboard exposed on API key alone.
func (s *Server) authenticateKeyOnly(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	account, err := s.stores.Accounts.Get(r.Header.Get(headerAPIKey))
	if err != nil {
		s.authError(w, err)
		return nil, false
	}
	return account, true
}
