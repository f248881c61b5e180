// Package server exposes the trading service over HTTP. It is thin glue:
// request parsing, auth gating, and mapping engine outcomes to status codes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"stock-sim-go/internal/auth"
	"stock-sim-go/internal/config"
	"stock-sim-go/internal/engine"
	"stock-sim-go/internal/store"
)

// Server is the HTTP front for the trading service.
type Server struct {
	server *http.Server
	logger *zap.Logger

	auth   *auth.Authenticator
	engine *engine.Engine
	stores *store.Stores

	// Per-API-key limiter for trade submissions.
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	burst     int
}

// New creates a Server wired to its collaborators.
func New(cfg config.Server, logger *zap.Logger, authenticator *auth.Authenticator, eng *engine.Engine, stores *store.Stores) *Server {
	s := &Server{
		logger:    logger.Named("api-server"),
		auth:      authenticator,
		engine:    eng,
		stores:    stores,
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rate.Limit(cfg.RateLimit),
		burst:     cfg.RateLimitBurst,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/authenticate", s.authenticateHandler)
	mux.HandleFunc("/user", s.userHandler)
	mux.HandleFunc("/trade", s.tradeHandler)
	mux.HandleFunc("/api/portfolio", s.portfolioHandler)
	mux.HandleFunc("/api/transaction", s.transactionHandler)
	mux.HandleFunc("/api/dashboard", s.dashboardHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/dbhealth", s.dbHealthHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

// limiter returns the rate limiter for an API key, creating it on first use.
func (s *Server) limiter(apiKey string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[apiKey]
	if !ok {
		l = rate.NewLimiter(s.rateLimit, s.burst)
		s.limiters[apiKey] = l
	}
	return l
}
