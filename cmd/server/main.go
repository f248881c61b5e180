package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stock-sim-go/internal/auth"
	"stock-sim-go/internal/clock"
	"stock-sim-go/internal/config"
	"stock-sim-go/internal/database"
	"stock-sim-go/internal/engine"
	"stock-sim-go/internal/logger"
	"stock-sim-go/internal/server"
	"stock-sim-go/internal/store"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Reference timezone clock
	ist, err := clock.NewIST()
	if err != nil {
		log.Fatal("Failed to load reference timezone", zap.Error(err))
	}

	// Wire stores, authenticator and the trade execution engine
	stores := store.New(db)
	txm := store.NewTxManager(db, time.Duration(cfg.Trading.TxTimeoutSeconds)*time.Second)
	authenticator := auth.New(stores.Accounts, ist, log, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
	tradeEngine := engine.New(log, ist, txm, cfg.Trading)

	apiServer := server.New(cfg.Server, log, authenticator, tradeEngine, stores)
	apiServer.Start()

	// Wait for shutdown signal
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server cleanly", zap.Error(err))
	}

	log.Info("Service has been shut down.")
}
