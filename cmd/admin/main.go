// The admin command seeds and maintains participant accounts: it creates
// accounts with a starting balance, deletes them, and resets the schema
// between simulation rounds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stock-sim-go/internal/config"
	"stock-sim-go/internal/database"
	"stock-sim-go/internal/logger"
	"stock-sim-go/internal/models"
	"stock-sim-go/internal/store"
)

func main() {
	action := flag.String("action", "", "one of: create, delete, reset")
	names := flag.String("names", "", "comma-separated participant names (create)")
	team := flag.String("team", "tester", "team to assign created participants to")
	balance := flag.Float64("balance", 100000, "starting balance for created participants")
	apiKey := flag.String("api-key", "", "API key of the participant to delete")
	flag.Parse()

	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	switch *action {
	case "create":
		if *names == "" {
			log.Fatal("create requires -names")
		}
		createAccounts(log, db, strings.Split(*names, ","), *team, *balance, cfg)
	case "delete":
		if *apiKey == "" {
			log.Fatal("delete requires -api-key")
		}
		if err := store.New(db).Accounts.Delete(*apiKey); err != nil {
			log.Fatal("Failed to delete account", zap.Error(err))
		}
		log.Info("Account deleted", zap.String("api_key", *apiKey))
	case "reset":
		if err := database.Reset(db); err != nil {
			log.Fatal("Failed to reset schema", zap.Error(err))
		}
		log.Info("Schema reset")
	default:
		log.Fatal("Unknown action", zap.String("action", *action))
	}
}

// createAccounts seeds all participants in one transaction so a partial batch
// is never left behind.
func createAccounts(log *zap.Logger, db *gorm.DB, names []string, team string, balance float64, cfg config.Config) {
	txm := store.NewTxManager(db, time.Duration(cfg.Trading.TxTimeoutSeconds)*time.Second)
	tx, err := txm.Begin(context.Background())
	if err != nil {
		log.Fatal("Failed to begin transaction", zap.Error(err))
	}
	defer tx.Rollback()

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		account := models.Account{
			APIKey:  uuid.NewString(),
			Name:    name,
			Team:    team,
			Balance: decimal.NewFromFloat(balance),
		}
		if err := tx.Accounts().Create(&account); err != nil {
			log.Fatal("Failed to create account", zap.String("name", name), zap.Error(err))
		}
		log.Info("Created account",
			zap.String("name", name),
			zap.String("api_key", account.APIKey))
	}

	if err := tx.Commit(); err != nil {
		log.Fatal("Failed to commit accounts", zap.Error(err))
	}
}
