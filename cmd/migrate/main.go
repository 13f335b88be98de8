package main

import (
	"fmt"
	"os"

	"github.com/parkease/parkease/internal/config"
	"github.com/parkease/parkease/internal/logging"
	"github.com/parkease/parkease/internal/migrate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL must be set to run migrations")
		os.Exit(1)
	}

	db, err := migrate.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}

	if err := migrate.Run(db); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migration completed")
}
