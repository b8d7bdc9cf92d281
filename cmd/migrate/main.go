package main

import (
	"os"

	"report_wizard/internal/config"
	"report_wizard/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := config.NewLogger(cfg, os.Stdout)

	db, err := database.NewDatabase(database.FromAppConfig(cfg))
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	if err := database.AutoMigrate(db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	logger.Info("Migrations completed successfully")
}
