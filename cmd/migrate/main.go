package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"wabadash/internal/config"
	"wabadash/internal/constants"
	"wabadash/internal/database"
	"wabadash/internal/database/postgres"
	"wabadash/internal/migrations"
	"wabadash/internal/models"

	"github.com/sirupsen/logrus"
)

const migrateTimeout = 2 * time.Minute

func main() {
	configPath := flag.String("config", constants.DefaultConfigPath, "Path to configuration file")
	list := flag.Bool("list", false, "List the embedded migrations for the configured driver and exit")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	dialect := dialectFor(cfg.Database)
	if *list {
		if err := printMigrations(dialect); err != nil {
			logger.WithError(err).Fatal("Failed to load migrations")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	if err := migrate(ctx, cfg, logger); err != nil {
		logger.WithError(err).WithField("driver", dialect).Fatal("Migration failed")
	}
	logger.WithField("driver", dialect).Info("Database schema is up to date")
}

// migrate opens the configured store; both stores apply pending migrations
// when they are opened
func migrate(ctx context.Context, cfg *models.Config, logger *logrus.Logger) error {
	encryptor, err := database.NewEncryptor(cfg.Database.EncryptionSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	var store database.Store
	switch dialectFor(cfg.Database) {
	case migrations.DialectPostgres:
		store, err = postgres.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns, encryptor, logger)
	default:
		store, err = database.New(ctx, cfg.Database.Path, encryptor)
	}
	if err != nil {
		return err
	}
	return store.Close()
}

func dialectFor(cfg models.DatabaseConfig) string {
	if cfg.Driver == "postgres" {
		return migrations.DialectPostgres
	}
	return migrations.DialectSQLite
}

func printMigrations(dialect string) error {
	all, err := migrations.Load(dialect)
	if err != nil {
		return err
	}
	for _, m := range all {
		fmt.Fprintf(os.Stdout, "%03d  %s\n", m.Version, m.Name)
	}
	return nil
}
