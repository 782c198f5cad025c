// cmd/fprintd/migrate.go
package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fprint-service/internal/config"
	"fprint-service/internal/database"
	"fprint-service/internal/utils"
)

// runMigration applies one migration command to the configured database
func runMigration(configPath, command string, forceVersion int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer utils.CloseLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	switch command {
	case "up":
		return migrator.Up()
	case "down":
		return migrator.Down()
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		logger.Info("Schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		fmt.Printf("version %d dirty %t\n", version, dirty)
		return nil
	case "force":
		if forceVersion < 0 {
			return fmt.Errorf("--force-version is required with --migrate=force")
		}
		return migrator.Force(forceVersion)
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
}
