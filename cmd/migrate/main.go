package main

import (
	"errors"
	"flag"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/joao-fontenele/orderledger/internal/logging"
)

func main() {
	_ = godotenv.Load()
	logger := logging.Must("orderledger-migrate", os.Getenv("APP_ENV"), os.Getenv("APP_VERSION"), "info")
	defer func() { _ = logger.Sync() }()

	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		logger.Fatal("usage: migrate [-steps n] <up|down|version|force VERSION>")
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Fatal("POSTGRES_URL environment variable is required")
	}

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "file://migrations"
	}

	m, err := migrate.New(migrationsPath, postgresURL)
	if err != nil {
		logger.Fatal("migrate_init_failed", zap.Error(err))
	}
	defer func() { _, _ = m.Close() }()

	switch command := args[0]; command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no pending migrations")
			return
		}
		if err != nil {
			logger.Fatal("migration_up_failed", zap.Error(err))
		}
		logger.Info("migrations applied")

	case "down":
		err = m.Steps(-*steps)
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to roll back")
			return
		}
		if err != nil {
			logger.Fatal("migration_down_failed", zap.Error(err))
		}
		logger.Info("migrations rolled back", zap.Int("steps", *steps))

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return
		}
		if err != nil {
			logger.Fatal("migration_version_failed", zap.Error(err))
		}
		logger.Info("current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))

	case "force":
		if len(args) < 2 {
			logger.Fatal("usage: migrate force VERSION")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			logger.Fatal("invalid version", zap.String("version", args[1]), zap.Error(err))
		}
		if err := m.Force(version); err != nil {
			logger.Fatal("migration_force_failed", zap.Error(err))
		}
		logger.Info("migration version forced", zap.Int("version", version))

	default:
		logger.Fatal("unknown command", zap.String("command", command))
	}
}
