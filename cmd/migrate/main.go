package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"github.com/provenant/backend/internal/infrastructure/migration"
	"github.com/provenant/backend/internal/infrastructure/persistence"
	"github.com/provenant/backend/internal/infrastructure/provisioning"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

func main() {
	var (
		migrationsPath string
		logLevel       string
	)

	flag.StringVar(&migrationsPath, "path", "", "Path to migrations directory (default: ./migrations)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	if migrationsPath == "" {
		migrationsPath = defaultMigrationsPath
	}
	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		log.Fatal("Failed to get absolute path", zap.Error(err))
	}
	migrationsPath = absPath

	log.Info("Migration CLI started",
		zap.String("command", command),
		zap.String("migrations_path", migrationsPath),
	)

	// Tenant replay has its own bookkeeping and does not go through
	// golang-migrate
	if command == "tenants" {
		migrateTenants(cfg, log)
		return
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database", zap.Error(err))
	}

	m, err := migration.New(db, migrationsPath, log)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			log.Fatal("Migration up failed", zap.Error(err))
		}

	case "down":
		if err := m.Down(); err != nil {
			log.Fatal("Migration down failed", zap.Error(err))
		}

	case "step":
		if len(args) < 2 {
			log.Fatal("Step count required. Usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatal("Invalid step count", zap.String("value", args[1]))
		}
		if err := m.Steps(n); err != nil {
			log.Fatal("Migration step failed", zap.Error(err))
		}

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatal("Failed to get version", zap.Error(err))
		}
		if version == 0 {
			log.Info("No migrations applied")
		} else {
			log.Info("Current migration version",
				zap.Uint("version", version),
				zap.Bool("dirty", dirty),
			)
		}

	case "force":
		if len(args) < 2 {
			log.Fatal("Version required. Usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatal("Invalid version number", zap.String("value", args[1]))
		}
		if err := m.Force(version); err != nil {
			log.Fatal("Migration force failed", zap.Error(err))
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

// migrateTenants replays pending tenant migrations on every
// provisioned tenant database
func migrateTenants(cfg *config.Config, log *zap.Logger) {
	db, err := persistence.NewDatabase(&cfg.Database, persistence.OptionsFromConfig(&cfg.Database))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	userRepo := persistence.NewGormUserRepository(db.DB)
	provisioner := provisioning.NewProvisioner(&cfg.Database, cfg.Provisioning, log)

	ctx := context.Background()
	admins, err := userRepo.FindAdminsWithTenant(ctx)
	if err != nil {
		log.Fatal("Failed to list tenants", zap.Error(err))
	}

	failures := 0
	for _, admin := range admins {
		if !admin.DatabaseReady || admin.TenantCode == nil {
			continue
		}
		code := *admin.TenantCode
		if err := provisioner.MigrateExisting(ctx, code); err != nil {
			failures++
			log.Error("Tenant migration failed",
				zap.String("tenant_code", code),
				zap.Error(err),
			)
			continue
		}
		log.Info("Tenant migrated", zap.String("tenant_code", code))
	}

	if failures > 0 {
		log.Fatal("Tenant migration finished with failures", zap.Int("failed", failures))
	}
	log.Info("All tenant databases migrated")
}

func printUsage() {
	fmt.Println(`Usage: migrate [flags] <command> [args]

Commands:
  up               Apply all pending default-database migrations
  down             Roll back all default-database migrations
  step <n>         Apply n migrations (negative rolls back)
  version          Print the current migration version
  force <version>  Set the version without running migrations
  tenants          Replay pending migrations on every provisioned tenant database

Flags:
  -path <dir>       Migrations directory (default: ./migrations)
  -log-level <lvl>  Log level (debug, info, warn, error)`)
}
