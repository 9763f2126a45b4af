package provisioning

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	// Registers the postgres driver for database/sql
	_ "github.com/lib/pq"

	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"github.com/provenant/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// Database names are used as raw identifiers in CREATE DATABASE, so
// only a safe subset is accepted.
var validDBName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Provisioner creates tenant databases and replays the tenant schema
// into them. CREATE DATABASE runs on the maintenance database; if that
// connection fails the default database is used instead.
type Provisioner struct {
	dbCfg    *config.DatabaseConfig
	provCfg  config.ProvisioningConfig
	replayer *Replayer
	log      *zap.Logger
}

// NewProvisioner creates a Provisioner
func NewProvisioner(dbCfg *config.DatabaseConfig, provCfg config.ProvisioningConfig, log *zap.Logger) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provisioner{
		dbCfg:    dbCfg,
		provCfg:  provCfg,
		replayer: NewReplayer(provCfg.ExcludedTables, provCfg.StatementTO, log),
		log:      log.Named("provisioner"),
	}
}

// Replayer exposes the migration replayer for callers that migrate
// already existing tenant databases
func (p *Provisioner) Replayer() *Replayer {
	return p.replayer
}

// DatabaseName returns the database name for a tenant code
func (p *Provisioner) DatabaseName(tenantCode string) string {
	return p.dbCfg.TenantPrefix + strings.ToLower(tenantCode)
}

// Provision creates the tenant database and applies all migrations.
// Provisioning is idempotent: an existing database is kept and only
// missing migrations are replayed. When the database was created by
// this call and the replay fails, the database is dropped again so the
// next attempt starts clean.
func (p *Provisioner) Provision(ctx context.Context, tenantCode string) error {
	dbName := p.DatabaseName(tenantCode)
	if !validDBName.MatchString(dbName) {
		return fmt.Errorf("invalid tenant database name %q", dbName)
	}

	log := logger.WithLogger(ctx, p.log).With(
		zap.String("tenant_code", tenantCode),
		zap.String("database", dbName))

	created, err := p.createDatabase(ctx, dbName)
	if err != nil {
		return err
	}
	if created {
		log.Info("created tenant database")
	} else {
		log.Info("tenant database already exists, replaying pending migrations")
	}

	tenantDB, err := sql.Open("postgres", p.dbCfg.DSNFor(dbName))
	if err != nil {
		return fmt.Errorf("failed to open tenant database %q: %w", dbName, err)
	}
	defer tenantDB.Close()

	if err := tenantDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach tenant database %q: %w", dbName, err)
	}

	if err := p.replayer.Replay(ctx, tenantDB, p.provCfg.MigrationsDir); err != nil {
		if created {
			tenantDB.Close()
			p.dropDatabase(ctx, dbName)
		}
		return fmt.Errorf("failed to provision tenant %q: %w", tenantCode, err)
	}

	log.Info("tenant database provisioned")
	return nil
}

// MigrateExisting replays pending migrations into an already
// provisioned tenant database without touching CREATE DATABASE
func (p *Provisioner) MigrateExisting(ctx context.Context, tenantCode string) error {
	dbName := p.DatabaseName(tenantCode)
	if !validDBName.MatchString(dbName) {
		return fmt.Errorf("invalid tenant database name %q", dbName)
	}

	tenantDB, err := sql.Open("postgres", p.dbCfg.DSNFor(dbName))
	if err != nil {
		return fmt.Errorf("failed to open tenant database %q: %w", dbName, err)
	}
	defer tenantDB.Close()

	if err := tenantDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach tenant database %q: %w", dbName, err)
	}

	return p.replayer.Replay(ctx, tenantDB, p.provCfg.MigrationsDir)
}

// createDatabase issues CREATE DATABASE and reports whether this call
// created it. An existing database is not an error.
func (p *Provisioner) createDatabase(ctx context.Context, dbName string) (bool, error) {
	admin, err := p.adminConnection(ctx)
	if err != nil {
		return false, err
	}
	defer admin.Close()

	if _, err := admin.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE %q`, dbName)); err != nil {
		if persistence.IsDuplicateDatabase(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create database %q: %w", dbName, err)
	}
	return true, nil
}

// dropDatabase removes a half-provisioned database. Failures are
// logged, never returned, so they cannot mask the original error.
func (p *Provisioner) dropDatabase(ctx context.Context, dbName string) {
	admin, err := p.adminConnection(ctx)
	if err != nil {
		p.log.Error("could not connect to drop half-provisioned database",
			zap.String("database", dbName), zap.Error(err))
		return
	}
	defer admin.Close()

	if _, err := admin.ExecContext(ctx, fmt.Sprintf(`DROP DATABASE IF EXISTS %q`, dbName)); err != nil {
		p.log.Error("failed to drop half-provisioned database",
			zap.String("database", dbName), zap.Error(err))
		return
	}

	p.log.Warn("dropped half-provisioned database", zap.String("database", dbName))
}

// adminConnection connects to the maintenance database, falling back to
// the default database when the maintenance one is unreachable
func (p *Provisioner) adminConnection(ctx context.Context) (*sql.DB, error) {
	admin, err := sql.Open("postgres", p.dbCfg.MaintenanceDSN())
	if err == nil {
		if pingErr := admin.PingContext(ctx); pingErr == nil {
			return admin, nil
		}
		admin.Close()
	}

	p.log.Warn("maintenance database unreachable, falling back to default database")

	fallback, err := sql.Open("postgres", p.dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open admin connection: %w", err)
	}
	if err := fallback.PingContext(ctx); err != nil {
		fallback.Close()
		return nil, fmt.Errorf("failed to reach database server: %w", err)
	}
	return fallback, nil
}
