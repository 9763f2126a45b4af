package integration

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/provenant/backend/internal/domain/catalog"
	"github.com/provenant/backend/internal/domain/identity"
	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/provenant/backend/internal/infrastructure/persistence"
	"github.com/provenant/backend/internal/infrastructure/persistence/tenant"
	"github.com/provenant/backend/internal/infrastructure/provisioning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newProvisioner(t *testing.T, tdb *TestDB) *provisioning.Provisioner {
	t.Helper()
	return provisioning.NewProvisioner(&tdb.Config, config.ProvisioningConfig{
		MigrationsDir:  findTenantMigrationsPath(t),
		ExcludedTables: []string{"users"},
		StatementTO:    30 * time.Second,
	}, zap.NewNop())
}

func openTenantDB(t *testing.T, tdb *TestDB, dbName string) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", tdb.Config.DSNFor(dbName))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
		table).Scan(&exists)
	require.NoError(t, err)
	return exists
}

// The full store-opening path: an admin registers with a tenant code,
// the worker provisions the derived database, the schema replay skips
// default-database tables, and scoped reads land in the fresh store.
func TestTenantProvisioningEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewTestDB(t)
	ctx := context.Background()

	userRepo := persistence.NewGormUserRepository(tdb.DB)

	admin, err := identity.NewAdmin("owner@acme.test", "ACME Owner", "password123", "ACME")
	require.NoError(t, err)
	require.NoError(t, userRepo.Create(ctx, admin))
	require.False(t, admin.DatabaseReady)

	provisioner := newProvisioner(t, tdb)
	require.Equal(t, "provenant_acme", provisioner.DatabaseName("ACME"))

	require.NoError(t, provisioner.Provision(ctx, "acme"))
	require.NoError(t, userRepo.MarkDatabaseReady(ctx, "acme"))

	tenantDB := openTenantDB(t, tdb, "provenant_acme")

	t.Run("migrations applied in order", func(t *testing.T) {
		rows, err := tenantDB.Query(
			`SELECT migration_name, finished_at IS NOT NULL FROM _schema_migrations ORDER BY started_at`)
		require.NoError(t, err)
		defer rows.Close()

		var names []string
		for rows.Next() {
			var name string
			var finished bool
			require.NoError(t, rows.Scan(&name, &finished))
			assert.True(t, finished, "migration %s should be finished", name)
			names = append(names, name)
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, []string{"0001_init", "0002_orders", "0003_indexes"}, names)
	})

	t.Run("store tables exist, account tables do not", func(t *testing.T) {
		assert.True(t, tableExists(t, tenantDB, "products"))
		assert.True(t, tableExists(t, tenantDB, "orders"))
		assert.True(t, tableExists(t, tenantDB, "order_items"))
		assert.False(t, tableExists(t, tenantDB, "users"))
	})

	t.Run("provisioning is idempotent", func(t *testing.T) {
		require.NoError(t, provisioner.Provision(ctx, "acme"))

		var count int
		require.NoError(t, tenantDB.QueryRow(
			`SELECT count(*) FROM _schema_migrations WHERE rolled_back_at IS NULL`).Scan(&count))
		assert.Equal(t, 3, count)
	})

	t.Run("ready flag flipped on the admin", func(t *testing.T) {
		reloaded, err := userRepo.FindByTenantCode(ctx, "acme")
		require.NoError(t, err)
		assert.True(t, reloaded.DatabaseReady)
	})

	t.Run("scoped reads hit the fresh store", func(t *testing.T) {
		defaultDB, err := persistence.Open(tdb.Config.DSN(), persistence.Options{})
		require.NoError(t, err)

		registry := tenant.NewRegistry(defaultDB, tdb.Config.TenantPrefix, persistence.TenantOpener(persistence.Options{}), zap.NewNop())
		defer registry.Close()

		productRepo := persistence.NewGormProductRepository(tenant.NewScoped(registry))

		scopedCtx := tenant.WithCode(ctx, "acme")
		products, total, err := productRepo.FindAll(scopedCtx, catalog.NewProductFilter())
		require.NoError(t, err)
		assert.Empty(t, products)
		assert.Zero(t, total)
	})

	t.Run("unprovisioned store is recognizable", func(t *testing.T) {
		defaultDB, err := persistence.Open(tdb.Config.DSN(), persistence.Options{})
		require.NoError(t, err)

		registry := tenant.NewRegistry(defaultDB, tdb.Config.TenantPrefix, persistence.TenantOpener(persistence.Options{}), zap.NewNop())
		defer registry.Close()

		productRepo := persistence.NewGormProductRepository(tenant.NewScoped(registry))

		scopedCtx := tenant.WithCode(ctx, "ghost")
		_, _, err = productRepo.FindAll(scopedCtx, catalog.NewProductFilter())
		require.Error(t, err)
		assert.True(t, persistence.IsDatabaseNotExist(err))
	})
}

func writeMigration(t *testing.T, dir, name, script string) {
	t.Helper()
	migDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(migDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(migDir, "migration.sql"), []byte(script), 0o644))
}

// A failed first replay must not leave a half-migrated database behind.
func TestProvisionFailedFirstReplay(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewTestDB(t)
	ctx := context.Background()

	brokenDir := t.TempDir()
	writeMigration(t, brokenDir, "0001_init", "CREATE TABLE widgets (id INT);")
	writeMigration(t, brokenDir, "0002_broken", "CREATE TABLE nope (id")

	broken := provisioning.NewProvisioner(&tdb.Config, config.ProvisioningConfig{
		MigrationsDir:  brokenDir,
		ExcludedTables: []string{"users"},
		StatementTO:    30 * time.Second,
	}, zap.NewNop())

	t.Run("freshly created database is dropped", func(t *testing.T) {
		require.Error(t, broken.Provision(ctx, "hexley"))

		db := openTenantDB(t, tdb, "provenant_hexley")
		err := db.Ping()
		require.Error(t, err)
		assert.True(t, persistence.IsDatabaseNotExist(err))
	})

	t.Run("re-provisioning after the drop starts clean", func(t *testing.T) {
		require.NoError(t, newProvisioner(t, tdb).Provision(ctx, "hexley"))

		db := openTenantDB(t, tdb, "provenant_hexley")
		assert.True(t, tableExists(t, db, "products"))
		assert.False(t, tableExists(t, db, "widgets"))
	})

	t.Run("pre-existing database survives a failed replay", func(t *testing.T) {
		require.NoError(t, tdb.DB.Exec(`CREATE DATABASE provenant_initech`).Error)

		require.Error(t, broken.Provision(ctx, "initech"))

		db := openTenantDB(t, tdb, "provenant_initech")
		require.NoError(t, db.Ping())
		assert.True(t, tableExists(t, db, "widgets"), "statements before the failure stay applied")
	})
}

// MigrateExisting replays only what is pending, so repeated runs are
// safe for the migrate-all recovery path.
func TestMigrateExistingTenant(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewTestDB(t)
	ctx := context.Background()

	provisioner := newProvisioner(t, tdb)
	require.NoError(t, provisioner.Provision(ctx, "globex"))

	require.NoError(t, provisioner.MigrateExisting(ctx, "globex"))

	tenantDB := openTenantDB(t, tdb, "provenant_globex")
	var count int
	require.NoError(t, tenantDB.QueryRow(
		`SELECT count(*) FROM _schema_migrations WHERE rolled_back_at IS NULL`).Scan(&count))
	assert.Equal(t, 3, count)
}
