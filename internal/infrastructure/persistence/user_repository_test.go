package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/provenant/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockGormDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func TestGormUserRepository_FindByEmail(t *testing.T) {
	t.Run("finds existing user", func(t *testing.T) {
		gormDB, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		repo := NewGormUserRepository(gormDB)

		userID := uuid.New()
		rows := sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "role", "tenant_code", "database_ready"}).
			AddRow(userID, "owner@acme.com", "Owner", "hash", "admin", "acme", true)

		mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1 ORDER BY .* LIMIT .*`).
			WithArgs("owner@acme.com", 1).
			WillReturnRows(rows)

		user, err := repo.FindByEmail(context.Background(), "Owner@Acme.com")

		require.NoError(t, err)
		assert.Equal(t, userID, user.ID)
		require.NotNil(t, user.TenantCode)
		assert.Equal(t, "acme", *user.TenantCode)
		assert.True(t, user.DatabaseReady)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("translates record not found", func(t *testing.T) {
		gormDB, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		repo := NewGormUserRepository(gormDB)

		mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1 ORDER BY .* LIMIT .*`).
			WithArgs("missing@example.com", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		user, err := repo.FindByEmail(context.Background(), "missing@example.com")

		assert.Nil(t, user)
		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormUserRepository_ExistsByTenantCode(t *testing.T) {
	gormDB, mock, mockDB := newMockGormDB(t)
	defer mockDB.Close()
	repo := NewGormUserRepository(gormDB)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users" WHERE tenant_code = \$1`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.ExistsByTenantCode(context.Background(), "ACME")

	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUserRepository_MarkDatabaseReady(t *testing.T) {
	t.Run("updates the owning admin", func(t *testing.T) {
		gormDB, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		repo := NewGormUserRepository(gormDB)

		mock.ExpectExec(`UPDATE "users" SET .* WHERE tenant_code = \$\d`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.MarkDatabaseReady(context.Background(), "acme"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports missing tenant", func(t *testing.T) {
		gormDB, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		repo := NewGormUserRepository(gormDB)

		mock.ExpectExec(`UPDATE "users" SET .* WHERE tenant_code = \$\d`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkDatabaseReady(context.Background(), "ghost")
		assert.Equal(t, shared.ErrNotFound, err)
	})
}

func TestClassifyUserInsertError(t *testing.T) {
	t.Run("tenant code index maps to tenant conflict", func(t *testing.T) {
		err := classifyUserInsertError(&pq.Error{Code: "23505", Constraint: "idx_users_tenant_code"})
		assert.ErrorIs(t, err, shared.ErrTenantConflict)
	})

	t.Run("email index maps to already exists", func(t *testing.T) {
		err := classifyUserInsertError(&pq.Error{Code: "23505", Constraint: "idx_users_email"})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		cause := errors.New("connection reset")
		assert.Equal(t, cause, classifyUserInsertError(cause))
	})
}
