package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/identity"
	"github.com/provenant/backend/internal/domain/shared"
	"github.com/provenant/backend/internal/infrastructure/auth"
	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/provenant/backend/internal/infrastructure/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockUserRepository is a mock implementation of identity.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *identity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *identity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindByTenantCode(ctx context.Context, tenantCode string) (*identity.User, error) {
	args := m.Called(ctx, tenantCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindAdminsWithTenant(ctx context.Context) ([]*identity.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*identity.User), args.Error(1)
}

func (m *MockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) ExistsByTenantCode(ctx context.Context, tenantCode string) (bool, error) {
	args := m.Called(ctx, tenantCode)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) FindAll(ctx context.Context, filter identity.UserFilter) ([]*identity.User, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*identity.User), args.Get(1).(int64), args.Error(2)
}

func (m *MockUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserRepository) MarkDatabaseReady(ctx context.Context, tenantCode string) error {
	args := m.Called(ctx, tenantCode)
	return args.Error(0)
}

// MockPublisher is a mock implementation of queue.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, message any) error {
	args := m.Called(ctx, topic, message)
	return args.Error(0)
}

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                 "test-secret-at-least-32-characters!!",
		Issuer:                 "provenant-test",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: 24 * time.Hour,
	})
}

func newTestAuthService(repo *MockUserRepository, pub *MockPublisher) *AuthService {
	return NewAuthService(repo, newTestJWTService(), pub, zap.NewNop())
}

func TestRegisterCustomer(t *testing.T) {
	t.Run("creates customer account", func(t *testing.T) {
		repo := new(MockUserRepository)
		pub := new(MockPublisher)
		svc := newTestAuthService(repo, pub)

		repo.On("ExistsByEmail", mock.Anything, "jo@example.com").Return(false, nil)
		repo.On("Create", mock.Anything, mock.AnythingOfType("*identity.User")).Return(nil)

		result, err := svc.RegisterCustomer(context.Background(), RegisterCustomerInput{
			Email:    "jo@example.com",
			Name:     "Jo",
			Password: "password123",
		})
		require.NoError(t, err)
		assert.Equal(t, "jo@example.com", result.User.Email)
		assert.Equal(t, "customer", result.User.Role)
		assert.Empty(t, result.User.TenantCode)
		repo.AssertExpectations(t)
		pub.AssertNotCalled(t, "Publish")
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		repo := new(MockUserRepository)
		svc := newTestAuthService(repo, new(MockPublisher))

		repo.On("ExistsByEmail", mock.Anything, "jo@example.com").Return(true, nil)

		_, err := svc.RegisterCustomer(context.Background(), RegisterCustomerInput{
			Email:    "jo@example.com",
			Name:     "Jo",
			Password: "password123",
		})
		require.Error(t, err)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "EMAIL_TAKEN", domainErr.Code)
	})
}

func TestRegisterAdmin(t *testing.T) {
	input := RegisterAdminInput{
		Email:      "owner@acme.com",
		Name:       "Acme Owner",
		Password:   "password123",
		TenantCode: "ACME",
	}

	t.Run("creates admin and enqueues provisioning", func(t *testing.T) {
		repo := new(MockUserRepository)
		pub := new(MockPublisher)
		svc := newTestAuthService(repo, pub)

		repo.On("ExistsByEmail", mock.Anything, "owner@acme.com").Return(false, nil)
		repo.On("ExistsByTenantCode", mock.Anything, "acme").Return(false, nil)
		repo.On("Create", mock.Anything, mock.AnythingOfType("*identity.User")).Return(nil)
		pub.On("Publish", mock.Anything, queue.TopicTenantDatabaseCreation,
			queue.TenantDatabaseCreationMessage{TenantCode: "acme"}).Return(nil)

		result, err := svc.RegisterAdmin(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, "admin", result.User.Role)
		assert.Equal(t, "acme", result.User.TenantCode)
		assert.False(t, result.User.DatabaseReady)
		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("rejects taken tenant code", func(t *testing.T) {
		repo := new(MockUserRepository)
		pub := new(MockPublisher)
		svc := newTestAuthService(repo, pub)

		repo.On("ExistsByEmail", mock.Anything, "owner@acme.com").Return(false, nil)
		repo.On("ExistsByTenantCode", mock.Anything, "acme").Return(true, nil)

		_, err := svc.RegisterAdmin(context.Background(), input)
		require.ErrorIs(t, err, shared.ErrTenantConflict)
		pub.AssertNotCalled(t, "Publish")
	})

	t.Run("maps tenant code insert race to tenant conflict", func(t *testing.T) {
		repo := new(MockUserRepository)
		pub := new(MockPublisher)
		svc := newTestAuthService(repo, pub)

		repo.On("ExistsByEmail", mock.Anything, "owner@acme.com").Return(false, nil)
		repo.On("ExistsByTenantCode", mock.Anything, "acme").Return(false, nil)
		repo.On("Create", mock.Anything, mock.Anything).Return(shared.ErrTenantConflict)

		_, err := svc.RegisterAdmin(context.Background(), input)
		require.ErrorIs(t, err, shared.ErrTenantConflict)
		pub.AssertNotCalled(t, "Publish")
	})

	t.Run("maps email insert race to EMAIL_TAKEN", func(t *testing.T) {
		repo := new(MockUserRepository)
		pub := new(MockPublisher)
		svc := newTestAuthService(repo, pub)

		repo.On("ExistsByEmail", mock.Anything, "owner@acme.com").Return(false, nil)
		repo.On("ExistsByTenantCode", mock.Anything, "acme").Return(false, nil)
		repo.On("Create", mock.Anything, mock.Anything).Return(shared.ErrAlreadyExists)

		_, err := svc.RegisterAdmin(context.Background(), input)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "EMAIL_TAKEN", domainErr.Code)
		pub.AssertNotCalled(t, "Publish")
	})

	t.Run("survives lost publish", func(t *testing.T) {
		repo := new(MockUserRepository)
		pub := new(MockPublisher)
		svc := newTestAuthService(repo, pub)

		repo.On("ExistsByEmail", mock.Anything, "owner@acme.com").Return(false, nil)
		repo.On("ExistsByTenantCode", mock.Anything, "acme").Return(false, nil)
		repo.On("Create", mock.Anything, mock.Anything).Return(nil)
		pub.On("Publish", mock.Anything, queue.TopicTenantDatabaseCreation, mock.Anything).
			Return(errors.New("redis down"))

		result, err := svc.RegisterAdmin(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, "acme", result.User.TenantCode)
	})
}

func TestLogin(t *testing.T) {
	user, err := identity.NewAdmin("owner@acme.com", "Acme Owner", "password123", "acme")
	require.NoError(t, err)

	t.Run("returns tokens with tenant claim", func(t *testing.T) {
		repo := new(MockUserRepository)
		svc := newTestAuthService(repo, new(MockPublisher))

		repo.On("FindByEmail", mock.Anything, "owner@acme.com").Return(user, nil)

		result, err := svc.Login(context.Background(), LoginInput{
			Email:    "owner@acme.com",
			Password: "password123",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
		assert.Equal(t, "Bearer", result.TokenType)

		claims, err := newTestJWTService().ValidateAccessToken(result.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "acme", claims.TenantCode)
		assert.Equal(t, "admin", claims.Role)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		repo := new(MockUserRepository)
		svc := newTestAuthService(repo, new(MockPublisher))

		repo.On("FindByEmail", mock.Anything, "owner@acme.com").Return(user, nil)

		_, err := svc.Login(context.Background(), LoginInput{
			Email:    "owner@acme.com",
			Password: "nope",
		})
		require.Error(t, err)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_CREDENTIALS", domainErr.Code)
	})

	t.Run("unknown email reads like wrong password", func(t *testing.T) {
		repo := new(MockUserRepository)
		svc := newTestAuthService(repo, new(MockPublisher))

		repo.On("FindByEmail", mock.Anything, "ghost@example.com").Return(nil, shared.ErrNotFound)

		_, err := svc.Login(context.Background(), LoginInput{
			Email:    "ghost@example.com",
			Password: "password123",
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_CREDENTIALS", domainErr.Code)
	})
}

func TestRefreshToken(t *testing.T) {
	user, err := identity.NewCustomer("jo@example.com", "Jo", "password123")
	require.NoError(t, err)

	repo := new(MockUserRepository)
	svc := newTestAuthService(repo, new(MockPublisher))

	pair, err := newTestJWTService().GenerateTokenPair(auth.GenerateTokenInput{
		UserID: user.ID,
		Email:  user.Email,
		Role:   string(user.Role),
	})
	require.NoError(t, err)

	t.Run("issues fresh pair", func(t *testing.T) {
		repo.On("FindByID", mock.Anything, user.ID).Return(user, nil).Once()

		result, err := svc.RefreshToken(context.Background(), RefreshTokenInput{
			RefreshToken: pair.RefreshToken,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.AccessToken)
	})

	t.Run("rejects access token used as refresh token", func(t *testing.T) {
		_, err := svc.RefreshToken(context.Background(), RefreshTokenInput{
			RefreshToken: pair.AccessToken,
		})
		require.Error(t, err)
	})
}

func TestListUsers(t *testing.T) {
	admin, err := identity.NewAdmin("owner@acme.com", "Acme Owner", "password123", "acme")
	require.NoError(t, err)
	customer, err := identity.NewCustomer("jo@example.com", "Jo", "password123")
	require.NoError(t, err)

	t.Run("pages through accounts", func(t *testing.T) {
		repo := new(MockUserRepository)
		svc := newTestAuthService(repo, new(MockPublisher))

		repo.On("FindAll", mock.Anything, mock.MatchedBy(func(f identity.UserFilter) bool {
			return f.Role == nil && f.Page == 2 && f.PageSize == 10
		})).Return([]*identity.User{admin, customer}, int64(12), nil)

		result, err := svc.ListUsers(context.Background(), ListUsersInput{Page: 2, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(12), result.Total)
		assert.Len(t, result.Users, 2)
		assert.Equal(t, 2, result.Page)
	})

	t.Run("filters by role", func(t *testing.T) {
		repo := new(MockUserRepository)
		svc := newTestAuthService(repo, new(MockPublisher))

		repo.On("FindAll", mock.Anything, mock.MatchedBy(func(f identity.UserFilter) bool {
			return f.Role != nil && *f.Role == identity.RoleAdmin
		})).Return([]*identity.User{admin}, int64(1), nil)

		result, err := svc.ListUsers(context.Background(), ListUsersInput{Role: "admin"})
		require.NoError(t, err)
		require.Len(t, result.Users, 1)
		assert.Equal(t, "acme", result.Users[0].TenantCode)
	})
}

func TestDeleteUser(t *testing.T) {
	t.Run("deletes an existing account", func(t *testing.T) {
		repo := new(MockUserRepository)
		svc := newTestAuthService(repo, new(MockPublisher))

		id := uuid.New()
		repo.On("Delete", mock.Anything, id).Return(nil)

		require.NoError(t, svc.DeleteUser(context.Background(), id))
		repo.AssertExpectations(t)
	})

	t.Run("maps missing account to USER_NOT_FOUND", func(t *testing.T) {
		repo := new(MockUserRepository)
		svc := newTestAuthService(repo, new(MockPublisher))

		id := uuid.New()
		repo.On("Delete", mock.Anything, id).Return(shared.ErrNotFound)

		err := svc.DeleteUser(context.Background(), id)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "USER_NOT_FOUND", domainErr.Code)
	})
}
