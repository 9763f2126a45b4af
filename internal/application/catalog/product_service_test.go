package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/catalog"
	"github.com/provenant/backend/internal/domain/shared"
	"github.com/provenant/backend/internal/infrastructure/cache"
	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockProductRepository is a mock implementation of catalog.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) Create(ctx context.Context, product *catalog.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) Update(ctx context.Context, product *catalog.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) FindAll(ctx context.Context, filter catalog.ProductFilter) ([]*catalog.Product, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*catalog.Product), args.Get(1).(int64), args.Error(2)
}

func newTestProductService(repo *MockProductRepository) *ProductService {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	store := cache.NewStore(client, config.CacheConfig{Enabled: false}, nil)
	return NewProductService(repo, store, zap.NewNop())
}

func TestCreateProduct(t *testing.T) {
	t.Run("creates product", func(t *testing.T) {
		repo := new(MockProductRepository)
		svc := newTestProductService(repo)

		repo.On("Create", mock.Anything, mock.AnythingOfType("*catalog.Product")).Return(nil)

		info, err := svc.CreateProduct(context.Background(), CreateProductInput{
			Name:  "Espresso Machine",
			Price: decimal.NewFromInt(499),
			Stock: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, "Espresso Machine", info.Name)
		assert.NotEqual(t, uuid.Nil, info.ID)
		repo.AssertExpectations(t)
	})

	t.Run("rejects invalid input before touching the repository", func(t *testing.T) {
		repo := new(MockProductRepository)
		svc := newTestProductService(repo)

		_, err := svc.CreateProduct(context.Background(), CreateProductInput{
			Name:  "",
			Price: decimal.NewFromInt(1),
		})
		require.Error(t, err)
		repo.AssertNotCalled(t, "Create")
	})

	t.Run("translates missing tenant database", func(t *testing.T) {
		repo := new(MockProductRepository)
		svc := newTestProductService(repo)

		repo.On("Create", mock.Anything, mock.Anything).Return(shared.ErrTenantNotProvisioned)

		_, err := svc.CreateProduct(context.Background(), CreateProductInput{
			Name:  "Grinder",
			Price: decimal.NewFromInt(89),
			Stock: 5,
		})
		require.ErrorIs(t, err, shared.ErrTenantNotProvisioned)
	})
}

func TestGetProduct(t *testing.T) {
	repo := new(MockProductRepository)
	svc := newTestProductService(repo)

	product, err := catalog.NewProduct("Grinder", "burr grinder", decimal.NewFromInt(89), 5)
	require.NoError(t, err)

	t.Run("returns product", func(t *testing.T) {
		repo.On("FindByID", mock.Anything, product.ID).Return(product, nil).Once()

		info, err := svc.GetProduct(context.Background(), product.ID)
		require.NoError(t, err)
		assert.Equal(t, product.ID, info.ID)
		assert.Equal(t, 5, info.Stock)
	})

	t.Run("not found", func(t *testing.T) {
		missing := uuid.New()
		repo.On("FindByID", mock.Anything, missing).Return(nil, shared.ErrNotFound).Once()

		_, err := svc.GetProduct(context.Background(), missing)
		require.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestListProducts(t *testing.T) {
	repo := new(MockProductRepository)
	svc := newTestProductService(repo)

	p1, err := catalog.NewProduct("Espresso Machine", "", decimal.NewFromInt(499), 10)
	require.NoError(t, err)

	t.Run("applies filter defaults", func(t *testing.T) {
		repo.On("FindAll", mock.Anything, mock.MatchedBy(func(f catalog.ProductFilter) bool {
			return f.Page == 1 && f.PageSize == 20 && f.Keyword == "espresso"
		})).Return([]*catalog.Product{p1}, int64(1), nil).Once()

		result, err := svc.ListProducts(context.Background(), ListProductsInput{Keyword: "espresso"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Total)
		require.Len(t, result.Products, 1)
		assert.Equal(t, "Espresso Machine", result.Products[0].Name)
	})

	t.Run("wraps unexpected repository failures", func(t *testing.T) {
		repo.On("FindAll", mock.Anything, mock.Anything).
			Return(nil, int64(0), errors.New("connection reset")).Once()

		_, err := svc.ListProducts(context.Background(), ListProductsInput{})
		require.Error(t, err)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INTERNAL_ERROR", domainErr.Code)
	})
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	repo := new(MockProductRepository)
	svc := newTestProductService(repo)

	product, err := catalog.NewProduct("Grinder", "", decimal.NewFromInt(89), 5)
	require.NoError(t, err)

	t.Run("updates fields", func(t *testing.T) {
		repo.On("FindByID", mock.Anything, product.ID).Return(product, nil).Once()
		repo.On("Update", mock.Anything, product).Return(nil).Once()

		info, err := svc.UpdateProduct(context.Background(), UpdateProductInput{
			ID:    product.ID,
			Name:  "Burr Grinder",
			Price: decimal.NewFromInt(99),
			Stock: 7,
		})
		require.NoError(t, err)
		assert.Equal(t, "Burr Grinder", info.Name)
		assert.Equal(t, 7, info.Stock)
	})

	t.Run("deletes", func(t *testing.T) {
		repo.On("Delete", mock.Anything, product.ID).Return(nil).Once()
		require.NoError(t, svc.DeleteProduct(context.Background(), product.ID))
	})
}
