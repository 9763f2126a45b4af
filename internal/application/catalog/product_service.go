// Package catalog implements product management against the database
// of the tenant resolved from the request context. Listings and single
// reads are cached per tenant; every mutation invalidates the affected
// entries.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/catalog"
	"github.com/provenant/backend/internal/domain/shared"
	"github.com/provenant/backend/internal/infrastructure/cache"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"github.com/provenant/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// ProductService handles product operations
type ProductService struct {
	productRepo catalog.ProductRepository
	cache       *cache.Store
	logger      *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(productRepo catalog.ProductRepository, store *cache.Store, log *zap.Logger) *ProductService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductService{
		productRepo: productRepo,
		cache:       store,
		logger:      log,
	}
}

// CreateProduct creates a product in the current tenant's catalog
func (s *ProductService) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductInfo, error) {
	product, err := catalog.NewProduct(input.Name, input.Description, input.Price, input.Stock)
	if err != nil {
		return nil, err
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, s.translate(ctx, err, "Failed to create product")
	}

	s.cache.Invalidate(ctx, cache.TargetsFor("products.create")...)

	logger.WithLogger(ctx, s.logger).Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("name", product.Name))

	info := toProductInfo(product)
	return &info, nil
}

// UpdateProduct updates a product's details
func (s *ProductService) UpdateProduct(ctx context.Context, input UpdateProductInput) (*ProductInfo, error) {
	product, err := s.productRepo.FindByID(ctx, input.ID)
	if err != nil {
		return nil, s.translate(ctx, err, "Product not found")
	}

	if err := product.Update(input.Name, input.Description, input.Price, input.Stock); err != nil {
		return nil, err
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, s.translate(ctx, err, "Failed to update product")
	}

	s.cache.Invalidate(ctx, cache.TargetsFor("products.update")...)

	info := toProductInfo(product)
	return &info, nil
}

// DeleteProduct removes a product from the catalog
func (s *ProductService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		return s.translate(ctx, err, "Failed to delete product")
	}

	s.cache.Invalidate(ctx, cache.TargetsFor("products.delete")...)

	logger.WithLogger(ctx, s.logger).Info("Product deleted", zap.String("product_id", id.String()))
	return nil
}

// GetProduct returns a single product, served from cache when possible
func (s *ProductService) GetProduct(ctx context.Context, id uuid.UUID) (*ProductInfo, error) {
	key := s.cache.Key(ctx, cache.ProductGet, map[string]any{"id": id.String()})

	var cached ProductInfo
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(ctx, err, "Product not found")
	}

	info := toProductInfo(product)
	s.cache.Set(ctx, key, info, cache.ProductGet.TTL)
	return &info, nil
}

// ListProducts returns a paginated product listing, served from cache
// when possible
func (s *ProductService) ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error) {
	filter := catalog.NewProductFilter()
	filter.Keyword = input.Keyword
	if input.Page > 0 {
		filter.Page = input.Page
	}
	if input.PageSize > 0 {
		filter.PageSize = input.PageSize
	}

	key := s.cache.Key(ctx, cache.ProductList, map[string]any{
		"keyword":  filter.Keyword,
		"page":     filter.Page,
		"pageSize": filter.PageSize,
	})

	var cached ProductListResult
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	products, total, err := s.productRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, s.translate(ctx, err, "Failed to list products")
	}

	result := &ProductListResult{
		Products: make([]ProductInfo, 0, len(products)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.Limit(),
	}
	for _, product := range products {
		result.Products = append(result.Products, toProductInfo(product))
	}

	s.cache.Set(ctx, key, result, cache.ProductList.TTL)
	return result, nil
}

// translate maps infrastructure errors to domain errors. A missing
// tenant database surfaces as TENANT_NOT_PROVISIONED so clients can
// tell "not set up yet" from "broken".
func (s *ProductService) translate(ctx context.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, shared.ErrTenantNotProvisioned), persistence.IsDatabaseNotExist(err):
		return shared.ErrTenantNotProvisioned
	case errors.Is(err, shared.ErrNotFound):
		return shared.ErrNotFound
	default:
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) {
			return err
		}
		logger.WithLogger(ctx, s.logger).Error(fallback, zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", fallback)
	}
}

func toProductInfo(product *catalog.Product) ProductInfo {
	return ProductInfo{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Stock:       product.Stock,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}
