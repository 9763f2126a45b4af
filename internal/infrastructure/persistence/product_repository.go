package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/catalog"
	"github.com/provenant/backend/internal/domain/shared"
	"github.com/provenant/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
)

// GormProductRepository implements catalog.ProductRepository using GORM.
// Every call resolves the tenant database from the request context.
type GormProductRepository struct {
	scoped *tenant.Scoped
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(scoped *tenant.Scoped) *GormProductRepository {
	return &GormProductRepository{scoped: scoped}
}

// Create creates a new product
func (r *GormProductRepository) Create(ctx context.Context, product *catalog.Product) error {
	db, err := r.scoped.DB(ctx)
	if err != nil {
		return err
	}
	return db.Create(product).Error
}

// Update updates an existing product
func (r *GormProductRepository) Update(ctx context.Context, product *catalog.Product) error {
	db, err := r.scoped.DB(ctx)
	if err != nil {
		return err
	}

	result := db.Save(product)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete deletes a product by ID
func (r *GormProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db, err := r.scoped.DB(ctx)
	if err != nil {
		return err
	}

	result := db.Delete(&catalog.Product{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a product by ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	db, err := r.scoped.DB(ctx)
	if err != nil {
		return nil, err
	}

	var product catalog.Product
	if err := db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

// FindAll returns products with pagination
func (r *GormProductRepository) FindAll(ctx context.Context, filter catalog.ProductFilter) ([]*catalog.Product, int64, error) {
	db, err := r.scoped.DB(ctx)
	if err != nil {
		return nil, 0, err
	}

	query := db.Model(&catalog.Product{})
	if filter.Keyword != "" {
		keyword := "%" + filter.Keyword + "%"
		query = query.Where("name ILIKE ? OR description ILIKE ?", keyword, keyword)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []*catalog.Product
	if err := query.
		Order("created_at desc").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&products).Error; err != nil {
		return nil, 0, err
	}

	return products, total, nil
}
