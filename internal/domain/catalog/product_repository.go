package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ProductRepository defines the interface for product persistence.
// Implementations operate on the tenant database resolved from the
// request context.
type ProductRepository interface {
	// Create creates a new product
	Create(ctx context.Context, product *Product) error

	// Update updates an existing product
	Update(ctx context.Context, product *Product) error

	// Delete deletes a product by ID
	Delete(ctx context.Context, id uuid.UUID) error

	// FindByID finds a product by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindAll returns products with pagination
	FindAll(ctx context.Context, filter ProductFilter) ([]*Product, int64, error)
}

// ProductFilter contains filter options for querying products
type ProductFilter struct {
	// Search keyword for name or description
	Keyword string

	// Pagination
	Page     int
	PageSize int
}

// NewProductFilter creates a ProductFilter with default values
func NewProductFilter() ProductFilter {
	return ProductFilter{
		Page:     1,
		PageSize: 20,
	}
}

// Offset returns the offset for pagination
func (f ProductFilter) Offset() int {
	if f.Page <= 0 {
		return 0
	}
	return (f.Page - 1) * f.Limit()
}

// Limit returns the limit for pagination
func (f ProductFilter) Limit() int {
	if f.PageSize <= 0 {
		return 20
	}
	if f.PageSize > 100 {
		return 100
	}
	return f.PageSize
}
