package trade

import (
	"context"

	"github.com/google/uuid"
)

// OrderRepository defines the interface for order persistence.
// Implementations operate on the tenant database resolved from the
// request context.
type OrderRepository interface {
	// Create creates an order together with its items
	Create(ctx context.Context, order *Order) error

	// Update updates an existing order
	Update(ctx context.Context, order *Order) error

	// FindByID finds an order with its items
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByCustomer returns all orders placed by a customer in this tenant
	FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]*Order, error)

	// FindAll returns orders with pagination, newest first
	FindAll(ctx context.Context, filter OrderFilter) ([]*Order, int64, error)
}

// OrderFilter contains filter options for querying orders
type OrderFilter struct {
	Status   *OrderStatus
	Page     int
	PageSize int
}

// NewOrderFilter creates an OrderFilter with default values
func NewOrderFilter() OrderFilter {
	return OrderFilter{
		Page:     1,
		PageSize: 20,
	}
}

// Offset returns the offset for pagination
func (f OrderFilter) Offset() int {
	if f.Page <= 0 {
		return 0
	}
	return (f.Page - 1) * f.Limit()
}

// Limit returns the limit for pagination
func (f OrderFilter) Limit() int {
	if f.PageSize <= 0 {
		return 20
	}
	if f.PageSize > 100 {
		return 100
	}
	return f.PageSize
}
