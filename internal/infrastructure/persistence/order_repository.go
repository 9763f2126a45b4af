package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/shared"
	"github.com/provenant/backend/internal/domain/trade"
	"github.com/provenant/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
)

// GormOrderRepository implements trade.OrderRepository using GORM.
// Orders are stored in the tenant database of the store they target.
type GormOrderRepository struct {
	scoped *tenant.Scoped
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(scoped *tenant.Scoped) *GormOrderRepository {
	return &GormOrderRepository{scoped: scoped}
}

// Create creates an order together with its items
func (r *GormOrderRepository) Create(ctx context.Context, order *trade.Order) error {
	db, err := r.scoped.DB(ctx)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(order).Error
	})
}

// Update updates an existing order
func (r *GormOrderRepository) Update(ctx context.Context, order *trade.Order) error {
	db, err := r.scoped.DB(ctx)
	if err != nil {
		return err
	}

	result := db.Omit("Items").Save(order)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds an order with its items
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*trade.Order, error) {
	db, err := r.scoped.DB(ctx)
	if err != nil {
		return nil, err
	}

	var order trade.Order
	if err := db.Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindByCustomer returns all orders placed by a customer in this tenant
func (r *GormOrderRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]*trade.Order, error) {
	db, err := r.scoped.DB(ctx)
	if err != nil {
		return nil, err
	}

	var orders []*trade.Order
	if err := db.Preload("Items").
		Where("customer_id = ?", customerID).
		Order("created_at desc").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindAll returns orders with pagination, newest first
func (r *GormOrderRepository) FindAll(ctx context.Context, filter trade.OrderFilter) ([]*trade.Order, int64, error) {
	db, err := r.scoped.DB(ctx)
	if err != nil {
		return nil, 0, err
	}

	query := db.Model(&trade.Order{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []*trade.Order
	if err := query.Preload("Items").
		Order("created_at desc").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}
