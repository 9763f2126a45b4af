package catalog

import (
	"strings"
	"time"

	"github.com/provenant/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Product is a sellable item. Products live inside a tenant database,
// so rows here are already scoped to one store.
type Product struct {
	shared.BaseEntity
	Name        string          `gorm:"type:varchar(200);not null"`
	Description string          `gorm:"type:text"`
	Price       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Stock       int             `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a new product
func NewProduct(name, description string, price decimal.Decimal, stock int) (*Product, error) {
	if err := validateProductName(name); err != nil {
		return nil, err
	}
	if price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Price cannot be negative")
	}
	if stock < 0 {
		return nil, shared.NewDomainError("INVALID_STOCK", "Stock cannot be negative")
	}

	return &Product{
		BaseEntity:  shared.NewBaseEntity(),
		Name:        strings.TrimSpace(name),
		Description: description,
		Price:       price,
		Stock:       stock,
	}, nil
}

// Update applies new details to the product
func (p *Product) Update(name, description string, price decimal.Decimal, stock int) error {
	if err := validateProductName(name); err != nil {
		return err
	}
	if price.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", "Price cannot be negative")
	}
	if stock < 0 {
		return shared.NewDomainError("INVALID_STOCK", "Stock cannot be negative")
	}

	p.Name = strings.TrimSpace(name)
	p.Description = description
	p.Price = price
	p.Stock = stock
	p.UpdatedAt = time.Now()

	return nil
}

// HasStock reports whether the requested quantity is available
func (p *Product) HasStock(quantity int) bool {
	return quantity > 0 && p.Stock >= quantity
}

// ReserveStock removes quantity from stock once payment is confirmed
func (p *Product) ReserveStock(quantity int) error {
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if p.Stock < quantity {
		return shared.ErrInsufficientStock
	}

	p.Stock -= quantity
	p.UpdatedAt = time.Now()

	return nil
}

func validateProductName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot exceed 200 characters")
	}
	return nil
}
