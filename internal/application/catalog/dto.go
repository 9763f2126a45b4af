package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateProductInput contains the input for creating a product
type CreateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

// UpdateProductInput contains the input for updating a product
type UpdateProductInput struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

// ListProductsInput contains filter and pagination options
type ListProductsInput struct {
	Keyword  string
	Page     int
	PageSize int
}

// ProductInfo is the product representation returned to clients
type ProductInfo struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProductListResult is a paginated product listing
type ProductListResult struct {
	Products []ProductInfo `json:"products"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}
