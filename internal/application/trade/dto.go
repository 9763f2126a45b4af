package trade

import (
	"time"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/trade"
	"github.com/shopspring/decimal"
)

// CreateOrderInput opens a cart order for a customer in the current store
type CreateOrderInput struct {
	CustomerID uuid.UUID
	TenantCode string
}

// AddItemInput contains the input for adding a product to an order
type AddItemInput struct {
	OrderID    uuid.UUID
	CustomerID uuid.UUID
	ProductID  uuid.UUID
	Quantity   int
}

// CheckoutInput moves an order into the payment flow
type CheckoutInput struct {
	OrderID    uuid.UUID
	CustomerID uuid.UUID
}

// OrderItemInfo is a line item returned to clients
type OrderItemInfo struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// OrderInfo is the order representation returned to clients
type OrderInfo struct {
	ID          uuid.UUID         `json:"id"`
	CustomerID  uuid.UUID         `json:"customer_id"`
	TenantCode  string            `json:"tenant_code"`
	Status      trade.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	PaymentID   *string           `json:"payment_id,omitempty"`
	Items       []OrderItemInfo   `json:"items"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ListOrdersInput contains filter and pagination options for the
// admin order listing
type ListOrdersInput struct {
	Status   *trade.OrderStatus
	Page     int
	PageSize int
}

// OrderListResult is a paginated order listing
type OrderListResult struct {
	Orders   []OrderInfo `json:"orders"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}
