package trade

import (
	"time"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "PENDING"
	OrderStatusWaitingForPayment OrderStatus = "WAITING_FOR_PAYMENT"
	OrderStatusPaid              OrderStatus = "PAID"
	OrderStatusComplete          OrderStatus = "COMPLETE"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
)

// IsValid checks if the status is a known OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusWaitingForPayment, OrderStatusPaid, OrderStatusComplete, OrderStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can advance to the target status
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return target == OrderStatusWaitingForPayment || target == OrderStatusCancelled
	case OrderStatusWaitingForPayment:
		return target == OrderStatusPaid || target == OrderStatusCancelled
	case OrderStatusPaid:
		return target == OrderStatusComplete
	case OrderStatusComplete, OrderStatusCancelled:
		return false // Terminal states
	}
	return false
}

// OrderItem is a line item snapshotting the product at checkout time
type OrderItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null"`
	ProductName string          `gorm:"type:varchar(200);not null"`
	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt   time.Time
}

// TableName returns the table name for GORM
func (OrderItem) TableName() string {
	return "order_items"
}

// NewOrderItem creates a new order line item
func NewOrderItem(orderID, productID uuid.UUID, productName string, quantity int, unitPrice decimal.Decimal) (*OrderItem, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}

	return &OrderItem{
		ID:          uuid.New(),
		OrderID:     orderID,
		ProductID:   productID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Amount:      unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		CreatedAt:   time.Now(),
	}, nil
}

// Order is the aggregate root for a customer purchase. Orders live in
// the tenant database of the store they were placed against, while the
// customer account itself lives in the default database.
type Order struct {
	shared.BaseEntity
	CustomerID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	TenantCode  string          `gorm:"type:varchar(63);not null;index"`
	Status      OrderStatus     `gorm:"type:varchar(30);not null;default:'PENDING'"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PaymentID   *string         `gorm:"type:varchar(100)"`
	Items       []OrderItem     `gorm:"foreignKey:OrderID"`
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// NewOrder creates a pending order for a customer
func NewOrder(customerID uuid.UUID, tenantCode string) (*Order, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if tenantCode == "" {
		return nil, shared.NewDomainError("INVALID_TENANT_CODE", "Tenant code cannot be empty")
	}

	return &Order{
		BaseEntity:  shared.NewBaseEntity(),
		CustomerID:  customerID,
		TenantCode:  tenantCode,
		Status:      OrderStatusPending,
		TotalAmount: decimal.Zero,
		Items:       make([]OrderItem, 0),
	}, nil
}

// AddItem adds a line item and keeps the total in sync. Adding a
// product already on the order merges into the existing row instead of
// creating a duplicate.
func (o *Order) AddItem(productID uuid.UUID, productName string, quantity int, unitPrice decimal.Decimal) error {
	if o.Status != OrderStatusPending {
		return shared.ErrInvalidState
	}

	item, err := NewOrderItem(o.ID, productID, productName, quantity, unitPrice)
	if err != nil {
		return err
	}

	merged := false
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			o.Items[i].Quantity += quantity
			o.Items[i].UnitPrice = unitPrice
			o.Items[i].Amount = unitPrice.Mul(decimal.NewFromInt(int64(o.Items[i].Quantity)))
			merged = true
			break
		}
	}
	if !merged {
		o.Items = append(o.Items, *item)
	}

	o.recalculateTotal()
	o.UpdatedAt = time.Now()

	return nil
}

func (o *Order) recalculateTotal() {
	total := decimal.Zero
	for i := range o.Items {
		total = total.Add(o.Items[i].Amount)
	}
	o.TotalAmount = total
}

// AwaitPayment moves the order out of the cart stage
func (o *Order) AwaitPayment() error {
	return o.transition(OrderStatusWaitingForPayment)
}

// MarkPaid records the payment reference produced by the payment step
func (o *Order) MarkPaid(paymentID string) error {
	if paymentID == "" {
		return shared.NewDomainError("INVALID_PAYMENT_ID", "Payment ID cannot be empty")
	}
	if err := o.transition(OrderStatusPaid); err != nil {
		return err
	}

	o.PaymentID = &paymentID

	return nil
}

// Complete finishes the order after fulfilment
func (o *Order) Complete() error {
	return o.transition(OrderStatusComplete)
}

// Cancel aborts an order that has not been paid yet
func (o *Order) Cancel() error {
	return o.transition(OrderStatusCancelled)
}

func (o *Order) transition(target OrderStatus) error {
	if !o.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATUS_TRANSITION", "Order cannot move from "+o.Status.String()+" to "+target.String())
	}

	o.Status = target
	o.UpdatedAt = time.Now()

	return nil
}
