// Package trade implements the order lifecycle. Orders live in the
// database of the store they were placed against; checkout hands the
// order to the background payment flow through the queue.
package trade

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/catalog"
	"github.com/provenant/backend/internal/domain/shared"
	"github.com/provenant/backend/internal/domain/trade"
	"github.com/provenant/backend/internal/infrastructure/cache"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"github.com/provenant/backend/internal/infrastructure/persistence"
	"github.com/provenant/backend/internal/infrastructure/queue"
	"github.com/provenant/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// OrderService handles order operations
type OrderService struct {
	orderRepo   trade.OrderRepository
	productRepo catalog.ProductRepository
	publisher   queue.Publisher
	cache       *cache.Store
	logger      *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orderRepo trade.OrderRepository,
	productRepo catalog.ProductRepository,
	publisher queue.Publisher,
	store *cache.Store,
	log *zap.Logger,
) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		publisher:   publisher,
		cache:       store,
		logger:      log,
	}
}

// CreateOrder opens an empty pending order
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderInfo, error) {
	order, err := trade.NewOrder(input.CustomerID, input.TenantCode)
	if err != nil {
		return nil, err
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, s.translate(ctx, err, "Failed to create order")
	}

	s.cache.Invalidate(ctx, cache.TargetsFor("orders.create")...)

	logger.WithLogger(ctx, s.logger).Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("customer_id", order.CustomerID.String()))

	info := toOrderInfo(order)
	return &info, nil
}

// AddItem puts a product on a pending order. The caller must own the
// order, and the product must have enough stock at add time.
func (s *OrderService) AddItem(ctx context.Context, input AddItemInput) (*OrderInfo, error) {
	order, err := s.loadOwnedOrder(ctx, input.OrderID, input.CustomerID)
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.FindByID(ctx, input.ProductID)
	if err != nil {
		return nil, s.translate(ctx, err, "Product not found")
	}

	if !product.HasStock(input.Quantity) {
		return nil, shared.ErrInsufficientStock
	}

	if err := order.AddItem(product.ID, product.Name, input.Quantity, product.Price); err != nil {
		return nil, err
	}

	if err := s.orderRepo.Update(ctx, order); err != nil {
		return nil, s.translate(ctx, err, "Failed to update order")
	}

	s.cache.Invalidate(ctx, cache.TargetsFor("orders.statusChange")...)

	info := toOrderInfo(order)
	return &info, nil
}

// Checkout re-verifies stock for every line and hands the order to the
// payment flow
func (s *OrderService) Checkout(ctx context.Context, input CheckoutInput) (*OrderInfo, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "checkout",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, input.OrderID.String()))
	defer span.End()

	order, err := s.loadOwnedOrder(ctx, input.OrderID, input.CustomerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if len(order.Items) == 0 {
		return nil, shared.NewDomainError("EMPTY_ORDER", "Order has no items")
	}

	// Stock can have drained since the items were added
	for _, item := range order.Items {
		product, err := s.productRepo.FindByID(ctx, item.ProductID)
		if err != nil {
			return nil, s.translate(ctx, err, "Product not found")
		}
		if !product.HasStock(item.Quantity) {
			return nil, shared.ErrInsufficientStock
		}
	}

	if err := order.AwaitPayment(); err != nil {
		return nil, err
	}

	if err := s.orderRepo.Update(ctx, order); err != nil {
		err = s.translate(ctx, err, "Failed to update order")
		telemetry.RecordError(span, err)
		return nil, err
	}

	message := queue.OrderProcessingMessage{
		TenantCode: order.TenantCode,
		OrderID:    order.ID.String(),
	}
	if err := s.publisher.Publish(ctx, queue.TopicOrderProcessing, message); err != nil {
		logger.WithLogger(ctx, s.logger).Error("Failed to enqueue order processing",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}

	s.cache.Invalidate(ctx, cache.TargetsFor("orders.statusChange")...)

	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantCode, order.TenantCode,
		telemetry.SpanAttrAmount, order.TotalAmount.String())
	logger.WithLogger(ctx, s.logger).Info("Order checked out",
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.TotalAmount.String()))

	info := toOrderInfo(order)
	return &info, nil
}

// CancelOrder aborts an unpaid order
func (s *OrderService) CancelOrder(ctx context.Context, orderID, customerID uuid.UUID) (*OrderInfo, error) {
	order, err := s.loadOwnedOrder(ctx, orderID, customerID)
	if err != nil {
		return nil, err
	}

	if err := order.Cancel(); err != nil {
		return nil, err
	}

	if err := s.orderRepo.Update(ctx, order); err != nil {
		return nil, s.translate(ctx, err, "Failed to update order")
	}

	s.cache.Invalidate(ctx, cache.TargetsFor("orders.statusChange")...)

	info := toOrderInfo(order)
	return &info, nil
}

// GetOrder returns an order owned by the caller
func (s *OrderService) GetOrder(ctx context.Context, orderID, customerID uuid.UUID) (*OrderInfo, error) {
	order, err := s.loadOwnedOrder(ctx, orderID, customerID)
	if err != nil {
		return nil, err
	}

	info := toOrderInfo(order)
	return &info, nil
}

// ListCustomerOrders returns all orders the customer placed in the
// current store. The cache entry lives in the default namespace so the
// listing survives tenant switches in sibling requests.
func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID uuid.UUID) ([]OrderInfo, error) {
	key := s.cache.Key(ctx, cache.CustomerOrderList, map[string]any{
		"customerId": customerID.String(),
	})

	var cached []OrderInfo
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	orders, err := s.orderRepo.FindByCustomer(ctx, customerID)
	if err != nil {
		return nil, s.translate(ctx, err, "Failed to list orders")
	}

	result := make([]OrderInfo, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderInfo(order))
	}

	s.cache.Set(ctx, key, result, cache.CustomerOrderList.TTL)
	return result, nil
}

// ListOrders returns a paginated order listing for store admins
func (s *OrderService) ListOrders(ctx context.Context, input ListOrdersInput) (*OrderListResult, error) {
	filter := trade.NewOrderFilter()
	filter.Status = input.Status
	if input.Page > 0 {
		filter.Page = input.Page
	}
	if input.PageSize > 0 {
		filter.PageSize = input.PageSize
	}

	orders, total, err := s.orderRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, s.translate(ctx, err, "Failed to list orders")
	}

	result := &OrderListResult{
		Orders:   make([]OrderInfo, 0, len(orders)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.Limit(),
	}
	for _, order := range orders {
		result.Orders = append(result.Orders, toOrderInfo(order))
	}
	return result, nil
}

func (s *OrderService) loadOwnedOrder(ctx context.Context, orderID, customerID uuid.UUID) (*trade.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.translate(ctx, err, "Order not found")
	}

	if order.CustomerID != customerID {
		return nil, shared.ErrForbidden
	}
	return order, nil
}

func (s *OrderService) translate(ctx context.Context, err error, fallback string) error {
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

func toOrderInfo(order *trade.Order) OrderInfo {
	items := make([]OrderItemInfo, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemInfo{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		})
	}

	return OrderInfo{
		ID:          order.ID,
		CustomerID:  order.CustomerID,
		TenantCode:  order.TenantCode,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		PaymentID:   order.PaymentID,
		Items:       items,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}
