package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	trade "github.com/provenant/backend/internal/application/trade"
	tradedomain "github.com/provenant/backend/internal/domain/trade"
	"github.com/provenant/backend/internal/interfaces/http/middleware"
)

// OrderHandler handles order HTTP requests
type OrderHandler struct {
	BaseHandler
	orderService *trade.OrderService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService *trade.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// AddItemRequest is the request body for adding a product to an order
type AddItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

// ListOrdersRequest carries query parameters for the admin order listing
type ListOrdersRequest struct {
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// Create opens a new cart order for the authenticated customer
func (h *OrderHandler) Create(c *gin.Context) {
	customerID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	info, err := h.orderService.CreateOrder(c.Request.Context(), trade.CreateOrderInput{
		CustomerID: customerID,
		TenantCode: middleware.GetTenantCode(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, info)
}

// AddItem adds a product to an order owned by the caller
func (h *OrderHandler) AddItem(c *gin.Context) {
	customerID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID")
		return
	}

	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	info, err := h.orderService.AddItem(c.Request.Context(), trade.AddItemInput{
		OrderID:    orderID,
		CustomerID: customerID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, info)
}

// Checkout submits an order for payment
func (h *OrderHandler) Checkout(c *gin.Context) {
	customerID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID")
		return
	}

	info, err := h.orderService.Checkout(c.Request.Context(), trade.CheckoutInput{
		OrderID:    orderID,
		CustomerID: customerID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, info)
}

// Cancel cancels an order that has not been paid yet
func (h *OrderHandler) Cancel(c *gin.Context) {
	customerID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID")
		return
	}

	info, err := h.orderService.CancelOrder(c.Request.Context(), orderID, customerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, info)
}

// Get returns a single order owned by the caller
func (h *OrderHandler) Get(c *gin.Context) {
	customerID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID")
		return
	}

	info, err := h.orderService.GetOrder(c.Request.Context(), orderID, customerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, info)
}

// ListMine returns the caller's orders across all stores
func (h *OrderHandler) ListMine(c *gin.Context) {
	customerID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	orders, err := h.orderService.ListCustomerOrders(c.Request.Context(), customerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, orders)
}

// List returns a paginated order listing for store admins
func (h *OrderHandler) List(c *gin.Context) {
	var req ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	input := trade.ListOrdersInput{
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.Status != "" {
		status := tradedomain.OrderStatus(req.Status)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid order status")
			return
		}
		input.Status = &status
	}

	result, err := h.orderService.ListOrders(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Orders, result.Total, result.Page, result.PageSize)
}
