package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/provenant/backend/internal/application/catalog"
	"github.com/shopspring/decimal"
)

// ProductHandler handles product HTTP requests against the catalog of
// the tenant resolved for the request
type ProductHandler struct {
	BaseHandler
	productService *catalog.ProductService
}

// NewProductHandler creates a new product handler
func NewProductHandler(productService *catalog.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// ProductRequest is the request body for creating or updating a product
type ProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	Stock       int             `json:"stock" binding:"min=0"`
}

// ListProductsRequest carries query parameters for product listing
type ListProductsRequest struct {
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// Create adds a product to the catalog
func (h *ProductHandler) Create(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	info, err := h.productService.CreateProduct(c.Request.Context(), catalog.CreateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, info)
}

// Update changes a product's details
func (h *ProductHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}

	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	info, err := h.productService.UpdateProduct(c.Request.Context(), catalog.UpdateProductInput{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, info)
}

// Delete removes a product
func (h *ProductHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}

	if err := h.productService.DeleteProduct(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// Get returns a single product
func (h *ProductHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}

	info, err := h.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, info)
}

// List returns a paginated product listing
func (h *ProductHandler) List(c *gin.Context) {
	var req ListProductsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	result, err := h.productService.ListProducts(c.Request.Context(), catalog.ListProductsInput{
		Keyword:  req.Search,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Products, result.Total, result.Page, result.PageSize)
}
