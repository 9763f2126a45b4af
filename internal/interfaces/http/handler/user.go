package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/provenant/backend/internal/application/identity"
)

// UserHandler handles account management requests. All routes are
// admin-only; self-service profile access lives on the auth handler.
type UserHandler struct {
	BaseHandler
	authService *identity.AuthService
}

// NewUserHandler creates a new user handler
func NewUserHandler(authService *identity.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// ListUsersRequest is the query for listing accounts
type ListUsersRequest struct {
	Role     string `form:"role" binding:"omitempty,oneof=admin customer"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// UpdateUserRequest is the request body for updating an account
type UpdateUserRequest struct {
	Name string `json:"name" binding:"required"`
}

// List returns a page of accounts
func (h *UserHandler) List(c *gin.Context) {
	var req ListUsersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	result, err := h.authService.ListUsers(c.Request.Context(), identity.ListUsersInput{
		Role:     req.Role,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Users, result.Total, result.Page, result.PageSize)
}

// Get returns one account
func (h *UserHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	info, err := h.authService.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, info)
}

// Update changes an account's profile fields
func (h *UserHandler) Update(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	info, err := h.authService.UpdateUser(c.Request.Context(), identity.UpdateUserInput{
		UserID: userID,
		Name:   req.Name,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, info)
}

// Delete removes an account
func (h *UserHandler) Delete(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	if err := h.authService.DeleteUser(c.Request.Context(), userID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}
