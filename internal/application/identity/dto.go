package identity

import (
	"time"

	"github.com/google/uuid"
)

// RegisterCustomerInput contains the input for customer registration
type RegisterCustomerInput struct {
	Email    string
	Name     string
	Password string
}

// RegisterAdminInput contains the input for admin registration. The
// tenant code names the store whose database gets provisioned.
type RegisterAdminInput struct {
	Email      string
	Name       string
	Password   string
	TenantCode string
}

// RegisterResult contains the created account
type RegisterResult struct {
	User UserInfo
}

// LoginInput contains the input for user login
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult contains the result of a successful login
type LoginResult struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	TokenType             string
	User                  UserInfo
}

// RefreshTokenInput contains the input for token refresh
type RefreshTokenInput struct {
	RefreshToken string
}

// RefreshTokenResult contains the result of a token refresh
type RefreshTokenResult struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	TokenType             string
}

// UserInfo contains user information returned to clients
type UserInfo struct {
	ID            uuid.UUID
	Email         string
	Name          string
	Role          string
	TenantCode    string
	DatabaseReady bool
	CreatedAt     time.Time
}

// UpdateUserInput contains the input for updating a user profile
type UpdateUserInput struct {
	UserID uuid.UUID
	Name   string
}

// ListUsersInput contains the input for listing user accounts
type ListUsersInput struct {
	Role     string
	Page     int
	PageSize int
}

// UserListResult contains a page of user accounts
type UserListResult struct {
	Users    []UserInfo
	Total    int64
	Page     int
	PageSize int
}
