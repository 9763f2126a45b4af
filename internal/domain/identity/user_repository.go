package identity

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository defines the interface for user persistence.
// Users always live in the default database, never in tenant databases.
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *User) error

	// Update updates an existing user
	Update(ctx context.Context, user *User) error

	// FindByID finds a user by ID
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)

	// FindByEmail finds a user by email
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByTenantCode finds the admin user owning a tenant code
	FindByTenantCode(ctx context.Context, tenantCode string) (*User, error)

	// FindAdminsWithTenant returns every admin that has a tenant code
	FindAdminsWithTenant(ctx context.Context) ([]*User, error)

	// FindAll returns users with pagination, newest first
	FindAll(ctx context.Context, filter UserFilter) ([]*User, int64, error)

	// Delete removes a user account
	Delete(ctx context.Context, id uuid.UUID) error

	// ExistsByEmail checks if an email already exists
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// ExistsByTenantCode checks if a tenant code is already taken
	ExistsByTenantCode(ctx context.Context, tenantCode string) (bool, error)

	// MarkDatabaseReady flips the provisioned flag for a tenant's owner
	MarkDatabaseReady(ctx context.Context, tenantCode string) error
}

// UserFilter contains filter options for querying users
type UserFilter struct {
	Role     *Role
	Page     int
	PageSize int
}

// NewUserFilter creates a UserFilter with default values
func NewUserFilter() UserFilter {
	return UserFilter{
		Page:     1,
		PageSize: 20,
	}
}

// Offset returns the offset for pagination
func (f UserFilter) Offset() int {
	if f.Page <= 0 {
		return 0
	}
	return (f.Page - 1) * f.Limit()
}

// Limit returns the limit for pagination
func (f UserFilter) Limit() int {
	if f.PageSize <= 0 {
		return 20
	}
	if f.PageSize > 100 {
		return 100
	}
	return f.PageSize
}
