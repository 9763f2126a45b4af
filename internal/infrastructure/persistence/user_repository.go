package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/identity"
	"github.com/provenant/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormUserRepository implements identity.UserRepository using GORM.
// It always operates on the default database.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GormUserRepository
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Create creates a new user. The users table carries unique indexes on
// both email and tenant code, so an insert conflict is classified by
// the violated constraint.
func (r *GormUserRepository) Create(ctx context.Context, user *identity.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return classifyUserInsertError(err)
	}
	return nil
}

// classifyUserInsertError maps a unique violation on the tenant code
// index to ErrTenantConflict and any other unique violation, the email
// index included, to ErrAlreadyExists
func classifyUserInsertError(err error) error {
	if !IsUniqueViolation(err) {
		return err
	}
	if strings.Contains(UniqueConstraint(err), "tenant_code") {
		return shared.ErrTenantConflict
	}
	return shared.ErrAlreadyExists
}

// Update updates an existing user
func (r *GormUserRepository) Update(ctx context.Context, user *identity.User) error {
	result := r.db.WithContext(ctx).Save(user)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a user by ID
func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	var user identity.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByEmail finds a user by email
func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	var user identity.User
	if err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(email)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByTenantCode finds the admin user owning a tenant code
func (r *GormUserRepository) FindByTenantCode(ctx context.Context, tenantCode string) (*identity.User, error) {
	var user identity.User
	if err := r.db.WithContext(ctx).
		Where("tenant_code = ?", strings.ToLower(tenantCode)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindAdminsWithTenant returns every admin that has a tenant code
func (r *GormUserRepository) FindAdminsWithTenant(ctx context.Context) ([]*identity.User, error) {
	var users []*identity.User
	if err := r.db.WithContext(ctx).
		Where("role = ? AND tenant_code IS NOT NULL", identity.RoleAdmin).
		Order("tenant_code asc").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// FindAll returns users with pagination, newest first
func (r *GormUserRepository) FindAll(ctx context.Context, filter identity.UserFilter) ([]*identity.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&identity.User{})
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []*identity.User
	if err := query.
		Order("created_at desc").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Delete removes a user account
func (r *GormUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&identity.User{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ExistsByEmail checks if an email already exists
func (r *GormUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&identity.User{}).
		Where("email = ?", strings.ToLower(email)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistsByTenantCode checks if a tenant code is already taken
func (r *GormUserRepository) ExistsByTenantCode(ctx context.Context, tenantCode string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&identity.User{}).
		Where("tenant_code = ?", strings.ToLower(tenantCode)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkDatabaseReady flips the provisioned flag for a tenant's owner
func (r *GormUserRepository) MarkDatabaseReady(ctx context.Context, tenantCode string) error {
	result := r.db.WithContext(ctx).Model(&identity.User{}).
		Where("tenant_code = ?", strings.ToLower(tenantCode)).
		Update("database_ready", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
