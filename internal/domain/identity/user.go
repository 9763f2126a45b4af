package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/provenant/backend/internal/domain/shared"
	"golang.org/x/crypto/bcrypt"
)

// Role determines what a user is allowed to do and which tenant
// signals are trusted during request resolution
type Role string

const (
	RoleAdmin    Role = "admin"    // Owns a tenant, may manage its catalog
	RoleCustomer Role = "customer" // Buys products, tenant claim is ignored
)

// Password cost for bcrypt
const bcryptCost = 12

// User lives in the default database. Admin users carry the tenant
// code their store database is derived from; customers carry none.
type User struct {
	shared.BaseEntity
	Email         string  `gorm:"type:varchar(200);not null;uniqueIndex"`
	Name          string  `gorm:"type:varchar(200);not null"`
	PasswordHash  string  `gorm:"type:varchar(100);not null"`
	Role          Role    `gorm:"type:varchar(20);not null"`
	TenantCode    *string `gorm:"type:varchar(63);uniqueIndex"` // nil for customers
	DatabaseReady bool    `gorm:"not null;default:false"`       // True once the tenant database has been provisioned
}

// TableName returns the table name for GORM
func (User) TableName() string {
	return "users"
}

// NewCustomer creates a customer account
func NewCustomer(email, name, password string) (*User, error) {
	return newUser(email, name, password, RoleCustomer, nil)
}

// NewAdmin creates an admin account bound to a tenant code.
// The tenant database is provisioned asynchronously, so DatabaseReady
// starts false.
func NewAdmin(email, name, password, tenantCode string) (*User, error) {
	if err := validateTenantCode(tenantCode); err != nil {
		return nil, err
	}
	code := strings.ToLower(strings.TrimSpace(tenantCode))
	return newUser(email, name, password, RoleAdmin, &code)
}

func newUser(email, name, password string, role Role, tenantCode *string) (*User, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, shared.NewDomainError("PASSWORD_HASH_ERROR", "Failed to hash password")
	}

	return &User{
		BaseEntity:   shared.NewBaseEntity(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		Role:         role,
		TenantCode:   tenantCode,
	}, nil
}

// VerifyPassword verifies if the provided password matches
func (u *User) VerifyPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// IsAdmin returns true if the user owns a tenant
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// MarkDatabaseReady records that the tenant database finished provisioning
func (u *User) MarkDatabaseReady() {
	u.DatabaseReady = true
	u.UpdatedAt = time.Now()
}

// TenantCodeOrEmpty returns the tenant code or "" for customers
func (u *User) TenantCodeOrEmpty() string {
	if u.TenantCode == nil {
		return ""
	}
	return *u.TenantCode
}

// Validation functions

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot be empty")
	}
	if len(email) > 200 {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot exceed 200 characters")
	}

	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(email) {
		return shared.NewDomainError("INVALID_EMAIL", "Invalid email format")
	}

	return nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Name cannot exceed 200 characters")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return shared.NewDomainError("INVALID_PASSWORD", "Password cannot be empty")
	}
	if len(password) < 8 {
		return shared.NewDomainError("INVALID_PASSWORD", "Password must be at least 8 characters")
	}
	if len(password) > 128 {
		return shared.NewDomainError("INVALID_PASSWORD", "Password cannot exceed 128 characters")
	}
	return nil
}

func validateTenantCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return shared.NewDomainError("INVALID_TENANT_CODE", "Tenant code cannot be empty")
	}
	if len(code) < 2 {
		return shared.NewDomainError("INVALID_TENANT_CODE", "Tenant code must be at least 2 characters")
	}
	if len(code) > 63 {
		return shared.NewDomainError("INVALID_TENANT_CODE", "Tenant code cannot exceed 63 characters")
	}

	// Must be usable as part of a database name
	codeRegex := regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	if !codeRegex.MatchString(code) {
		return shared.NewDomainError("INVALID_TENANT_CODE", "Tenant code must start with a letter and contain only letters, numbers, and underscores")
	}

	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
