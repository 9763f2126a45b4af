// Package identity implements account registration and authentication
// on top of the default database. Admin registration also kicks off the
// asynchronous provisioning of the tenant database.
package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/domain/identity"
	"github.com/provenant/backend/internal/domain/shared"
	"github.com/provenant/backend/internal/infrastructure/auth"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"github.com/provenant/backend/internal/infrastructure/queue"
	"go.uber.org/zap"
)

// AuthService handles registration and authentication
type AuthService struct {
	userRepo   identity.UserRepository
	jwtService *auth.JWTService
	publisher  queue.Publisher
	logger     *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo identity.UserRepository,
	jwtService *auth.JWTService,
	publisher queue.Publisher,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		userRepo:   userRepo,
		jwtService: jwtService,
		publisher:  publisher,
		logger:     log,
	}
}

// RegisterCustomer creates a customer account
func (s *AuthService) RegisterCustomer(ctx context.Context, input RegisterCustomerInput) (*RegisterResult, error) {
	taken, err := s.userRepo.ExistsByEmail(ctx, input.Email)
	if err != nil {
		logger.WithLogger(ctx, s.logger).Error("Email lookup failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to check email availability")
	}
	if taken {
		return nil, shared.NewDomainError("EMAIL_TAKEN", "Email is already registered")
	}

	user, err := identity.NewCustomer(input.Email, input.Name, input.Password)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, shared.NewDomainError("EMAIL_TAKEN", "Email is already registered")
		}
		logger.WithLogger(ctx, s.logger).Error("Failed to create customer", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to create account")
	}

	logger.WithLogger(ctx, s.logger).Info("Customer registered",
		zap.String("user_id", user.ID.String()))

	result := &RegisterResult{User: toUserInfo(user)}
	return result, nil
}

// RegisterAdmin creates an admin account bound to a tenant code and
// enqueues the provisioning of the tenant database. The account is
// usable immediately; DatabaseReady flips once the worker finishes.
func (s *AuthService) RegisterAdmin(ctx context.Context, input RegisterAdminInput) (*RegisterResult, error) {
	log := logger.WithLogger(ctx, s.logger)

	taken, err := s.userRepo.ExistsByEmail(ctx, input.Email)
	if err != nil {
		log.Error("Email lookup failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to check email availability")
	}
	if taken {
		return nil, shared.NewDomainError("EMAIL_TAKEN", "Email is already registered")
	}

	user, err := identity.NewAdmin(input.Email, input.Name, input.Password, input.TenantCode)
	if err != nil {
		return nil, err
	}

	conflict, err := s.userRepo.ExistsByTenantCode(ctx, user.TenantCodeOrEmpty())
	if err != nil {
		log.Error("Tenant code lookup failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to check tenant code availability")
	}
	if conflict {
		return nil, shared.ErrTenantConflict
	}

	// The unique indexes close the races between the checks above and
	// this insert. The repository reports which index tripped.
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, shared.ErrTenantConflict) {
			return nil, shared.ErrTenantConflict
		}
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, shared.NewDomainError("EMAIL_TAKEN", "Email is already registered")
		}
		log.Error("Failed to create admin", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to create account")
	}

	message := queue.TenantDatabaseCreationMessage{TenantCode: user.TenantCodeOrEmpty()}
	if err := s.publisher.Publish(ctx, queue.TopicTenantDatabaseCreation, message); err != nil {
		// The account exists; provisioning is retried via the
		// migrate-all admin operation when publish is lost
		log.Error("Failed to enqueue tenant provisioning",
			zap.String("tenant_code", user.TenantCodeOrEmpty()),
			zap.Error(err))
	}

	log.Info("Admin registered",
		zap.String("user_id", user.ID.String()),
		zap.String("tenant_code", user.TenantCodeOrEmpty()))

	result := &RegisterResult{User: toUserInfo(user)}
	return result, nil
}

// Login authenticates a user and returns tokens
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	log := logger.WithLogger(ctx, s.logger)

	user, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		log.Warn("User not found during login", zap.String("email", input.Email))
		return nil, shared.NewDomainError("INVALID_CREDENTIALS", "Invalid email or password")
	}

	if !user.VerifyPassword(input.Password) {
		log.Warn("Invalid password attempt", zap.String("email", input.Email))
		return nil, shared.NewDomainError("INVALID_CREDENTIALS", "Invalid email or password")
	}

	tokenPair, err := s.jwtService.GenerateTokenPair(auth.GenerateTokenInput{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       string(user.Role),
		TenantCode: user.TenantCodeOrEmpty(),
	})
	if err != nil {
		log.Error("Failed to generate token pair", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to generate authentication tokens")
	}

	log.Info("User logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)))

	return &LoginResult{
		AccessToken:           tokenPair.AccessToken,
		RefreshToken:          tokenPair.RefreshToken,
		AccessTokenExpiresAt:  tokenPair.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: tokenPair.RefreshTokenExpiresAt,
		TokenType:             tokenPair.TokenType,
		User:                  toUserInfo(user),
	}, nil
}

// RefreshToken exchanges a valid refresh token for a new token pair
func (s *AuthService) RefreshToken(ctx context.Context, input RefreshTokenInput) (*RefreshTokenResult, error) {
	log := logger.WithLogger(ctx, s.logger)

	claims, err := s.jwtService.ValidateRefreshToken(input.RefreshToken)
	if err != nil {
		log.Warn("Refresh token validation failed", zap.Error(err))
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			return nil, shared.NewDomainError("TOKEN_EXPIRED", "Refresh token has expired")
		default:
			return nil, shared.NewDomainError("TOKEN_INVALID", "Invalid refresh token")
		}
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, shared.NewDomainError("TOKEN_INVALID", "Invalid user ID in token")
	}

	// Re-read the user so revoked accounts and changed roles take
	// effect at refresh time
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		log.Warn("User not found during token refresh", zap.String("user_id", userID.String()))
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}

	tokenPair, err := s.jwtService.GenerateTokenPair(auth.GenerateTokenInput{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       string(user.Role),
		TenantCode: user.TenantCodeOrEmpty(),
	})
	if err != nil {
		log.Error("Failed to refresh token pair", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to refresh tokens")
	}

	return &RefreshTokenResult{
		AccessToken:           tokenPair.AccessToken,
		RefreshToken:          tokenPair.RefreshToken,
		AccessTokenExpiresAt:  tokenPair.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: tokenPair.RefreshTokenExpiresAt,
		TokenType:             tokenPair.TokenType,
	}, nil
}

// GetUser returns a user's profile
func (s *AuthService) GetUser(ctx context.Context, userID uuid.UUID) (*UserInfo, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}

	info := toUserInfo(user)
	return &info, nil
}

// UpdateUser changes mutable profile fields
func (s *AuthService) UpdateUser(ctx context.Context, input UpdateUserInput) (*UserInfo, error) {
	user, err := s.userRepo.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}

	if input.Name != "" {
		user.Name = input.Name
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		logger.WithLogger(ctx, s.logger).Error("Failed to update user", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update user")
	}

	info := toUserInfo(user)
	return &info, nil
}

// ListUsers returns a paginated account listing for admins
func (s *AuthService) ListUsers(ctx context.Context, input ListUsersInput) (*UserListResult, error) {
	filter := identity.NewUserFilter()
	if input.Role != "" {
		role := identity.Role(input.Role)
		filter.Role = &role
	}
	if input.Page > 0 {
		filter.Page = input.Page
	}
	if input.PageSize > 0 {
		filter.PageSize = input.PageSize
	}

	users, total, err := s.userRepo.FindAll(ctx, filter)
	if err != nil {
		logger.WithLogger(ctx, s.logger).Error("Failed to list users", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to list users")
	}

	result := &UserListResult{
		Users:    make([]UserInfo, 0, len(users)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.Limit(),
	}
	for _, user := range users {
		result.Users = append(result.Users, toUserInfo(user))
	}
	return result, nil
}

// DeleteUser removes an account. Admins bound to a tenant keep their
// store database; only the account row goes away.
func (s *AuthService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainError("USER_NOT_FOUND", "User not found")
		}
		logger.WithLogger(ctx, s.logger).Error("Failed to delete user", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to delete user")
	}

	logger.WithLogger(ctx, s.logger).Info("User deleted",
		zap.String("user_id", userID.String()))
	return nil
}

func toUserInfo(user *identity.User) UserInfo {
	return UserInfo{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		Role:          string(user.Role),
		TenantCode:    user.TenantCodeOrEmpty(),
		DatabaseReady: user.DatabaseReady,
		CreatedAt:     user.CreatedAt,
	}
}
