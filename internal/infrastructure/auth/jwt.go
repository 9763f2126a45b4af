package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/provenant/backend/internal/infrastructure/config"
)

// TokenType distinguishes access from refresh tokens. A refresh token
// presented on an API route fails validation even when its signature
// checks out.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("invalid token type")
)

// Claims are the JWT claims issued by this service. TenantCode is set
// only for admin users; the tenant middleware ignores it for
// customers.
type Claims struct {
	jwt.RegisteredClaims
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	TenantCode string    `json:"tenant_code,omitempty"`
	TokenType  TokenType `json:"token_type"`
}

// GetUserUUID parses the user ID claim.
func (c *Claims) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID)
}

// IsAdmin reports whether the claims belong to an admin user.
func (c *Claims) IsAdmin() bool {
	return c.Role == "admin"
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	TokenType             string    `json:"token_type"` // Bearer
}

// JWTService signs and validates HS256 token pairs. Access and refresh
// tokens use separate secrets so a leaked access secret cannot mint
// refresh tokens.
type JWTService struct {
	accessSecret      []byte
	refreshSecret     []byte
	accessExpiration  time.Duration
	refreshExpiration time.Duration
	issuer            string
}

// NewJWTService creates a JWT service from configuration. An empty
// refresh secret falls back to the access secret.
func NewJWTService(cfg config.JWTConfig) *JWTService {
	refreshSecret := cfg.RefreshSecret
	if refreshSecret == "" {
		refreshSecret = cfg.Secret
	}
	return &JWTService{
		accessSecret:      []byte(cfg.Secret),
		refreshSecret:     []byte(refreshSecret),
		accessExpiration:  cfg.AccessTokenExpiration,
		refreshExpiration: cfg.RefreshTokenExpiration,
		issuer:            cfg.Issuer,
	}
}

// GenerateTokenInput identifies the user a token pair is minted for.
type GenerateTokenInput struct {
	UserID     uuid.UUID
	Email      string
	Role       string
	TenantCode string
}

// GenerateTokenPair mints an access and a refresh token. The refresh
// token carries only the user ID; profile claims are re-read from the
// database on refresh.
func (s *JWTService) GenerateTokenPair(input GenerateTokenInput) (*TokenPair, error) {
	now := time.Now()

	access := &Claims{
		RegisteredClaims: s.registeredClaims(input.UserID, now, s.accessExpiration),
		UserID:           input.UserID.String(),
		Email:            input.Email,
		Role:             input.Role,
		TenantCode:       input.TenantCode,
		TokenType:        TokenTypeAccess,
	}
	accessToken, err := s.sign(access, s.accessSecret)
	if err != nil {
		return nil, err
	}

	refresh := &Claims{
		RegisteredClaims: s.registeredClaims(input.UserID, now, s.refreshExpiration),
		UserID:           input.UserID.String(),
		TokenType:        TokenTypeRefresh,
	}
	refreshToken, err := s.sign(refresh, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresAt:  now.Add(s.accessExpiration),
		RefreshTokenExpiresAt: now.Add(s.refreshExpiration),
		TokenType:             "Bearer",
	}, nil
}

func (s *JWTService) registeredClaims(userID uuid.UUID, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Issuer:    s.issuer,
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{s.issuer},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

func (s *JWTService) sign(claims *Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateAccessToken parses and verifies an access token.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, s.accessSecret, TokenTypeAccess)
}

// ValidateRefreshToken parses and verifies a refresh token.
func (s *JWTService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, s.refreshSecret, TokenTypeRefresh)
}

func (s *JWTService) validate(tokenString string, secret []byte, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != want {
		return nil, ErrInvalidTokenType
	}
	return claims, nil
}
