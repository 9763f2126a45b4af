package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                 "test-secret-key-that-is-long-enough",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: 24 * time.Hour,
		Issuer:                 "test",
	})
}

func TestGenerateTokenPair(t *testing.T) {
	svc := newTestService()
	userID := uuid.New()

	pair, err := svc.GenerateTokenPair(GenerateTokenInput{
		UserID:     userID,
		Email:      "owner@acme.com",
		Role:       "admin",
		TenantCode: "acme",
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)

	t.Run("access token carries identity claims", func(t *testing.T) {
		claims, err := svc.ValidateAccessToken(pair.AccessToken)
		require.NoError(t, err)

		assert.Equal(t, userID.String(), claims.UserID)
		assert.Equal(t, "owner@acme.com", claims.Email)
		assert.Equal(t, "admin", claims.Role)
		assert.Equal(t, "acme", claims.TenantCode)
		assert.True(t, claims.IsAdmin())

		parsed, err := claims.GetUserUUID()
		require.NoError(t, err)
		assert.Equal(t, userID, parsed)
	})

	t.Run("refresh token is rejected as access token", func(t *testing.T) {
		_, err := svc.ValidateAccessToken(pair.RefreshToken)
		assert.Error(t, err)
	})

	t.Run("refresh token validates as refresh", func(t *testing.T) {
		claims, err := svc.ValidateRefreshToken(pair.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, TokenTypeRefresh, claims.TokenType)
	})
}

func TestValidateAccessToken(t *testing.T) {
	svc := newTestService()

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := svc.ValidateAccessToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects token signed with another secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{
			Secret:                 "a-completely-different-secret-value",
			AccessTokenExpiration:  15 * time.Minute,
			RefreshTokenExpiration: 24 * time.Hour,
			Issuer:                 "test",
		})
		pair, err := other.GenerateTokenPair(GenerateTokenInput{
			UserID: uuid.New(),
			Role:   "customer",
		})
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		expired := NewJWTService(config.JWTConfig{
			Secret:                 "test-secret-key-that-is-long-enough",
			AccessTokenExpiration:  -time.Minute,
			RefreshTokenExpiration: 24 * time.Hour,
			Issuer:                 "test",
		})
		pair, err := expired.GenerateTokenPair(GenerateTokenInput{
			UserID: uuid.New(),
			Role:   "customer",
		})
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("customer token has no tenant code", func(t *testing.T) {
		pair, err := svc.GenerateTokenPair(GenerateTokenInput{
			UserID: uuid.New(),
			Email:  "jane@example.com",
			Role:   "customer",
		})
		require.NoError(t, err)

		claims, err := svc.ValidateAccessToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Empty(t, claims.TenantCode)
		assert.False(t, claims.IsAdmin())
	})
}
