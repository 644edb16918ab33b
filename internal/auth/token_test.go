package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager(t *testing.T) {
	userID := uuid.New()

	t.Run("round trip", func(t *testing.T) {
		tm := NewTokenManager("test_secret", "tenantkit", time.Hour)

		token, expiresAt, err := tm.Generate(userID, "alice@example.com", "admin")
		require.NoError(t, err)
		assert.True(t, expiresAt.After(time.Now()))

		id, err := tm.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, userID, id.UserID)
		assert.Equal(t, "alice@example.com", id.Email)
		assert.Equal(t, "admin", id.Role)
	})

	t.Run("expired token", func(t *testing.T) {
		tm := NewTokenManager("test_secret", "tenantkit", time.Hour)
		tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

		token, _, err := tm.Generate(userID, "alice@example.com", "user")
		require.NoError(t, err)

		tm.now = time.Now
		_, err = tm.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewTokenManager("one", "tenantkit", time.Hour).Generate(userID, "a@b.c", "user")
		require.NoError(t, err)

		_, err = NewTokenManager("two", "tenantkit", time.Hour).Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, _, err := NewTokenManager("s", "other", time.Hour).Generate(userID, "a@b.c", "user")
		require.NoError(t, err)

		_, err = NewTokenManager("s", "tenantkit", time.Hour).Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects none algorithm", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    "tenantkit",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = NewTokenManager("s", "tenantkit", time.Hour).Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
