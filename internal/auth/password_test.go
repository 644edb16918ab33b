package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasher(t *testing.T) {
	hasher := NewPasswordHasherWithConfig(PasswordConfig{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})

	hash, err := hasher.Hash("correct horse 1")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=8192,t=1,p=1$")

	ok, err := hasher.Verify("correct horse 1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := hasher.Hash("correct horse 1")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts should differ")

	_, err = hasher.Verify("x", "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = hasher.Verify("x", "$argon2id$v=16$m=8192,t=1,p=1$c2FsdA$a2V5")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestCheckPasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"short1", false},
		{"longenoughbutnodigits", false},
		{"12345678", false},
		{"password1", true},
		{"пароль123", true},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckPasswordStrength(tt.password))
		})
	}
}
