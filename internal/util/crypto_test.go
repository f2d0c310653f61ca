package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCheckPasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-key"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("accepts matching key", func(t *testing.T) {
		assert.True(t, CheckPasswordHash("admin-key", string(hash)))
	})

	t.Run("rejects wrong key", func(t *testing.T) {
		assert.False(t, CheckPasswordHash("other", string(hash)))
	})

	t.Run("rejects malformed hash", func(t *testing.T) {
		assert.False(t, CheckPasswordHash("admin-key", "not-a-hash"))
	})
}

func TestIsBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("x"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, IsBcryptHash(string(hash)))
	assert.False(t, IsBcryptHash("plaintext"))
	assert.False(t, IsBcryptHash(""))
}
