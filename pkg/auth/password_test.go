package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	ok, rehash := CheckPassword(hash, "s3cret")
	assert.True(t, ok)
	assert.False(t, rehash)

	ok, _ = CheckPassword(hash, "wrong")
	assert.False(t, ok)

	ok, _ = CheckPassword("", "s3cret")
	assert.False(t, ok)
}

func TestCheckPassword_FlagsOutdatedCost(t *testing.T) {
	old, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, rehash := CheckPassword(string(old), "pw")
	assert.True(t, ok)
	assert.True(t, rehash)
}
