package adminserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueTokenRoundTrips(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, "ops-cli", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, validateToken(secret, token))
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("secret-a"), "ops-cli", time.Hour)
	require.NoError(t, err)

	err = validateToken([]byte("secret-b"), token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, "ops-cli", -time.Minute)
	require.NoError(t, err)

	err = validateToken(secret, token)
	assert.Error(t, err)
}
