package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := SignAccessToken(testSecret, "user-123", "student", 15)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "student", claims.Role)
	assert.Equal(t, "access", claims.Kind)
}

func TestRefreshTokenKind(t *testing.T) {
	token, err := SignRefreshToken(testSecret, "user-123", "teacher", 10080)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "refresh", claims.Kind)
	assert.Equal(t, "teacher", claims.Role)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := SignAccessToken(testSecret, "user-123", "student", 15)
	require.NoError(t, err)

	_, err = ParseToken("other-secret", token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := SignAccessToken(testSecret, "user-123", "student", -1)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, token)
	assert.Error(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := ParseToken(testSecret, "not.a.token")
	assert.Error(t, err)
}
