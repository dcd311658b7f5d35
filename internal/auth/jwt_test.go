package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc, err := NewJWTService("secret", "llmlab", time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	token, err := svc.CreateToken(userID)
	require.NoError(t, err)

	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	svc, err := NewJWTService("secret-one", "llmlab", time.Hour)
	require.NoError(t, err)
	other, err := NewJWTService("secret-two", "llmlab", time.Hour)
	require.NoError(t, err)

	token, err := svc.CreateToken(uuid.New())
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsExpired(t *testing.T) {
	svc, err := NewJWTService("secret", "llmlab", time.Hour)
	require.NoError(t, err)
	svc.tokenDuration = -time.Minute

	token, err := svc.CreateToken(uuid.New())
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsGarbage(t *testing.T) {
	svc, err := NewJWTService("secret", "llmlab", time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRequiresSecret(t *testing.T) {
	_, err := NewJWTService("", "llmlab", time.Hour)
	assert.Error(t, err)
}
