package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/reelmatch/reelmatch/internal/auth"
)

func TestTokenRoundTrip(t *testing.T) {
	svc, err := auth.NewService("test-secret", time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	token, err := svc.IssueToken(userID, "operator", true)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, "operator", claims.Username)
	require.True(t, claims.IsAdmin)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc, err := auth.NewService("test-secret", time.Nanosecond)
	require.NoError(t, err)

	token, err := svc.IssueToken(uuid.New(), "operator", false)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = svc.ValidateToken(token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestWrongSecretRejected(t *testing.T) {
	issuer, err := auth.NewService("secret-a", time.Hour)
	require.NoError(t, err)
	verifier, err := auth.NewService("secret-b", time.Hour)
	require.NoError(t, err)

	token, err := issuer.IssueToken(uuid.New(), "operator", false)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestEmptySecretRefused(t *testing.T) {
	_, err := auth.NewService("", time.Hour)
	require.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery")
	require.NoError(t, err)
	require.True(t, auth.CheckPassword(hash, "correct horse battery"))
	require.False(t, auth.CheckPassword(hash, "wrong"))
}

func TestValidatePassword(t *testing.T) {
	require.ErrorIs(t, auth.ValidatePassword("short", 8, false), auth.ErrWeakPassword)
	require.NoError(t, auth.ValidatePassword("longenough", 8, false))
	require.ErrorIs(t, auth.ValidatePassword("alllowercase", 8, true), auth.ErrWeakPassword)
	require.NoError(t, auth.ValidatePassword("Str0ng-pass", 8, true))
}

func TestNormalizeUsername(t *testing.T) {
	require.Equal(t, "operator", auth.NormalizeUsername("  Operator "))
}
