package auth

import (
	"testing"
	"time"

	"helpr/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestIssueAndVerify(t *testing.T) {
	m := NewTokenManager(testSecret, 15*time.Minute, time.Hour, "helpr")

	pair, err := m.IssuePair(42, models.RoleHelper)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshID)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	claims, err := m.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, models.RoleHelper, claims.Role)

	refresh, err := m.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshID, refresh.ID)
}

func TestTokenTypesNotInterchangeable(t *testing.T) {
	m := NewTokenManager(testSecret, time.Minute, time.Hour, "helpr")
	pair, err := m.IssuePair(1, models.RoleCustomer)
	require.NoError(t, err)

	_, err = m.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrWrongType)
	_, err = m.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestExpiredToken(t *testing.T) {
	m := NewTokenManager(testSecret, time.Minute, time.Hour, "helpr")
	issued := time.Now().Add(-2 * time.Hour)
	m.now = func() time.Time { return issued }
	pair, err := m.IssuePair(1, models.RoleCustomer)
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestInvalidTokens(t *testing.T) {
	m := NewTokenManager(testSecret, time.Minute, time.Hour, "helpr")
	other := NewTokenManager("another-secret-value-xx", time.Minute, time.Hour, "helpr")
	pair, err := other.IssuePair(1, models.RoleAdmin)
	require.NoError(t, err)

	_, err = m.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.VerifyAccess("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: models.RoleAdmin, Type: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: "helpr", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.VerifyAccess(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	bad := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Type: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "abc", Issuer: "helpr", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}})
	signed, err := bad.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = m.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
