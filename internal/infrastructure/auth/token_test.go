package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestIssueAndValidate(t *testing.T) {
	svc := NewTokenService(secret, time.Hour)

	token, err := svc.Issue("u1", "notifications")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, []string{"notifications"}, claims.Channels)
}

func TestValidateRejects(t *testing.T) {
	svc := NewTokenService(secret, time.Hour)

	other, err := NewTokenService("another-secret-another-secret-xx", time.Hour).Issue("u1")
	require.NoError(t, err)

	expiredSvc := NewTokenService(secret, time.Hour)
	expiredSvc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredSvc.Issue("u1")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Validate("")
	assert.ErrorIs(t, err, ErrMissingToken)

	for name, token := range map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": other,
		"expired":      expired,
		"alg none":     none,
	} {
		_, err := svc.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestAuthorize(t *testing.T) {
	svc := NewTokenService(secret, time.Hour)

	scoped, err := svc.Issue("u1", "notifications")
	require.NoError(t, err)
	all, err := svc.Issue("u1")
	require.NoError(t, err)

	_, err = svc.Authorize(scoped, "u1", "notifications")
	assert.NoError(t, err)

	_, err = svc.Authorize(scoped, "u1", "sales")
	assert.ErrorIs(t, err, ErrChannelDenied)

	_, err = svc.Authorize(scoped, "u2", "notifications")
	assert.ErrorIs(t, err, ErrUserMismatch)

	_, err = svc.Authorize(all, "u1", "sales")
	assert.NoError(t, err)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc"))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestAuthorizeRequest(t *testing.T) {
	svc := NewTokenService(secret, time.Hour)
	token, err := svc.Issue("u1", "notifications")
	require.NoError(t, err)

	header := httptest.NewRequest(http.MethodGet, "/ws/notifications/u1", nil)
	header.Header.Set("Authorization", "Bearer "+token)
	assert.NoError(t, svc.AuthorizeRequest(header, "u1", "notifications"))

	query := httptest.NewRequest(http.MethodGet, "/sse/notifications/u1?token="+token, nil)
	assert.NoError(t, svc.AuthorizeRequest(query, "u1", "notifications"))

	bare := httptest.NewRequest(http.MethodGet, "/ws/notifications/u1", nil)
	err = svc.AuthorizeRequest(bare, "u1", "notifications")
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(err))

	err = svc.AuthorizeRequest(query, "u1", "sales")
	assert.Equal(t, http.StatusForbidden, HTTPStatus(err))

	var disabled *TokenService
	assert.NoError(t, disabled.AuthorizeRequest(bare, "u1", "notifications"))
}
