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

func TestExtractAccessToken(t *testing.T) {
	t.Run("Cookie Preferred", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie_token"})
		// Add header as well to ensure cookie takes precedence
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "cookie_token", token)
	})

	t.Run("Header Fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "header_token", token)
	})

	t.Run("Empty Cookie Falls Back to Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: ""})
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "header_token", token)
	})

	t.Run("No Token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		token := ExtractAccessToken(req)
		assert.Empty(t, token)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic user:pass")

		token := ExtractAccessToken(req)
		assert.Empty(t, token)
	})
}

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("jwt-secret")

	t.Run("RoundTrip", func(t *testing.T) {
		tok, err := IssueToken(secret, "ops-1", RoleAdmin, time.Hour)
		require.NoError(t, err)

		claims, err := ParseToken(secret, tok)
		require.NoError(t, err)
		assert.Equal(t, "ops-1", claims.UserID)
		assert.Equal(t, RoleAdmin, claims.Role)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		tok, err := IssueToken(secret, "ops-1", RoleAdmin, time.Hour)
		require.NoError(t, err)

		_, err = ParseToken([]byte("other"), tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		tok, err := IssueToken(secret, "ops-1", RoleAdmin, -time.Minute)
		require.NoError(t, err)

		_, err = ParseToken(secret, tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("RejectsNoneAlg", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleAdmin}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = ParseToken(secret, tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := ParseToken(secret, "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
