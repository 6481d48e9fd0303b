package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func mintToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func doRequest(authHeader string) *httptest.ResponseRecorder {
	e := echo.New()
	e.GET("/probe", func(c echo.Context) error {
		uid, _ := c.Get("user_id").(uint64)
		role, _ := c.Get("role").(string)
		return c.JSON(http.StatusOK, echo.Map{"user_id": uid, "role": role})
	}, JWTAuth(testSecret))

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	token := mintToken(t, testSecret, jwt.MapClaims{
		"sub":  float64(42),
		"role": "MEMBER",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	rec := doRequest("Bearer " + token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":42`)
	assert.Contains(t, rec.Body.String(), `"role":"MEMBER"`)
}

func TestJWTAuthAcceptsStringSubject(t *testing.T) {
	token := mintToken(t, testSecret, jwt.MapClaims{
		"sub":  "42",
		"role": "ADMIN",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	rec := doRequest("Bearer " + token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":42`)
}

func TestJWTAuthRejectsMissingHeader(t *testing.T) {
	rec := doRequest("")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuthRejectsWrongSecret(t *testing.T) {
	token := mintToken(t, "some-other-secret", jwt.MapClaims{
		"sub": float64(42),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	rec := doRequest("Bearer " + token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuthRejectsExpiredToken(t *testing.T) {
	token := mintToken(t, testSecret, jwt.MapClaims{
		"sub": float64(42),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	rec := doRequest("Bearer " + token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuthRejectsNonNumericSubject(t *testing.T) {
	token := mintToken(t, testSecret, jwt.MapClaims{
		"sub": "not-a-number",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	rec := doRequest("Bearer " + token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	seed := func(role string) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				if role != "" {
					c.Set("role", role)
				}
				return next(c)
			}
		}
	}
	e.GET("/admin", handler, seed("ADMIN"), RequireRole("ADMIN", "LIBRARIAN"))
	e.GET("/member", handler, seed("MEMBER"), RequireRole("ADMIN", "LIBRARIAN"))
	e.GET("/norole", handler, seed(""), RequireRole("ADMIN"))

	for path, want := range map[string]int{
		"/admin":  http.StatusOK,
		"/member": http.StatusForbidden,
		"/norole": http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "path %s", path)
	}
}
