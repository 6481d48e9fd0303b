package middleware // reusable HTTP middleware shared by the booking routes

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// JWTAuth returns an Echo middleware that validates a Bearer access
// token issued by the upstream auth service and injects the subject and
// role claims into the request context.  Handlers read the
// already-validated identity via c.Get("user_id") (uint64) and
// c.Get("role") (string); this service never issues tokens itself.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			userID, ok := subjectID(claims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
			}
			role, _ := claims["role"].(string)

			c.Set("user_id", userID)
			c.Set("role", role)
			return next(c)
		}
	}
}

// subjectID extracts the numeric user id from the sub claim.  Tokens
// encode it either as a JSON number or a decimal string depending on
// the issuer version.
func subjectID(claims jwt.MapClaims) (uint64, bool) {
	switch v := claims["sub"].(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
