package middleware

import (
	"net/http"
	"strings"

	"github.com/vibast-solutions/ms-go-identity/app/token"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type accessTokenVerifier interface {
	VerifyAccess(tokenString string) (*token.Claims, error)
}

type AuthMiddleware struct {
	codec accessTokenVerifier
}

func NewAuthMiddleware(codec accessTokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{codec: codec}
}

// RequireAuth validates the bearer access token locally; no storage
// round-trip happens here. The subject is exposed to handlers as
// "user_id" on the echo context.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			logrus.Debug("Missing authorization header")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "missing authorization header",
			})
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			logrus.Debug("Invalid authorization header format")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid authorization header format",
			})
		}

		claims, err := m.codec.VerifyAccess(parts[1])
		if err != nil {
			logrus.Debug("Invalid or expired access token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid or expired token",
			})
		}

		c.Set("user_id", claims.Subject)
		return next(c)
	}
}
