package middlewares

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/common/response"
	"github.com/c14220110/clinic-queue/pkg/utils"
)

// ContextKeyClaims is the echo context key holding *utils.Claims.
const ContextKeyClaims = "claims"

// JWTMiddleware requires a valid "Authorization: Bearer <token>" header.
func JWTMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return response.Error(c, http.StatusUnauthorized, "Authorization header missing")
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return response.Error(c, http.StatusUnauthorized, "Invalid authorization header")
			}
			claims, err := utils.ValidateJWTToken(secret, strings.TrimSpace(parts[1]))
			if err != nil {
				return response.Error(c, http.StatusUnauthorized, "Invalid token")
			}
			c.Set(ContextKeyClaims, claims)
			return next(c)
		}
	}
}

// ClaimsFrom returns the claims stored by JWTMiddleware.
func ClaimsFrom(c echo.Context) (*utils.Claims, bool) {
	claims, ok := c.Get(ContextKeyClaims).(*utils.Claims)
	return claims, ok && claims != nil
}

// RequireRole lets the request through when the token's role is one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFrom(c)
			if !ok {
				return response.Error(c, http.StatusUnauthorized, "Missing or invalid JWT claims")
			}
			if !allowed[claims.Role] {
				return response.Error(c, http.StatusForbidden, "You do not have access to this resource")
			}
			return next(c)
		}
	}
}
