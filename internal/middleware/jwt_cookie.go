package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/oldbyju/platform_backend/internal/utils"
)

const AccessCookie = "ob_access"
const RefreshCookie = "ob_refresh"

// JWTFromCookie reads the access token from the auth cookie (falling back to
// a bearer header) and stores the validated claims in locals.
func JWTFromCookie(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Cookies(AccessCookie)
		if tokenStr == "" {
			auth := c.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				tokenStr = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if tokenStr == "" {
			return fiber.ErrUnauthorized
		}

		claims, err := utils.ParseToken(secret, tokenStr)
		if err != nil || claims.Kind != "access" {
			return fiber.ErrUnauthorized
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}
