package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	config "github.com/pagecast/pagecast/configs"
)

type AuthMiddleware struct {
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// AuthMiddleware checks the service API key. User identity itself comes
// from the upstream dashboard via the X-User-ID header; account management
// lives outside this service.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.cfg.APIKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid API key",
			})
		}

		c.Locals("user_id", c.Get("X-User-ID"))
		return c.Next()
	}
}
