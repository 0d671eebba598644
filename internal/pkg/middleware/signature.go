package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ssq-labs/commentpilot/internal/pkg/meta"
)

// MetaSignature rejects bodies whose X-Hub-Signature-256 does not match the
// app secret. Verification is skipped when no secret is configured.
func MetaSignature(appSecret string) fiber.Handler {
	if appSecret == "" {
		log.Warn("[Middleware] META_APP_SECRET not set, webhook signatures are not verified")
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return func(c *fiber.Ctx) error {
		if !meta.VerifySignature(c.Body(), c.Get(meta.SignatureHeader), appSecret) {
			log.Warnf("[Middleware] Invalid webhook signature from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature", "message": "Signature verification failed"})
		}
		return c.Next()
	}
}
