package router

import (
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/ssq-labs/commentpilot/internal/api/v1"
	"github.com/ssq-labs/commentpilot/internal/pkg/config"
	"github.com/ssq-labs/commentpilot/internal/pkg/middleware"
)

// ApiRouter mounts the v1 API under /api/v1.
type ApiRouter struct {
	server    apiv1.ServerInterface
	validate  fiber.Handler
	cfg       config.Server
	appSecret string
	storage   fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	mw := apiv1.Middlewares{
		Webhook: []fiber.Handler{middleware.MetaSignature(h.appSecret)},
		Admin:   []fiber.Handler{middleware.AdminAPIKey(h.cfg.AdminAPIKeyHash)},
	}
	if h.cfg.WebhookRatePerMin > 0 {
		mw.Webhook = append([]fiber.Handler{middleware.RateLimitBySource(h.cfg.WebhookRatePerMin)}, mw.Webhook...)
	}
	if h.cfg.AdminRatePerMin > 0 {
		mw.Admin = append([]fiber.Handler{limiter.New(limiter.Config{
			Max:        h.cfg.AdminRatePerMin,
			Expiration: time.Minute,
			Storage:    h.storage,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
			},
		})}, mw.Admin...)
	}
	if h.validate != nil {
		mw.Admin = append(mw.Admin, h.validate)
	}

	apiv1.RegisterHandlers(api.Group("/v1"), h.server, mw)
}

// NewApiRouter builds the API router. A nil doc disables request validation
// and a nil storage keeps limiter counters in memory.
func NewApiRouter(server apiv1.ServerInterface, doc *openapi3.T, cfg config.Server, appSecret string, storage fiber.Storage) (*ApiRouter, error) {
	r := &ApiRouter{server: server, cfg: cfg, appSecret: appSecret, storage: storage}
	if doc != nil {
		validate, err := apiv1.RequestValidator(doc)
		if err != nil {
			return nil, err
		}
		r.validate = validate
	}
	return r, nil
}

// NewRedisApiRouter is NewApiRouter with limiter counters shared in Redis.
func NewRedisApiRouter(server apiv1.ServerInterface, doc *openapi3.T, cfg config.Server, appSecret string) (*ApiRouter, error) {
	return NewApiRouter(server, doc, cfg, appSecret, newLimiterStorage())
}
