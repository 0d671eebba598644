// Package apiv1 binds the v1 HTTP API to its controllers.
package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ssq-labs/commentpilot/app/controllers"
)

// Pong is the ping response.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface lists the operations of openapi.yml.
type ServerInterface interface {
	GetPing(c *fiber.Ctx) error
	VerifyMetaWebhook(c *fiber.Ctx) error
	ReceiveMetaWebhook(c *fiber.Ctx) error
	ListWebhookLogs(c *fiber.Ctx) error
	GetWebhookLog(c *fiber.Ctx) error
	RetryWebhookLog(c *fiber.Ctx) error
	GetQueueStats(c *fiber.Ctx) error
	ListDmRules(c *fiber.Ctx) error
	CreateDmRule(c *fiber.Ctx) error
	GetDmRule(c *fiber.Ctx) error
	UpdateDmRule(c *fiber.Ctx) error
	DeleteDmRule(c *fiber.Ctx) error
}

// APIServer implements ServerInterface on top of the controllers.
type APIServer struct {
	webhooks *controllers.WebhookController
	admin    *controllers.AdminWebhookController
	rules    *controllers.AdminDmRuleController
}

func NewAPIServer(webhooks *controllers.WebhookController, admin *controllers.AdminWebhookController, rules *controllers.AdminDmRuleController) *APIServer {
	return &APIServer{webhooks: webhooks, admin: admin, rules: rules}
}

func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

func (s *APIServer) VerifyMetaWebhook(c *fiber.Ctx) error {
	return s.webhooks.HandleVerify(c)
}

func (s *APIServer) ReceiveMetaWebhook(c *fiber.Ctx) error {
	return s.webhooks.HandleReceive(c)
}

func (s *APIServer) ListWebhookLogs(c *fiber.Ctx) error {
	return s.admin.HandleList(c)
}

func (s *APIServer) GetWebhookLog(c *fiber.Ctx) error {
	return s.admin.HandleGet(c)
}

func (s *APIServer) RetryWebhookLog(c *fiber.Ctx) error {
	return s.admin.HandleRetry(c)
}

func (s *APIServer) GetQueueStats(c *fiber.Ctx) error {
	return s.admin.HandleQueueStats(c)
}

func (s *APIServer) ListDmRules(c *fiber.Ctx) error {
	return s.rules.HandleList(c)
}

func (s *APIServer) CreateDmRule(c *fiber.Ctx) error {
	return s.rules.HandleCreate(c)
}

func (s *APIServer) GetDmRule(c *fiber.Ctx) error {
	return s.rules.HandleGet(c)
}

func (s *APIServer) UpdateDmRule(c *fiber.Ctx) error {
	return s.rules.HandleUpdate(c)
}

func (s *APIServer) DeleteDmRule(c *fiber.Ctx) error {
	return s.rules.HandleDelete(c)
}

// Middlewares are the per-group stages RegisterHandlers installs in front of
// the handlers.
type Middlewares struct {
	Webhook []fiber.Handler
	Admin   []fiber.Handler
}

// RegisterHandlers mounts the operations on a router rooted at /api/v1.
func RegisterHandlers(router fiber.Router, si ServerInterface, mw Middlewares) {
	router.Get("/ping", si.GetPing)

	hooks := router.Group("/webhooks")
	hooks.Get("/meta", si.VerifyMetaWebhook)
	hooks.Post("/meta", append(mw.Webhook, si.ReceiveMetaWebhook)...)

	admin := router.Group("/admin", mw.Admin...)
	admin.Get("/webhooks", si.ListWebhookLogs)
	admin.Get("/webhooks/:id", si.GetWebhookLog)
	admin.Post("/webhooks/:id/retry", si.RetryWebhookLog)
	admin.Get("/queue/stats", si.GetQueueStats)
	admin.Get("/dm-rules", si.ListDmRules)
	admin.Post("/dm-rules", si.CreateDmRule)
	admin.Get("/dm-rules/:id", si.GetDmRule)
	admin.Put("/dm-rules/:id", si.UpdateDmRule)
	admin.Delete("/dm-rules/:id", si.DeleteDmRule)
}
