package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/app/repository"
	"github.com/ssq-labs/commentpilot/internal/pkg/jobqueue"
	"github.com/ssq-labs/commentpilot/internal/pkg/webhook"
)

// Redispatcher re-enters a failed row on operator request.
type Redispatcher interface {
	ForceRedispatch(ctx context.Context, row *models.WebhookLog) (bool, error)
}

// QueueStats reports job queue depth.
type QueueStats interface {
	GetStats(ctx context.Context) (*jobqueue.Stats, error)
}

// OutcomeTotals reports ingest outcome totals.
type OutcomeTotals interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

// AdminWebhookController exposes webhook logs and queue state to operators.
type AdminWebhookController struct {
	logs       repository.WebhookLogRepository
	dispatcher Redispatcher
	queue      QueueStats
	outcomes   OutcomeTotals
}

func NewAdminWebhookController(logs repository.WebhookLogRepository, dispatcher Redispatcher, queue QueueStats) *AdminWebhookController {
	return &AdminWebhookController{logs: logs, dispatcher: dispatcher, queue: queue}
}

// SetOutcomeTotals adds ingest totals to the queue stats response.
func (ac *AdminWebhookController) SetOutcomeTotals(o OutcomeTotals) {
	ac.outcomes = o
}

var validStatuses = map[models.WebhookStatus]bool{
	models.WebhookStatusPending:    true,
	models.WebhookStatusProcessing: true,
	models.WebhookStatusProcessed:  true,
	models.WebhookStatusFailed:     true,
}

// HandleList lists webhook logs, newest first.
func (ac *AdminWebhookController) HandleList(c *fiber.Ctx) error {
	filter := repository.WebhookLogFilter{
		Status:    models.WebhookStatus(c.Query("status")),
		EventType: c.Query("event_type"),
		Offset:    c.QueryInt("offset", 0),
		Limit:     repository.ClampLimit(c.QueryInt("limit", 50)),
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Status != "" && !validStatuses[filter.Status] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "unknown status"})
	}
	if id := c.QueryInt("integration_id", 0); id > 0 {
		filter.IntegrationID = uint(id)
	}

	rows, total, err := ac.logs.List(c.UserContext(), filter)
	if err != nil {
		log.Errorf("[Admin] List webhook logs failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{
		"items":  rows,
		"total":  total,
		"offset": filter.Offset,
		"limit":  filter.Limit,
	})
}

// HandleGet returns one webhook log.
func (ac *AdminWebhookController) HandleGet(c *fiber.Ctx) error {
	row, status, body := ac.loadRow(c)
	if row == nil {
		return c.Status(status).JSON(body)
	}
	return c.JSON(row)
}

// HandleRetry re-dispatches a failed webhook log, permanent or not.
func (ac *AdminWebhookController) HandleRetry(c *fiber.Ctx) error {
	row, status, body := ac.loadRow(c)
	if row == nil {
		return c.Status(status).JSON(body)
	}

	ok, err := ac.dispatcher.ForceRedispatch(c.UserContext(), row)
	if errors.Is(err, webhook.ErrNotDispatchable) || (err == nil && !ok) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_retryable", "message": "only failed webhook logs can be retried", "status": row.Status})
	}
	if err != nil {
		log.Errorf("[Admin] Retry of webhook log %d failed: %v", row.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "retry_failed"})
	}

	log.Infof("[Admin] Webhook log %d re-dispatched (retry_count=%d, permanent=%t)", row.ID, row.RetryCount, row.Permanent)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"ok": true, "id": row.ID})
}

// HandleQueueStats reports queue sizes and webhook log counts per status.
func (ac *AdminWebhookController) HandleQueueStats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	counts, err := ac.logs.CountByStatus(ctx)
	if err != nil {
		log.Errorf("[Admin] Count webhook logs failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	resp := fiber.Map{"webhooks": counts}
	stats, err := ac.queue.GetStats(ctx)
	if err != nil {
		log.Warnf("[Admin] Queue stats unavailable: %v", err)
		resp["queue_error"] = err.Error()
	} else {
		resp["queue"] = stats
	}
	if ac.outcomes != nil {
		if totals, err := ac.outcomes.Snapshot(ctx); err == nil {
			resp["ingest"] = totals
		} else {
			log.Warnf("[Admin] Ingest totals unavailable: %v", err)
		}
	}
	return c.JSON(resp)
}

func (ac *AdminWebhookController) loadRow(c *fiber.Ctx) (*models.WebhookLog, int, fiber.Map) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, fiber.StatusBadRequest, fiber.Map{"error": "bad_request", "message": "invalid id"}
	}
	row, err := ac.logs.GetByID(c.UserContext(), uint(id))
	if repository.IsNotFound(err) {
		return nil, fiber.StatusNotFound, fiber.Map{"error": "not_found"}
	}
	if err != nil {
		log.Errorf("[Admin] Load webhook log %d failed: %v", id, err)
		return nil, fiber.StatusInternalServerError, fiber.Map{"error": "internal_server_error"}
	}
	return row, 0, nil
}
