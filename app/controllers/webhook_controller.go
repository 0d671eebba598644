package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/app/repository"
	"github.com/ssq-labs/commentpilot/internal/pkg/archive"
	"github.com/ssq-labs/commentpilot/internal/pkg/meta"
	"github.com/ssq-labs/commentpilot/internal/pkg/webhook"
)

// Ingester records and dispatches one normalized event.
type Ingester interface {
	Ingest(ctx context.Context, ev webhook.Event) (webhook.Decision, *models.WebhookLog, error)
}

// OutcomeRecorder accumulates ingest outcome totals.
type OutcomeRecorder interface {
	Add(ctx context.Context, deltas map[string]int) error
}

// IngestSummary is the response body of an accepted notification.
type IngestSummary struct {
	OK         bool `json:"ok"`
	Accepted   int  `json:"accepted"`
	Duplicates int  `json:"duplicates"`
	Skipped    int  `json:"skipped"`
	Rejected   int  `json:"rejected"`
}

// WebhookController serves the Meta webhook endpoint.
type WebhookController struct {
	verifyToken   string
	integrations  repository.IntegrationRepository
	pipeline      Ingester
	archive       archive.Enqueuer
	outcomes      OutcomeRecorder
	ingestTimeout time.Duration
}

func NewWebhookController(verifyToken string, integrations repository.IntegrationRepository, pipeline Ingester, ingestTimeout time.Duration) *WebhookController {
	return &WebhookController{
		verifyToken:   verifyToken,
		integrations:  integrations,
		pipeline:      pipeline,
		ingestTimeout: ingestTimeout,
	}
}

// SetArchiveQueue enables archiving of newly recorded payloads.
func (wc *WebhookController) SetArchiveQueue(q archive.Enqueuer) {
	wc.archive = q
}

// SetOutcomeRecorder enables outcome totals.
func (wc *WebhookController) SetOutcomeRecorder(r OutcomeRecorder) {
	wc.outcomes = r
}

// HandleVerify answers Meta's subscription handshake.
func (wc *WebhookController) HandleVerify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" || challenge == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "hub.mode, hub.verify_token and hub.challenge are required"})
	}
	if mode != "subscribe" || token != wc.verifyToken {
		log.Warnf("[Webhook] Verification rejected (mode=%s)", mode)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Verification failed"})
	}

	log.Info("[Webhook] Subscription verified")
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusOK).SendString(challenge)
}

// HandleReceive records every event of a notification and dispatches new
// ones. Any storage or queue failure answers 500 so Meta redelivers; already
// recorded events are deduplicated on the next delivery.
func (wc *WebhookController) HandleReceive(c *fiber.Ctx) error {
	n, err := meta.ParseNotification(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}

	batch := meta.Normalize(n)
	summary := IngestSummary{OK: true, Rejected: batch.Rejected, Skipped: batch.Ignored}

	ctx, cancel := context.WithTimeout(c.UserContext(), wc.ingestTimeout)
	defer cancel()

	accounts := make(map[string]*models.Integration)
	for _, ev := range batch.Events {
		integration, ok := accounts[ev.AccountID]
		if !ok {
			integration, err = wc.integrations.GetByPlatformAccount(ctx, models.PlatformInstagram, ev.AccountID)
			if err != nil && !repository.IsNotFound(err) {
				log.Errorf("[Webhook] Integration lookup for %s failed: %v", ev.AccountID, err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "integration_lookup_failed"})
			}
			accounts[ev.AccountID] = integration
		}
		if integration == nil {
			log.Debugf("[Webhook] No integration for account %s, skipping %s", ev.AccountID, ev.WebhookID)
			summary.Skipped++
			continue
		}

		payload, err := ev.Payload()
		if err != nil {
			summary.Rejected++
			continue
		}

		decision, row, err := wc.pipeline.Ingest(ctx, webhook.Event{
			WebhookID:     ev.WebhookID,
			EventType:     ev.Type,
			IntegrationID: integration.ID,
			PostID:        ev.PostID,
			Payload:       payload,
		})
		if errors.Is(err, webhook.ErrInvalidEvent) {
			log.Warnf("[Webhook] Rejected %s/%s: %v", ev.WebhookID, ev.Type, err)
			summary.Rejected++
			continue
		}
		if err != nil {
			log.Errorf("[Webhook] Ingest of %s/%s failed: %v", ev.WebhookID, ev.Type, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ingest_failed"})
		}

		switch decision {
		case webhook.DecisionProcess, webhook.DecisionRetry:
			summary.Accepted++
			if decision == webhook.DecisionProcess && row != nil {
				wc.archivePayload(ctx, row.ID)
			}
		case webhook.DecisionSkipInFlight, webhook.DecisionSkip, webhook.DecisionPermanentlyFailed:
			summary.Duplicates++
		}
	}

	log.Infof("[Webhook] Notification handled: accepted=%d duplicates=%d skipped=%d rejected=%d",
		summary.Accepted, summary.Duplicates, summary.Skipped, summary.Rejected)
	wc.recordOutcomes(ctx, summary)
	return c.Status(fiber.StatusOK).JSON(summary)
}

func (wc *WebhookController) archivePayload(ctx context.Context, id uint) {
	if wc.archive == nil {
		return
	}
	if err := archive.Enqueue(ctx, wc.archive, id); err != nil {
		log.Warnf("[Webhook] Failed to queue archive of webhook log %d: %v", id, err)
	}
}

func (wc *WebhookController) recordOutcomes(ctx context.Context, s IngestSummary) {
	if wc.outcomes == nil {
		return
	}
	err := wc.outcomes.Add(ctx, map[string]int{
		"accepted":   s.Accepted,
		"duplicates": s.Duplicates,
		"skipped":    s.Skipped,
		"rejected":   s.Rejected,
	})
	if err != nil {
		log.Warnf("[Webhook] Failed to record outcomes: %v", err)
	}
}
