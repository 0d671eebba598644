package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/app/repository"
)

// Handler runs the business logic for one claimed webhook log. The returned
// value is stored as the row's result. Errors are transient unless
// IsPermanent reports otherwise. row.ClaimToken holds the token of the
// running attempt.
type Handler interface {
	Handle(ctx context.Context, row *models.WebhookLog) (interface{}, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, row *models.WebhookLog) (interface{}, error)

func (f HandlerFunc) Handle(ctx context.Context, row *models.WebhookLog) (interface{}, error) {
	return f(ctx, row)
}

// Processor executes queued rows and records their terminal state.
type Processor struct {
	logs    repository.WebhookLogRepository
	handler Handler
	backoff *Backoff
	now     func() time.Time
}

func NewProcessor(logs repository.WebhookLogRepository, handler Handler, backoff *Backoff) *Processor {
	return &Processor{logs: logs, handler: handler, backoff: backoff, now: utcNow}
}

// Process runs the handler for the row with id when claim is still the
// row's claim token. Rows that are not in processing, and jobs whose claim
// was already started or superseded, are left alone. Only storage errors
// are returned; handler failures end up in the row.
func (p *Processor) Process(ctx context.Context, id uint, claim string) error {
	row, err := p.logs.GetByID(ctx, id)
	if repository.IsNotFound(err) {
		log.Warnf("[Processor] Webhook log %d not found, dropping job", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load webhook log %d: %w", id, err)
	}
	if row.Status != models.WebhookStatusProcessing {
		log.Debugf("[Processor] Webhook log %d is %s, nothing to do", id, row.Status)
		return nil
	}

	run := uuid.NewString()
	ok, err := p.logs.StartAttempt(ctx, id, claim, run, p.now())
	if err != nil {
		return fmt.Errorf("start webhook log %d: %w", id, err)
	}
	if !ok {
		log.Warnf("[Processor] Webhook log %d claim %q already started or superseded, dropping job", id, claim)
		return nil
	}
	row.ClaimToken = run

	result, herr := p.handler.Handle(ctx, row)
	if herr != nil {
		return p.fail(ctx, row, herr)
	}

	var encoded []byte
	if result != nil {
		if encoded, err = json.Marshal(result); err != nil {
			return p.fail(ctx, row, Permanentf("encode result: %v", err))
		}
	}

	ok, err = p.logs.MarkProcessed(ctx, row.ID, row.ClaimToken, encoded, p.now())
	if err != nil {
		return fmt.Errorf("mark webhook log %d processed: %w", row.ID, err)
	}
	if !ok {
		log.Warnf("[Processor] Webhook log %d left processing before completion was recorded", row.ID)
		return nil
	}
	log.Infof("[Processor] Webhook log %d processed (%s %s)", row.ID, row.EventType, row.WebhookID)
	return nil
}

func (p *Processor) fail(ctx context.Context, row *models.WebhookLog, cause error) error {
	permanent := IsPermanent(cause)
	log.Errorf("[Processor] Webhook log %d failed (permanent=%t): %v", row.ID, permanent, cause)

	ok, err := p.logs.MarkFailed(ctx, row.ID, row.ClaimToken, cause.Error(), permanent, p.now())
	if err != nil {
		return fmt.Errorf("mark webhook log %d failed: %w", row.ID, err)
	}
	if !ok {
		log.Warnf("[Processor] Webhook log %d left processing before the failure was recorded", row.ID)
		return nil
	}

	n := row.RetryCount
	if !permanent {
		n++
	}
	if _, err := p.backoff.OnFailure(ctx, row.ID, n, permanent); err != nil {
		log.Errorf("[Processor] %v", err)
	}
	return nil
}
