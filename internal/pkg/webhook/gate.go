package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/app/repository"
)

// Decision is the gate's verdict for an incoming event.
type Decision string

const (
	DecisionProcess           Decision = "process"
	DecisionSkip              Decision = "skip"
	DecisionSkipInFlight      Decision = "skip_in_flight"
	DecisionRetry             Decision = "retry"
	DecisionPermanentlyFailed Decision = "permanently_failed"
)

// Dispatchable reports whether the decision leads to a dispatch.
func (d Decision) Dispatchable() bool {
	return d == DecisionProcess || d == DecisionRetry
}

var validate = validator.New()

// Event is a normalized inbound webhook event.
type Event struct {
	WebhookID     string `validate:"required,max=191"`
	EventType     string `validate:"required,oneof=comment message"`
	IntegrationID uint   `validate:"required"`
	PostID        string `validate:"max=191"`
	Payload       []byte `validate:"required,min=1"`
}

// Validate checks the required fields and that the payload is JSON.
func (ev *Event) Validate() error {
	if err := validate.Struct(ev); err != nil {
		return err
	}
	if !json.Valid(ev.Payload) {
		return errors.New("payload is not valid JSON")
	}
	return nil
}

// Gate decides whether an event is new, a duplicate, in flight, retryable or
// permanently failed, using the webhook log as the source of truth.
type Gate struct {
	logs       repository.WebhookLogRepository
	maxRetries int
}

func NewGate(logs repository.WebhookLogRepository, maxRetries int) *Gate {
	return &Gate{logs: logs, maxRetries: maxRetries}
}

// Admit records the event if it is new and classifies it. The returned row is
// nil only for DecisionSkip caused by a hidden or racing row.
func (g *Gate) Admit(ctx context.Context, ev Event) (Decision, *models.WebhookLog, error) {
	if err := ev.Validate(); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	row := &models.WebhookLog{
		WebhookID:     ev.WebhookID,
		EventType:     ev.EventType,
		IntegrationID: ev.IntegrationID,
		PostID:        ev.PostID,
		Payload:       datatypes.JSON(ev.Payload),
	}
	if err := row.Validate(); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	created, stored, err := g.logs.CreateIfNotExists(ctx, row)
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		log.Debugf("[Gate] Insert conflict for %s/%s, treating as duplicate", ev.WebhookID, ev.EventType)
		return DecisionSkip, nil, nil
	case repository.IsNotFound(err):
		// key exists but the row is soft-deleted
		log.Debugf("[Gate] %s/%s exists but is deleted", ev.WebhookID, ev.EventType)
		return DecisionSkip, nil, nil
	case err != nil:
		return "", nil, fmt.Errorf("record webhook %s/%s: %w", ev.WebhookID, ev.EventType, err)
	}

	if created {
		log.Debugf("[Gate] New event %s/%s (id=%d)", ev.WebhookID, ev.EventType, stored.ID)
		return DecisionProcess, stored, nil
	}

	decision := Classify(stored, g.maxRetries)
	if decision == DecisionPermanentlyFailed {
		log.Warnf("[Gate] Redelivery of permanently failed event %s/%s (id=%d, retries=%d, permanent=%t): %s",
			ev.WebhookID, ev.EventType, stored.ID, stored.RetryCount, stored.Permanent, stored.ErrorText())
	} else {
		log.Debugf("[Gate] Existing event %s/%s (id=%d) status=%s -> %s", ev.WebhookID, ev.EventType, stored.ID, stored.Status, decision)
	}
	return decision, stored, nil
}

// Classify maps an existing row to a gate decision.
func Classify(row *models.WebhookLog, maxRetries int) Decision {
	switch row.Status {
	case models.WebhookStatusProcessed:
		return DecisionSkip
	case models.WebhookStatusPending, models.WebhookStatusProcessing:
		return DecisionSkipInFlight
	case models.WebhookStatusFailed:
		if row.Permanent || row.RetryCount >= maxRetries {
			return DecisionPermanentlyFailed
		}
		return DecisionRetry
	}
	return DecisionSkip
}
