package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/app/repository"
	"github.com/ssq-labs/commentpilot/internal/pkg/jobqueue"
)

// JobQueue is the part of the job queue the pipeline needs.
type JobQueue interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
	ScheduleJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}, delay time.Duration) (*jobqueue.Job, error)
}

// Dispatcher claims rows with a conditional update and hands them to the
// job queue without waiting for processing.
type Dispatcher struct {
	logs  repository.WebhookLogRepository
	queue JobQueue
	now   func() time.Time
}

func NewDispatcher(logs repository.WebhookLogRepository, queue JobQueue) *Dispatcher {
	return &Dispatcher{logs: logs, queue: queue, now: utcNow}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// Dispatch claims a pending or failed row and enqueues it. Failed rows are
// claimed with their current retry_count pinned. It returns false when
// another instance won the claim.
func (d *Dispatcher) Dispatch(ctx context.Context, row *models.WebhookLog) (bool, error) {
	switch row.Status {
	case models.WebhookStatusPending:
		return d.claimAndEnqueue(ctx, row.ID, models.WebhookStatusPending, nil)
	case models.WebhookStatusFailed:
		expected := row.RetryCount
		return d.claimAndEnqueue(ctx, row.ID, models.WebhookStatusFailed, &expected)
	}
	return false, fmt.Errorf("%w: id=%d status=%s", ErrNotDispatchable, row.ID, row.Status)
}

// Redispatch re-enters a failed row whose retry_count is still
// expectedRetryCount. Used by scheduled retries and the sweep.
func (d *Dispatcher) Redispatch(ctx context.Context, id uint, expectedRetryCount int) (bool, error) {
	return d.claimAndEnqueue(ctx, id, models.WebhookStatusFailed, &expectedRetryCount)
}

// ForceRedispatch re-enters any failed row, including permanent ones. Only
// operators trigger it.
func (d *Dispatcher) ForceRedispatch(ctx context.Context, row *models.WebhookLog) (bool, error) {
	if row.Status != models.WebhookStatusFailed {
		return false, fmt.Errorf("%w: id=%d status=%s", ErrNotDispatchable, row.ID, row.Status)
	}
	return d.claimAndEnqueue(ctx, row.ID, models.WebhookStatusFailed, nil)
}

func (d *Dispatcher) claimAndEnqueue(ctx context.Context, id uint, from models.WebhookStatus, expectedRetryCount *int) (bool, error) {
	claim := uuid.NewString()
	ok, err := d.logs.MarkProcessing(ctx, id, from, expectedRetryCount, claim, d.now())
	if err != nil {
		return false, fmt.Errorf("claim webhook log %d: %w", id, err)
	}
	if !ok {
		log.Debugf("[Dispatcher] Lost claim on webhook log %d (from=%s)", id, from)
		return false, nil
	}

	payload := jobqueue.WebhookJobPayload{WebhookLogID: id, ClaimToken: claim}
	if expectedRetryCount != nil {
		payload.RetryCount = *expectedRetryCount
	}
	if _, err := d.queue.EnqueueJob(ctx, jobqueue.JobTypeProcessWebhook, payload.ToMap()); err != nil {
		// the sweep picks the row up if this revert fails too
		if _, rerr := d.logs.RevertToPending(ctx, id, claim); rerr != nil {
			log.Errorf("[Dispatcher] Failed to revert webhook log %d after enqueue error: %v", id, rerr)
		}
		return false, fmt.Errorf("enqueue webhook log %d: %w", id, err)
	}

	log.Debugf("[Dispatcher] Dispatched webhook log %d", id)
	return true, nil
}
