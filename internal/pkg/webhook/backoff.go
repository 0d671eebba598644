package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/internal/pkg/jobqueue"
)

// Backoff decides whether a failed row gets another attempt and when.
type Backoff struct {
	base       time.Duration
	max        time.Duration
	maxRetries int
	queue      JobQueue
}

func NewBackoff(base, max time.Duration, maxRetries int, queue JobQueue) *Backoff {
	return &Backoff{base: base, max: max, maxRetries: maxRetries, queue: queue}
}

// Delay returns min(base * 2^n, max).
func (b *Backoff) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := b.base
	for i := 0; i < n; i++ {
		if d >= b.max/2 {
			return b.max
		}
		d *= 2
	}
	if d > b.max {
		return b.max
	}
	return d
}

// ShouldRetry reports whether a row with n recorded failures gets another
// automatic attempt.
func (b *Backoff) ShouldRetry(n int, permanent bool) bool {
	return !permanent && n < b.maxRetries
}

// Due reports whether a failed row's backoff window has elapsed at now.
func (b *Backoff) Due(row *models.WebhookLog, now time.Time) bool {
	if !b.ShouldRetry(row.RetryCount, row.Permanent) {
		return false
	}
	if row.LastAttemptAt == nil {
		return true
	}
	return !now.Before(row.LastAttemptAt.Add(b.Delay(row.RetryCount)))
}

// OnFailure schedules a delayed redispatch for a row that now has n recorded
// failures. It returns false when the row stays failed.
func (b *Backoff) OnFailure(ctx context.Context, id uint, n int, permanent bool) (bool, error) {
	if !b.ShouldRetry(n, permanent) {
		if permanent {
			log.Warnf("[Backoff] Webhook log %d failed permanently", id)
		} else {
			log.Warnf("[Backoff] Webhook log %d exhausted %d retries", id, b.maxRetries)
		}
		return false, nil
	}

	delay := b.Delay(n)
	payload := jobqueue.WebhookJobPayload{WebhookLogID: id, RetryCount: n}
	if _, err := b.queue.ScheduleJob(ctx, jobqueue.JobTypeRedispatchWebhook, payload.ToMap(), delay); err != nil {
		// the sweep re-evaluates the row once the delay has passed
		return false, fmt.Errorf("schedule retry for webhook log %d: %w", id, err)
	}
	log.Infof("[Backoff] Webhook log %d retry %d/%d in %s", id, n, b.maxRetries, delay)
	return true, nil
}
