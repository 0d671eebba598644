package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/app/repository"
)

// SweepReport counts what one reconciliation pass did.
type SweepReport struct {
	Reset      int `json:"reset"`
	Failed     int `json:"failed"`
	Dispatched int `json:"dispatched"`
	Retried    int `json:"retried"`
}

// Sweeper recovers rows stuck in processing, orphaned pending rows and failed
// rows whose backoff elapsed without a scheduled retry firing.
type Sweeper struct {
	logs       repository.WebhookLogRepository
	dispatcher *Dispatcher
	backoff    *Backoff
	staleAfter time.Duration
	maxRetries int
	batchSize  int
	now        func() time.Time
}

func NewSweeper(logs repository.WebhookLogRepository, dispatcher *Dispatcher, backoff *Backoff, staleAfter time.Duration, maxRetries, batchSize int) *Sweeper {
	return &Sweeper{
		logs:       logs,
		dispatcher: dispatcher,
		backoff:    backoff,
		staleAfter: staleAfter,
		maxRetries: maxRetries,
		batchSize:  batchSize,
		now:        utcNow,
	}
}

// Sweep runs one reconciliation pass. Individual row errors are logged and
// do not stop the pass; listing errors abort it.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.now()
	cutoff := now.Add(-s.staleAfter)

	stuck, err := s.logs.ListStale(ctx, models.WebhookStatusProcessing, cutoff, s.batchSize)
	if err != nil {
		return report, fmt.Errorf("list stale processing rows: %w", err)
	}
	for i := range stuck {
		row := &stuck[i]
		// the abandoned attempt counts as a failure
		if row.RetryCount+1 >= s.maxRetries {
			msg := fmt.Sprintf("processing timed out after %s on attempt %d", s.staleAfter, row.RetryCount+1)
			ok, err := s.logs.FailStale(ctx, row.ID, msg, cutoff)
			if err != nil {
				log.Errorf("[Sweeper] Failed to fail stale webhook log %d: %v", row.ID, err)
				continue
			}
			if ok {
				report.Failed++
				log.Warnf("[Sweeper] Webhook log %d stuck in processing, marked failed", row.ID)
			}
			continue
		}

		ok, err := s.logs.ResetStale(ctx, row.ID, cutoff)
		if err != nil {
			log.Errorf("[Sweeper] Failed to reset stale webhook log %d: %v", row.ID, err)
			continue
		}
		if !ok {
			continue
		}
		report.Reset++
		row.Status = models.WebhookStatusPending
		row.RetryCount++
		if s.dispatch(ctx, row) {
			report.Dispatched++
		}
	}

	orphaned, err := s.logs.ListStale(ctx, models.WebhookStatusPending, cutoff, s.batchSize)
	if err != nil {
		return report, fmt.Errorf("list stale pending rows: %w", err)
	}
	for i := range orphaned {
		if s.dispatch(ctx, &orphaned[i]) {
			report.Dispatched++
		}
	}

	failed, err := s.logs.ListRetryable(ctx, s.maxRetries, s.batchSize)
	if err != nil {
		return report, fmt.Errorf("list retryable rows: %w", err)
	}
	for i := range failed {
		row := &failed[i]
		if !s.backoff.Due(row, now) {
			continue
		}
		ok, err := s.dispatcher.Redispatch(ctx, row.ID, row.RetryCount)
		if err != nil {
			log.Errorf("[Sweeper] Failed to redispatch webhook log %d: %v", row.ID, err)
			continue
		}
		if ok {
			report.Retried++
		}
	}

	if report != (SweepReport{}) {
		log.Infof("[Sweeper] reset=%d failed=%d dispatched=%d retried=%d", report.Reset, report.Failed, report.Dispatched, report.Retried)
	}
	return report, nil
}

func (s *Sweeper) dispatch(ctx context.Context, row *models.WebhookLog) bool {
	ok, err := s.dispatcher.Dispatch(ctx, row)
	if err != nil {
		log.Errorf("[Sweeper] Failed to dispatch webhook log %d: %v", row.ID, err)
		return false
	}
	return ok
}

// Run adapts Sweep to a periodic task.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}
