package webhook

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/app/repository"
	"github.com/ssq-labs/commentpilot/internal/pkg/config"
	"github.com/ssq-labs/commentpilot/internal/pkg/jobqueue"
)

// Pipeline wires the gate, dispatcher, processor, backoff and sweeper around
// one webhook log repository and job queue.
type Pipeline struct {
	Gate       *Gate
	Dispatcher *Dispatcher
	Processor  *Processor
	Backoff    *Backoff
	Sweeper    *Sweeper
}

func NewPipeline(logs repository.WebhookLogRepository, queue JobQueue, handler Handler, cfg config.Pipeline) *Pipeline {
	backoff := NewBackoff(cfg.BackoffBase, cfg.BackoffMax, cfg.MaxRetries, queue)
	dispatcher := NewDispatcher(logs, queue)
	return &Pipeline{
		Gate:       NewGate(logs, cfg.MaxRetries),
		Dispatcher: dispatcher,
		Processor:  NewProcessor(logs, handler, backoff),
		Backoff:    backoff,
		Sweeper:    NewSweeper(logs, dispatcher, backoff, cfg.StaleAfter, cfg.MaxRetries, cfg.SweepBatchSize),
	}
}

// Ingest gates the event and dispatches it when the gate allows. A lost
// claim downgrades the decision to skip-in-flight. The row is nil when the
// gate skipped without one.
func (p *Pipeline) Ingest(ctx context.Context, ev Event) (Decision, *models.WebhookLog, error) {
	decision, row, err := p.Gate.Admit(ctx, ev)
	if err != nil {
		return "", nil, err
	}
	if !decision.Dispatchable() {
		return decision, row, nil
	}

	ok, err := p.Dispatcher.Dispatch(ctx, row)
	if err != nil {
		return "", row, fmt.Errorf("dispatch %s/%s: %w", ev.WebhookID, ev.EventType, err)
	}
	if !ok {
		return DecisionSkipInFlight, row, nil
	}
	return decision, row, nil
}

// RegisterJobs binds the webhook job types to the queue.
func (p *Pipeline) RegisterJobs(q *jobqueue.Queue) {
	q.RegisterHandler(jobqueue.JobTypeProcessWebhook, func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.WebhookJobPayloadFromMap(job.Payload)
		if err != nil {
			log.Errorf("[Pipeline] Bad payload for job %s: %v", job.ID, err)
			return nil
		}
		return p.Processor.Process(ctx, payload.WebhookLogID, payload.ClaimToken)
	})
	q.RegisterHandler(jobqueue.JobTypeRedispatchWebhook, func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.WebhookJobPayloadFromMap(job.Payload)
		if err != nil {
			log.Errorf("[Pipeline] Bad payload for job %s: %v", job.ID, err)
			return nil
		}
		_, err = p.Dispatcher.Redispatch(ctx, payload.WebhookLogID, payload.RetryCount)
		return err
	})
}

// SweepTask returns the reconciliation sweep as a periodic manager task.
func (p *Pipeline) SweepTask(cfg config.Pipeline) jobqueue.PeriodicTask {
	return jobqueue.PeriodicTask{
		Name:     "webhook sweeper",
		Interval: cfg.SweepInterval,
		Run:      p.Sweeper.Run,
	}
}
