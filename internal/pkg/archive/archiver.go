// Package archive copies raw webhook payloads to object storage.
package archive

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/klauspost/compress/zstd"

	"github.com/ssq-labs/commentpilot/app/repository"
	"github.com/ssq-labs/commentpilot/internal/pkg/jobqueue"
)

// Archiver compresses a row's payload with zstd and stores it.
type Archiver struct {
	logs    repository.WebhookLogRepository
	store   Store
	config  *Config
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewArchiver(logs repository.WebhookLogRepository, store Store, cfg *Config) (*Archiver, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Archiver{logs: logs, store: store, config: cfg, encoder: enc, decoder: dec}, nil
}

// Archive stores the payload of one webhook log and returns its object key.
func (a *Archiver) Archive(ctx context.Context, id uint) (string, error) {
	row, err := a.logs.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load webhook log %d: %w", id, err)
	}

	key := a.config.ObjectKey(row.EventType, row.UUID, row.CreatedAt)
	body := a.encoder.EncodeAll(row.Payload, make([]byte, 0, len(row.Payload)/2))
	meta := map[string]string{
		"webhook-id":     row.WebhookID,
		"event-type":     row.EventType,
		"integration-id": strconv.FormatUint(uint64(row.IntegrationID), 10),
	}
	if err := a.store.Put(ctx, key, body, meta); err != nil {
		return "", err
	}

	log.Debugf("[Archive] Stored webhook log %d as %s (%d -> %d bytes)", id, key, len(row.Payload), len(body))
	return key, nil
}

// Load returns the decompressed payload stored under key.
func (a *Archiver) Load(ctx context.Context, key string) ([]byte, error) {
	body, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	raw, err := a.decoder.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", key, err)
	}
	return raw, nil
}

// RegisterJobs binds the archive_payload job type. Missing rows are dropped,
// storage errors go through the queue's own retry.
func (a *Archiver) RegisterJobs(q *jobqueue.Queue) {
	q.RegisterHandler(jobqueue.JobTypeArchivePayload, func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.WebhookJobPayloadFromMap(job.Payload)
		if err != nil {
			log.Errorf("[Archive] Bad payload for job %s: %v", job.ID, err)
			return nil
		}
		if _, err := a.Archive(ctx, payload.WebhookLogID); err != nil {
			if repository.IsNotFound(err) {
				log.Warnf("[Archive] Webhook log %d is gone, skipping", payload.WebhookLogID)
				return nil
			}
			return err
		}
		return nil
	})
}

// Enqueuer is the part of the job queue Enqueue needs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// Enqueue schedules archiving of one row.
func Enqueue(ctx context.Context, q Enqueuer, id uint) error {
	_, err := q.EnqueueJob(ctx, jobqueue.JobTypeArchivePayload, jobqueue.WebhookJobPayload{WebhookLogID: id}.ToMap())
	return err
}
