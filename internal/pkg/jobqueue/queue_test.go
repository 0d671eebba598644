package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssq-labs/commentpilot/internal/pkg/testutil"
)

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(nil, tt.workers)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.NotNil(t, queue.stopCh)
			assert.False(t, queue.running)
		})
	}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "job:", JobKeyPrefix)
	assert.Equal(t, "job_queue", JobQueueKey)
	assert.Equal(t, "job_processing", JobProcessingKey)
	assert.Equal(t, "job_delayed", JobDelayedKey)
	assert.Equal(t, "job_stats", JobStatsKey)
	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, 24*time.Hour, JobTTL)
}

func TestQueue_EnqueueAndProcess(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	q := NewQueue(client, 2)

	got := make(chan uint, 1)
	q.RegisterHandler(JobTypeProcessWebhook, func(ctx context.Context, job *Job) error {
		p, err := WebhookJobPayloadFromMap(job.Payload)
		if err != nil {
			return err
		}
		got <- p.WebhookLogID
		return nil
	})

	ctx := context.Background()
	job, err := q.EnqueueJob(ctx, JobTypeProcessWebhook, WebhookJobPayload{WebhookLogID: 42}.ToMap())
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)

	q.Start()
	defer q.Stop()

	select {
	case id := <-got:
		assert.Equal(t, uint(42), id)
	case <-time.After(3 * time.Second):
		t.Fatal("handler was not called")
	}

	require.Eventually(t, func() bool {
		_, err := q.GetJob(ctx, job.ID)
		return errors.Is(err, redis.Nil)
	}, 2*time.Second, 10*time.Millisecond, "completed job data should be removed")

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Totals[JobStatusCompleted])
}

func TestQueue_ScheduleAndPromote(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	q := NewQueue(client, 1)
	ctx := context.Background()

	job, err := q.ScheduleJob(ctx, JobTypeRedispatchWebhook, WebhookJobPayload{WebhookLogID: 7, RetryCount: 2}.ToMap(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job.RunAt)

	n, err := q.PromoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "job is not due yet")

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)
	assert.Equal(t, int64(0), stats.Ready)

	n, err = q.PromoteDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err = q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Delayed)
	assert.Equal(t, int64(1), stats.Ready)

	// promoting again is a no-op
	n, err = q.PromoteDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	p, err := WebhookJobPayloadFromMap(stored.Payload)
	require.NoError(t, err)
	assert.Equal(t, 2, p.RetryCount)
}

func TestQueue_FailedJobIsRescheduled(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	q := NewQueue(client, 1)
	ctx := context.Background()

	q.RegisterHandler(JobTypeArchivePayload, func(ctx context.Context, job *Job) error {
		return errors.New("bucket unavailable")
	})

	job, err := q.EnqueueJob(ctx, JobTypeArchivePayload, map[string]interface{}{"webhook_log_id": 1})
	require.NoError(t, err)

	q.processJob(ctx, job)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, "bucket unavailable", stored.ErrorMsg)

	delayed, err := client.ZCard(ctx, JobDelayedKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), delayed)
}

func TestQueue_UnknownJobTypeFailsWithoutRetry(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	q := NewQueue(client, 1)
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobType("nope"), nil)
	require.NoError(t, err)

	q.processJob(ctx, job)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMsg, "unknown job type")

	delayed, err := client.ZCard(ctx, JobDelayedKey).Result()
	require.NoError(t, err)
	assert.Zero(t, delayed)
}

func TestQueue_RecoverStuckJobs(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	q := NewQueue(client, 1)
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobTypeProcessWebhook, WebhookJobPayload{WebhookLogID: 3}.ToMap())
	require.NoError(t, err)

	claimed, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)
	claimed.MarkAsProcessing()
	q.updateJob(ctx, claimed)

	// dangling id without job data
	require.NoError(t, client.LPush(ctx, JobProcessingKey, "missing").Err())

	assert.Equal(t, 0, q.recoverStuckJobs(ctx, 10*time.Minute, time.Now()))
	assert.Equal(t, 1, q.recoverStuckJobs(ctx, 10*time.Minute, time.Now().Add(11*time.Minute)))

	processing, err := client.LLen(ctx, JobProcessingKey).Result()
	require.NoError(t, err)
	assert.Zero(t, processing)

	ready, err := client.LRange(ctx, JobQueueKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, ready)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)
}

func TestQueue_Ping(t *testing.T) {
	client, mr := testutil.NewRedis(t)
	q := NewQueue(client, 1)

	require.NoError(t, q.Ping(context.Background()))
	mr.Close()
	assert.Error(t, q.Ping(context.Background()))
}
