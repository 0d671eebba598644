package jobqueue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType(t *testing.T) {
	assert.Equal(t, "process_webhook", string(JobTypeProcessWebhook))
	assert.Equal(t, "redispatch_webhook", string(JobTypeRedispatchWebhook))
	assert.Equal(t, "archive_payload", string(JobTypeArchivePayload))
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{"failed with retries remaining", &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}, true},
		{"failed with no retries remaining", &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"completed", &Job{Status: JobStatusCompleted, RetryCount: 1, MaxRetries: 3}, false},
		{"pending", &Job{Status: JobStatusPending, MaxRetries: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: DefaultMaxRetries}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("timeout")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "timeout", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
	assert.False(t, job.CompletedAt.Before(*job.ProcessedAt))
}

func TestWebhookJobPayload(t *testing.T) {
	data := WebhookJobPayload{WebhookLogID: 12, RetryCount: 3, ClaimToken: "claim-1"}.ToMap()
	assert.Equal(t, uint(12), data["webhook_log_id"])
	assert.Equal(t, 3, data["retry_count"])
	assert.Equal(t, "claim-1", data["claim_token"])
	assert.NotContains(t, WebhookJobPayload{WebhookLogID: 12}.ToMap(), "claim_token")

	// payloads come back from Redis as decoded JSON
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	p, err := WebhookJobPayloadFromMap(decoded)
	require.NoError(t, err)
	assert.Equal(t, &WebhookJobPayload{WebhookLogID: 12, RetryCount: 3, ClaimToken: "claim-1"}, p)
}

func TestWebhookJobPayloadFromMap_InvalidData(t *testing.T) {
	_, err := WebhookJobPayloadFromMap(map[string]interface{}{"webhook_log_id": "not-a-number"})
	assert.Error(t, err)
}

func TestJobJSONSerialization(t *testing.T) {
	runAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := &Job{
		ID:         "job-1",
		Type:       JobTypeRedispatchWebhook,
		Status:     JobStatusPending,
		Payload:    WebhookJobPayload{WebhookLogID: 5, RetryCount: 1}.ToMap(),
		RunAt:      &runAt,
		MaxRetries: DefaultMaxRetries,
	}

	raw, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded Job
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, job.Type, decoded.Type)
	require.NotNil(t, decoded.RunAt)
	assert.True(t, runAt.Equal(*decoded.RunAt))
	assert.Equal(t, float64(5), decoded.Payload["webhook_log_id"])
}
