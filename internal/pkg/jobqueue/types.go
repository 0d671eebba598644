package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	// JobTypeProcessWebhook runs the worker processor for one webhook_logs row.
	JobTypeProcessWebhook JobType = "process_webhook"
	// JobTypeRedispatchWebhook re-enters the dispatcher after a backoff delay.
	JobTypeRedispatchWebhook JobType = "redispatch_webhook"
	// JobTypeArchivePayload copies a raw webhook payload to object storage.
	JobTypeArchivePayload JobType = "archive_payload"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	RunAt       *time.Time             `json:"run_at,omitempty"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// WebhookJobPayload identifies the webhook_logs row a job works on.
// RetryCount pins the attempt a scheduled redispatch was computed for.
// ClaimToken names the dispatch a process job belongs to.
type WebhookJobPayload struct {
	WebhookLogID uint   `json:"webhook_log_id"`
	RetryCount   int    `json:"retry_count"`
	ClaimToken   string `json:"claim_token,omitempty"`
}

// ToMap converts the payload to a map for storage
func (p WebhookJobPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"webhook_log_id": p.WebhookLogID,
		"retry_count":    p.RetryCount,
	}
	if p.ClaimToken != "" {
		m["claim_token"] = p.ClaimToken
	}
	return m
}

// WebhookJobPayloadFromMap creates a payload from a map
func WebhookJobPayloadFromMap(data map[string]interface{}) (*WebhookJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload WebhookJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
