package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookStatus is the processing state of a logged webhook event.
type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "pending"
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusProcessed  WebhookStatus = "processed"
	WebhookStatusFailed     WebhookStatus = "failed"
)

const (
	EventTypeComment = "comment"
	EventTypeMessage = "message"
)

// MaxErrorMessageLength bounds error_message so a verbose upstream error
// cannot bloat the row.
const MaxErrorMessageLength = 1000

// WebhookLog stores every inbound webhook event with deduplication metadata
// for idempotent processing. (webhook_id, event_type) is unique.
type WebhookLog struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UUID          string         `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	WebhookID     string         `gorm:"type:varchar(191);not null;index:ux_webhook_logs_webhook_event,unique,priority:1" json:"webhook_id" validate:"required,max=191"`
	EventType     string         `gorm:"type:varchar(50);not null;index:ux_webhook_logs_webhook_event,unique,priority:2" json:"event_type" validate:"required,oneof=comment message"`
	IntegrationID uint           `gorm:"not null;index" json:"integration_id" validate:"required"`
	PostID        string         `gorm:"type:varchar(191);default:null;index" json:"post_id,omitempty"`
	Payload       datatypes.JSON `json:"payload"`
	Status        WebhookStatus  `gorm:"type:varchar(20);not null;default:'pending';index:idx_webhook_logs_status_attempt,priority:1" json:"status"`
	RetryCount    int            `gorm:"not null;default:0" json:"retry_count"`
	Permanent     bool           `gorm:"not null;default:false" json:"permanent"`
	ClaimToken    string         `gorm:"type:varchar(36);not null;default:''" json:"-"`
	LastAttemptAt *time.Time     `gorm:"type:timestamp;default:null;index:idx_webhook_logs_status_attempt,priority:2" json:"last_attempt_at,omitempty"`
	ProcessedAt   *time.Time     `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ErrorMessage  *string        `gorm:"type:text" json:"error_message,omitempty"`
	Result        datatypes.JSON `json:"result,omitempty"`
	Integration   Integration    `gorm:"foreignKey:IntegrationID" json:"-" validate:"-"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (w *WebhookLog) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == "" {
		w.UUID = uuid.New().String()
	}
	if w.Status == "" {
		w.Status = WebhookStatusPending
	}
	return nil
}

func (w *WebhookLog) Validate() error {
	return validate.Struct(w)
}

// IsTerminal reports whether no automatic processing will touch the row again.
func (w *WebhookLog) IsTerminal(maxRetries int) bool {
	switch w.Status {
	case WebhookStatusProcessed:
		return true
	case WebhookStatusFailed:
		return w.Permanent || w.RetryCount >= maxRetries
	}
	return false
}

// ErrorText returns the stored error message or an empty string.
func (w *WebhookLog) ErrorText() string {
	if w.ErrorMessage == nil {
		return ""
	}
	return *w.ErrorMessage
}

// TruncateError cuts msg down to MaxErrorMessageLength runes.
func TruncateError(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxErrorMessageLength {
		return msg
	}
	return string(r[:MaxErrorMessageLength])
}
