package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ssq-labs/commentpilot/app/models"
)

// ErrNotFound is returned by every repository when no live row matches.
var ErrNotFound = gorm.ErrRecordNotFound

// WebhookLogRepository persists webhook events. All state changes are
// conditional updates: the bool result reports whether the row was in the
// expected state and got changed.
type WebhookLogRepository interface {
	CreateIfNotExists(ctx context.Context, log *models.WebhookLog) (bool, *models.WebhookLog, error)
	GetByID(ctx context.Context, id uint) (*models.WebhookLog, error)
	GetByKey(ctx context.Context, webhookID, eventType string) (*models.WebhookLog, error)
	MarkProcessing(ctx context.Context, id uint, from models.WebhookStatus, expectedRetryCount *int, claim string, at time.Time) (bool, error)
	StartAttempt(ctx context.Context, id uint, claim, run string, at time.Time) (bool, error)
	SaveProgress(ctx context.Context, id uint, token string, result []byte) (bool, error)
	MarkProcessed(ctx context.Context, id uint, token string, result []byte, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uint, token, errorMessage string, permanent bool, at time.Time) (bool, error)
	RevertToPending(ctx context.Context, id uint, claim string) (bool, error)
	ResetStale(ctx context.Context, id uint, staleBefore time.Time) (bool, error)
	FailStale(ctx context.Context, id uint, errorMessage string, staleBefore time.Time) (bool, error)
	ListStale(ctx context.Context, status models.WebhookStatus, before time.Time, limit int) ([]models.WebhookLog, error)
	ListRetryable(ctx context.Context, maxRetries, limit int) ([]models.WebhookLog, error)
	List(ctx context.Context, filter WebhookLogFilter) ([]models.WebhookLog, int64, error)
	CountByStatus(ctx context.Context) (map[models.WebhookStatus]int64, error)
}

// WebhookLogFilter narrows admin listings. Zero values are ignored.
type WebhookLogFilter struct {
	Status        models.WebhookStatus
	EventType     string
	IntegrationID uint
	Offset        int
	Limit         int
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

type IntegrationRepository interface {
	Create(ctx context.Context, integration *models.Integration) error
	GetByID(ctx context.Context, id uint) (*models.Integration, error)
	GetByPlatformAccount(ctx context.Context, platform, platformUserID string) (*models.Integration, error)
}

type PersonaRepository interface {
	Create(ctx context.Context, persona *models.Persona) error
	GetActiveByUserID(ctx context.Context, userID uint) (*models.Persona, error)
}

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByPostID(ctx context.Context, postID string) (*models.Post, error)
	GetOrCreate(ctx context.Context, postID string, integrationID uint) (*models.Post, error)
}

type DmAutomationRepository interface {
	Create(ctx context.Context, rule *models.DmAutomationRule) error
	GetByID(ctx context.Context, id uint) (*models.DmAutomationRule, error)
	List(ctx context.Context, filter DmRuleFilter) ([]models.DmAutomationRule, int64, error)
	Update(ctx context.Context, rule *models.DmAutomationRule) error
	Delete(ctx context.Context, id uint) (bool, error)
	ListActiveForPost(ctx context.Context, integrationID uint, postID string) ([]models.DmAutomationRule, error)
	ListActiveByTrigger(ctx context.Context, integrationID uint, triggerType string) ([]models.DmAutomationRule, error)
}

// DmRuleFilter narrows rule listings. Zero values are ignored.
type DmRuleFilter struct {
	IntegrationID uint
	PostID        string
	TriggerType   string
	Offset        int
	Limit         int
}

// Repositories struct holds all repository instances
type Repositories struct {
	WebhookLog   WebhookLogRepository
	User         UserRepository
	Integration  IntegrationRepository
	Persona      PersonaRepository
	Post         PostRepository
	DmAutomation DmAutomationRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		WebhookLog:   NewWebhookLogRepository(db),
		User:         NewUserRepository(db),
		Integration:  NewIntegrationRepository(db),
		Persona:      NewPersonaRepository(db),
		Post:         NewPostRepository(db),
		DmAutomation: NewDmAutomationRepository(db),
	}
}
