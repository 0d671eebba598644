package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TriggerTypeComment = "comment"
	TriggerTypeDM      = "dm"

	MatchTypeExactText = "EXACT_TEXT"
	MatchTypeAIIntent  = "AI_INTENT"
)

// DmAutomationRule sends a direct message when a comment or DM matches.
type DmAutomationRule struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UUID          string         `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	IntegrationID uint           `gorm:"not null;index" json:"integration_id" validate:"required"`
	PostID        string         `gorm:"type:varchar(191);default:null;index" json:"post_id,omitempty"`
	TriggerType   string         `gorm:"type:varchar(20);not null;default:'comment'" json:"trigger_type" validate:"oneof=comment dm"`
	MatchType     string         `gorm:"type:varchar(20);not null;default:'EXACT_TEXT'" json:"match_type" validate:"oneof=EXACT_TEXT AI_INTENT"`
	TriggerText   string         `gorm:"type:text;not null" json:"trigger_text" validate:"required"`
	DmResponse    string         `gorm:"type:text;not null" json:"dm_response" validate:"required"`
	CommentReply  string         `gorm:"type:text" json:"comment_reply,omitempty"`
	IsActive      bool           `gorm:"not null" json:"is_active"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *DmAutomationRule) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == "" {
		r.UUID = uuid.New().String()
	}
	return nil
}

func (r *DmAutomationRule) Validate() error {
	return validate.Struct(r)
}

// MatchesText is the case-insensitive substring match used by EXACT_TEXT rules.
func (r *DmAutomationRule) MatchesText(text string) bool {
	trigger := strings.TrimSpace(r.TriggerText)
	if trigger == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(trigger))
}
