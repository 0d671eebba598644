package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post is a platform media item the integration engages on. Engagement is off
// until enabled. The optional hour window is evaluated in UTC and may wrap
// midnight (start 22, end 6).
type Post struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	UUID                string         `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	PostID              string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"post_id" validate:"required,max=191"`
	IntegrationID       uint           `gorm:"not null;index" json:"integration_id" validate:"required"`
	IgnoreInstructions  string         `gorm:"type:text" json:"ignore_instructions"`
	EngagementEnabled   bool           `gorm:"not null;default:false" json:"engagement_enabled"`
	EngagementStartHour *int           `gorm:"default:null" json:"engagement_start_hour,omitempty" validate:"omitempty,min=0,max=23"`
	EngagementEndHour   *int           `gorm:"default:null" json:"engagement_end_hour,omitempty" validate:"omitempty,min=0,max=23"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	return nil
}

func (p *Post) Validate() error {
	return validate.Struct(p)
}

// WithinEngagementWindow reports whether t falls inside the configured hours.
// A post without a complete window engages around the clock.
func (p *Post) WithinEngagementWindow(t time.Time) bool {
	if p.EngagementStartHour == nil || p.EngagementEndHour == nil {
		return true
	}
	start, end := *p.EngagementStartHour, *p.EngagementEndHour
	h := t.UTC().Hour()
	if start == end {
		return true
	}
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}
