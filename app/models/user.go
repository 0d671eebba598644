package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

var validate = validator.New()

// User owns integrations and personas. ApprovalNeeded holds generated replies
// for review instead of posting them.
type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UUID           string         `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	Name           string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Email          string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Status         string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	ApprovalNeeded bool           `gorm:"not null;default:false" json:"approval_needed"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == "" {
		u.UUID = uuid.New().String()
	}
	if u.Status == "" {
		u.Status = STATUS_ACTIVE
	}
	return nil
}

func (u *User) Validate() error {
	return validate.Struct(u)
}

func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}
