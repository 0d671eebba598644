package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Persona describes how replies are written. The most recently updated persona
// of a user is the active one.
type Persona struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UUID            string         `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	UserID          uint           `gorm:"not null;index" json:"user_id" validate:"required"`
	Name            string         `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	Tone            string         `gorm:"type:varchar(100)" json:"tone" validate:"max=100"`
	Style           string         `gorm:"type:varchar(100)" json:"style" validate:"max=100"`
	Instructions    string         `gorm:"type:text" json:"instructions"`
	PersonalDetails string         `gorm:"type:text" json:"personal_details"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime;index" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Persona) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	return nil
}

func (p *Persona) Validate() error {
	return validate.Struct(p)
}
