package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	PlatformInstagram = "instagram"
	PlatformYouTube   = "youtube"
)

// Integration is a connected platform account. PlatformUserID is the account id
// the platform reports as the webhook entry id.
type Integration struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UUID           string         `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	UserID         uint           `gorm:"not null;index" json:"user_id" validate:"required"`
	Platform       string         `gorm:"type:varchar(20);not null;index:ux_integrations_platform_account,unique,priority:1" json:"platform" validate:"required,oneof=instagram youtube"`
	PlatformUserID string         `gorm:"type:varchar(191);not null;index:ux_integrations_platform_account,unique,priority:2" json:"platform_user_id" validate:"required,max=191"`
	AccessToken    string         `gorm:"type:text;not null" json:"-" validate:"required"`
	RefreshToken   string         `gorm:"type:text" json:"-"`
	ExpiresAt      *time.Time     `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	TokenType      string         `gorm:"type:varchar(50)" json:"token_type"`
	Scope          string         `gorm:"type:text" json:"scope"`
	User           User           `gorm:"foreignKey:UserID" json:"-" validate:"-"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (i *Integration) BeforeCreate(tx *gorm.DB) error {
	if i.UUID == "" {
		i.UUID = uuid.New().String()
	}
	return nil
}

func (i *Integration) Validate() error {
	return validate.Struct(i)
}

// Token exposes the stored credentials as an oauth2 token.
func (i *Integration) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  i.AccessToken,
		RefreshToken: i.RefreshToken,
		TokenType:    i.TokenType,
	}
	if i.ExpiresAt != nil {
		tok.Expiry = *i.ExpiresAt
	}
	return tok
}

// HasValidToken is false once the access token is missing or expired.
func (i *Integration) HasValidToken() bool {
	return i.Token().Valid()
}
