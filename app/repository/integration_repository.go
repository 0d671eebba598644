package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ssq-labs/commentpilot/app/models"
)

type integrationRepository struct {
	db *gorm.DB
}

func NewIntegrationRepository(db *gorm.DB) IntegrationRepository {
	return &integrationRepository{db: db}
}

func (r *integrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	return r.db.WithContext(ctx).Create(integration).Error
}

func (r *integrationRepository) GetByID(ctx context.Context, id uint) (*models.Integration, error) {
	var integration models.Integration
	if err := r.db.WithContext(ctx).First(&integration, id).Error; err != nil {
		return nil, err
	}
	return &integration, nil
}

// GetByPlatformAccount resolves the receiving account of a webhook entry.
func (r *integrationRepository) GetByPlatformAccount(ctx context.Context, platform, platformUserID string) (*models.Integration, error) {
	var integration models.Integration
	err := r.db.WithContext(ctx).
		Where("platform = ? AND platform_user_id = ?", platform, platformUserID).
		First(&integration).Error
	if err != nil {
		return nil, err
	}
	return &integration, nil
}
