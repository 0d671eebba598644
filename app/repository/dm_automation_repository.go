package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ssq-labs/commentpilot/app/models"
)

type dmAutomationRepository struct {
	db *gorm.DB
}

func NewDmAutomationRepository(db *gorm.DB) DmAutomationRepository {
	return &dmAutomationRepository{db: db}
}

func (r *dmAutomationRepository) Create(ctx context.Context, rule *models.DmAutomationRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

// ListActiveForPost returns the comment rules bound to a post, oldest first.
func (r *dmAutomationRepository) ListActiveForPost(ctx context.Context, integrationID uint, postID string) ([]models.DmAutomationRule, error) {
	var rules []models.DmAutomationRule
	err := r.db.WithContext(ctx).
		Where("integration_id = ? AND post_id = ? AND trigger_type = ? AND is_active = ?",
			integrationID, postID, models.TriggerTypeComment, true).
		Order("id ASC").
		Find(&rules).Error
	return rules, err
}

func (r *dmAutomationRepository) ListActiveByTrigger(ctx context.Context, integrationID uint, triggerType string) ([]models.DmAutomationRule, error) {
	var rules []models.DmAutomationRule
	err := r.db.WithContext(ctx).
		Where("integration_id = ? AND trigger_type = ? AND is_active = ?", integrationID, triggerType, true).
		Order("id ASC").
		Find(&rules).Error
	return rules, err
}

// List returns rules matching filter, oldest first, with the unpaged total.
func (r *dmAutomationRepository) List(ctx context.Context, filter DmRuleFilter) ([]models.DmAutomationRule, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.DmAutomationRule{})
	if filter.IntegrationID != 0 {
		q = q.Where("integration_id = ?", filter.IntegrationID)
	}
	if filter.PostID != "" {
		q = q.Where("post_id = ?", filter.PostID)
	}
	if filter.TriggerType != "" {
		q = q.Where("trigger_type = ?", filter.TriggerType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rules []models.DmAutomationRule
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	err := q.Order("id ASC").Offset(offset).Limit(ClampLimit(filter.Limit)).Find(&rules).Error
	return rules, total, err
}

func (r *dmAutomationRepository) GetByID(ctx context.Context, id uint) (*models.DmAutomationRule, error) {
	var rule models.DmAutomationRule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// Update writes every editable column of rule, including zero values.
func (r *dmAutomationRepository) Update(ctx context.Context, rule *models.DmAutomationRule) error {
	tx := r.db.WithContext(ctx).Model(&models.DmAutomationRule{}).
		Where("id = ?", rule.ID).
		Select("integration_id", "post_id", "trigger_type", "match_type", "trigger_text", "dm_response", "comment_reply", "is_active").
		Updates(rule)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes the rule. It reports false when no live rule matched.
func (r *dmAutomationRepository) Delete(ctx context.Context, id uint) (bool, error) {
	tx := r.db.WithContext(ctx).Delete(&models.DmAutomationRule{}, id)
	return tx.RowsAffected > 0, tx.Error
}
