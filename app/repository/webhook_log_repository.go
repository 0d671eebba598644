package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ssq-labs/commentpilot/app/models"
)

const defaultListLimit = 50
const maxListLimit = 500

type webhookLogRepository struct {
	db *gorm.DB
}

func NewWebhookLogRepository(db *gorm.DB) WebhookLogRepository {
	return &webhookLogRepository{db: db}
}

// CreateIfNotExists inserts the row unless (webhook_id, event_type) already
// exists and returns the stored row. created is false for duplicates,
// including a concurrent writer that won the insert.
func (r *webhookLogRepository) CreateIfNotExists(ctx context.Context, log *models.WebhookLog) (bool, *models.WebhookLog, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "webhook_id"},
			{Name: "event_type"},
		},
		DoNothing: true,
	}).Create(log)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetByKey(ctx, log.WebhookID, log.EventType)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *webhookLogRepository) GetByID(ctx context.Context, id uint) (*models.WebhookLog, error) {
	var log models.WebhookLog
	if err := r.db.WithContext(ctx).First(&log, id).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *webhookLogRepository) GetByKey(ctx context.Context, webhookID, eventType string) (*models.WebhookLog, error) {
	var log models.WebhookLog
	err := r.db.WithContext(ctx).
		Where("webhook_id = ? AND event_type = ?", webhookID, eventType).
		First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// MarkProcessing moves a row from `from` to processing and stores claim as
// its claim token. A non-nil expectedRetryCount additionally pins
// retry_count and requires a non-permanent row, so a stale scheduled retry
// cannot claim a row that has failed again since.
func (r *webhookLogRepository) MarkProcessing(ctx context.Context, id uint, from models.WebhookStatus, expectedRetryCount *int, claim string, at time.Time) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("id = ? AND status = ?", id, from)
	if expectedRetryCount != nil {
		q = q.Where("retry_count = ? AND permanent = ?", *expectedRetryCount, false)
	}
	tx := q.Updates(map[string]interface{}{
		"status":          models.WebhookStatusProcessing,
		"claim_token":     claim,
		"last_attempt_at": at,
	})
	return tx.RowsAffected > 0, tx.Error
}

// StartAttempt swaps the claim token of a processing row for the token of
// one run. Exactly one caller holding claim wins; a redelivered or
// superseded job finds the token already replaced.
func (r *webhookLogRepository) StartAttempt(ctx context.Context, id uint, claim, run string, at time.Time) (bool, error) {
	if claim == "" || run == "" {
		return false, nil
	}
	tx := r.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, models.WebhookStatusProcessing, claim).
		Updates(map[string]interface{}{
			"claim_token":     run,
			"last_attempt_at": at,
		})
	return tx.RowsAffected > 0, tx.Error
}

// SaveProgress stores a partial result while the run identified by token
// still owns the row.
func (r *webhookLogRepository) SaveProgress(ctx context.Context, id uint, token string, result []byte) (bool, error) {
	tx := r.owned(ctx, id, token).Update("result", datatypes.JSON(result))
	return tx.RowsAffected > 0, tx.Error
}

func (r *webhookLogRepository) MarkProcessed(ctx context.Context, id uint, token string, result []byte, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":        models.WebhookStatusProcessed,
		"processed_at":  at,
		"error_message": gorm.Expr("NULL"),
		"permanent":     false,
		"claim_token":   "",
	}
	if len(result) > 0 {
		updates["result"] = datatypes.JSON(result)
	}
	tx := r.owned(ctx, id, token).Updates(updates)
	return tx.RowsAffected > 0, tx.Error
}

// MarkFailed records a failed attempt. Transient failures bump retry_count,
// permanent ones leave it untouched.
func (r *webhookLogRepository) MarkFailed(ctx context.Context, id uint, token, errorMessage string, permanent bool, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":          models.WebhookStatusFailed,
		"last_attempt_at": at,
		"error_message":   models.TruncateError(errorMessage),
		"permanent":       permanent,
		"claim_token":     "",
	}
	if !permanent {
		updates["retry_count"] = gorm.Expr("retry_count + 1")
	}
	tx := r.owned(ctx, id, token).Updates(updates)
	return tx.RowsAffected > 0, tx.Error
}

// RevertToPending undoes a claim whose queue submission failed.
func (r *webhookLogRepository) RevertToPending(ctx context.Context, id uint, claim string) (bool, error) {
	tx := r.owned(ctx, id, claim).Updates(map[string]interface{}{
		"status":      models.WebhookStatusPending,
		"claim_token": "",
	})
	return tx.RowsAffected > 0, tx.Error
}

// ResetStale returns a processing row whose last attempt started before
// staleBefore to pending. The abandoned attempt counts against retry_count.
func (r *webhookLogRepository) ResetStale(ctx context.Context, id uint, staleBefore time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("id = ? AND status = ? AND last_attempt_at < ?", id, models.WebhookStatusProcessing, staleBefore).
		Updates(map[string]interface{}{
			"status":      models.WebhookStatusPending,
			"retry_count": gorm.Expr("retry_count + 1"),
			"claim_token": "",
		})
	return tx.RowsAffected > 0, tx.Error
}

// FailStale marks a stale processing row failed, counting the abandoned attempt.
func (r *webhookLogRepository) FailStale(ctx context.Context, id uint, errorMessage string, staleBefore time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("id = ? AND status = ? AND last_attempt_at < ?", id, models.WebhookStatusProcessing, staleBefore).
		Updates(map[string]interface{}{
			"status":        models.WebhookStatusFailed,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": models.TruncateError(errorMessage),
			"claim_token":   "",
		})
	return tx.RowsAffected > 0, tx.Error
}

// owned scopes an update to a processing row whose claim token is token.
func (r *webhookLogRepository) owned(ctx context.Context, id uint, token string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, models.WebhookStatusProcessing, token)
}

// ListStale returns rows in status whose last activity is older than before.
// Pending rows that never had an attempt are aged by created_at.
func (r *webhookLogRepository) ListStale(ctx context.Context, status models.WebhookStatus, before time.Time, limit int) ([]models.WebhookLog, error) {
	var logs []models.WebhookLog
	q := r.db.WithContext(ctx).Where("status = ?", status)
	if status == models.WebhookStatusPending {
		q = q.Where("((last_attempt_at IS NULL AND created_at < ?) OR last_attempt_at < ?)", before, before)
	} else {
		q = q.Where("last_attempt_at < ?", before)
	}
	err := q.Order("id ASC").Limit(ClampLimit(limit)).Find(&logs).Error
	return logs, err
}

// ListRetryable returns failed, non-permanent rows still under maxRetries,
// oldest attempt first.
func (r *webhookLogRepository) ListRetryable(ctx context.Context, maxRetries, limit int) ([]models.WebhookLog, error) {
	var logs []models.WebhookLog
	err := r.db.WithContext(ctx).
		Where("status = ? AND permanent = ? AND retry_count < ?", models.WebhookStatusFailed, false, maxRetries).
		Order("last_attempt_at ASC").
		Limit(ClampLimit(limit)).
		Find(&logs).Error
	return logs, err
}

func (r *webhookLogRepository) List(ctx context.Context, filter WebhookLogFilter) ([]models.WebhookLog, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.WebhookLog{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	if filter.IntegrationID != 0 {
		q = q.Where("integration_id = ?", filter.IntegrationID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.WebhookLog
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	err := q.Order("id DESC").Offset(offset).Limit(ClampLimit(filter.Limit)).Find(&logs).Error
	return logs, total, err
}

func (r *webhookLogRepository) CountByStatus(ctx context.Context) (map[models.WebhookStatus]int64, error) {
	var rows []struct {
		Status models.WebhookStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.WebhookStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// IsNotFound reports whether err means no live row matched.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ClampLimit maps a requested page size onto what List actually returns.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
