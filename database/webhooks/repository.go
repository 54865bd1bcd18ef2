package webhooks

import (
	"context"
	"fmt"
	"time"

	models "sales-forecast/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles training webhooks and their delivery logs
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new webhooks repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListWebhooks returns the business's webhooks, newest first
func (r *Repository) ListWebhooks(ctx context.Context, businessID string) ([]models.TrainingWebhook, error) {
	var hooks []models.TrainingWebhook
	err := r.db.WithContext(ctx).Where("business_id = ?", businessID).Order("created_at DESC").Find(&hooks).Error
	if err != nil {
		return nil, fmt.Errorf("ListWebhooks: %w", err)
	}
	return hooks, nil
}

// CreateWebhook stores a new webhook
func (r *Repository) CreateWebhook(ctx context.Context, hook *models.TrainingWebhook) error {
	if err := r.db.WithContext(ctx).Create(hook).Error; err != nil {
		return fmt.Errorf("CreateWebhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes a webhook of the business and reports whether one was removed
func (r *Repository) DeleteWebhook(ctx context.Context, businessID string, id int) (bool, error) {
	res := r.db.WithContext(ctx).Where("business_id = ? AND id = ?", businessID, id).Delete(&models.TrainingWebhook{})
	if res.Error != nil {
		return false, fmt.Errorf("DeleteWebhook: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetActiveWebhooks retrieves all active webhooks of every business
func (r *Repository) GetActiveWebhooks(ctx context.Context) ([]models.TrainingWebhook, error) {
	var hooks []models.TrainingWebhook
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&hooks).Error
	if err != nil {
		return nil, fmt.Errorf("GetActiveWebhooks: %w", err)
	}
	return hooks, nil
}

// SaveWebhookLog saves a delivery log
func (r *Repository) SaveWebhookLog(ctx context.Context, entry *models.TrainingWebhookLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("SaveWebhookLog: %w", err)
	}
	return nil
}

// RecordDelivery updates the webhook's counters after a delivery finished
func (r *Repository) RecordDelivery(ctx context.Context, id int, success bool, errMsg string, at time.Time) error {
	updates := map[string]interface{}{"last_triggered_at": at}
	if success {
		updates["last_success_at"] = at
		updates["last_error"] = ""
		updates["total_sent"] = gorm.Expr("total_sent + 1")
	} else {
		updates["last_error"] = errMsg
		updates["total_failed"] = gorm.Expr("total_failed + 1")
	}
	err := r.db.WithContext(ctx).Model(&models.TrainingWebhook{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("RecordDelivery: %w", err)
	}
	return nil
}

// ListDeliveryLogs returns the latest delivery logs of a webhook
func (r *Repository) ListDeliveryLogs(ctx context.Context, webhookID, limit int) ([]models.TrainingWebhookLog, error) {
	var logs []models.TrainingWebhookLog
	err := r.db.WithContext(ctx).Where("webhook_id = ?", webhookID).Order("triggered_at DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("ListDeliveryLogs: %w", err)
	}
	return logs, nil
}
