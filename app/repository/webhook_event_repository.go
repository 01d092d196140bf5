package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// CreateIfNotExists stores a webhook event once per provider event id. The
// returned bool is false when the event was delivered before.
func (r *webhookEventRepository) CreateIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *webhookEventRepository) ClaimUnverified(ctx context.Context, id uint, payload string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).
		Where("id = ? AND signature_valid = ?", id, false).
		Updates(map[string]interface{}{
			"signature_valid":  true,
			"payload_json":     payload,
			"processed_at":     nil,
			"processing_error": "",
		})
	return res.RowsAffected > 0, res.Error
}

func (r *webhookEventRepository) MarkRetryable(ctx context.Context, id uint, processingError string) error {
	updates := map[string]interface{}{
		"processed_at":     nil,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *webhookEventRepository) ClaimRetry(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).
		Where("id = ? AND signature_valid = ? AND processed_at IS NULL AND processing_error <> ?", id, true, "").
		Update("processing_error", "")
	return res.RowsAffected > 0, res.Error
}
