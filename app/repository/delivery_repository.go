package repository

import (
	"context"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
)

type deliveryRepository struct {
	db *gorm.DB
}

func (r *deliveryRepository) Create(ctx context.Context, delivery *models.Delivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *deliveryRepository) ListByOrder(ctx context.Context, orderID string) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&deliveries).Error
	return deliveries, err
}
