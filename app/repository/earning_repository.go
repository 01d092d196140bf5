package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
)

// earningRepository implements the EarningRepository interface
type earningRepository struct {
	db     *gorm.DB
	lister *sortedLister
}

// NewEarningRepository creates a new earning repository instance
func NewEarningRepository(db *gorm.DB) EarningRepository {
	return &earningRepository{db: db}
}

// Create creates a new earning in the database
func (r *earningRepository) Create(ctx context.Context, earning *models.Earning) error {
	return r.db.WithContext(ctx).Create(earning).Error
}

// GetByPaymentID retrieves the earning recorded for a payment
func (r *earningRepository) GetByPaymentID(ctx context.Context, paymentID string) (*models.Earning, error) {
	var earning models.Earning
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&earning).Error; err != nil {
		return nil, err
	}
	return &earning, nil
}

// List retrieves earnings newest first
func (r *earningRepository) List(ctx context.Context, filter EarningFilter) ([]models.Earning, error) {
	where := equality(
		"vendor_id", filter.VendorID,
		"order_id", filter.OrderID,
		"status", filter.Status,
	)
	return listNewestFirst(ctx, r.lister, r.db, where, filter.Limit, func(e *models.Earning) time.Time {
		return e.CreatedAt
	})
}
