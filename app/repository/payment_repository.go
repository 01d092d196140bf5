package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db     *gorm.DB
	lister *sortedLister
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create creates a new payment in the database
func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// GetByID retrieves a payment by its ID
func (r *paymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetByOrderID(ctx context.Context, orderID string, stage models.PaymentStage) (*models.Payment, error) {
	q := r.db.WithContext(ctx).Where("order_id = ?", orderID)
	if stage != "" {
		q = q.Where("stage = ?", string(stage))
	}
	var payment models.Payment
	if err := q.Order("created_at ASC").Order("id ASC").First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListByOrder retrieves every payment of an order in creation order
func (r *paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&payments).Error
	return payments, err
}

// ListByClient retrieves a client's payments newest first
func (r *paymentRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]models.Payment, error) {
	return listNewestFirst(ctx, r.lister, r.db, equality("client_id", clientID), limit, func(p *models.Payment) time.Time {
		return p.CreatedAt
	})
}

func (r *paymentRepository) UpdateIfStatus(ctx context.Context, id string, from []models.PaymentStatus, changes *models.Payment, columns ...string) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, statuses).
		Select(columns).
		Updates(changes)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
